package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrank/internal/config"
	"github.com/xxxsen/docrank/internal/model"
	"github.com/xxxsen/docrank/internal/pkg/errcode"
	"github.com/xxxsen/docrank/internal/pkg/response"
	"github.com/xxxsen/docrank/internal/report"
	"github.com/xxxsen/docrank/internal/service"
)

const (
	documentsField = "documents"
	reportTitle    = "Document Analysis Results"
)

type AnalysisHandler struct {
	analysis *service.AnalysisService
	archive  *service.ArchiveService
	renderer *report.Renderer
	upload   config.UploadConfig
}

func NewAnalysisHandler(analysis *service.AnalysisService, archive *service.ArchiveService, upload config.UploadConfig) *AnalysisHandler {
	return &AnalysisHandler{
		analysis: analysis,
		archive:  archive,
		renderer: report.NewRenderer(),
		upload:   upload,
	}
}

type resultItem struct {
	model.DocumentResult
	Status string `json:"status"`
}

type analyzeResponse struct {
	Items []resultItem   `json:"items"`
	Stats report.Stats   `json:"stats"`
	Sort  report.SortKey `json:"sort"`
	Order report.Order   `json:"order"`
}

type uploadError struct {
	code int
	msg  string
}

func (e *uploadError) Error() string {
	return e.msg
}

func (h *AnalysisHandler) Analyze(c *gin.Context) {
	sortKey, order, err := report.ParseSort(c.Query("sort"), c.Query("order"))
	if err != nil {
		response.Error(c, errcode.ErrInvalid, err.Error())
		return
	}
	format := strings.ToLower(c.DefaultQuery("format", "json"))
	if format != "json" && format != "html" && format != "markdown" {
		response.Error(c, errcode.ErrInvalid, "unsupported format: "+format)
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, errcode.ErrFileTooLarge, "request body too large")
			return
		}
		response.Error(c, errcode.ErrInvalidFile, "multipart form is required")
		return
	}
	docs, err := h.readDocuments(c.Request.Context(), form.File[documentsField])
	if err != nil {
		var ue *uploadError
		if errors.As(err, &ue) {
			response.Error(c, ue.code, ue.msg)
			return
		}
		handleError(c, err)
		return
	}

	results, err := h.analysis.ProcessAll(c.Request.Context(), docs)
	if err != nil {
		handleError(c, err)
		return
	}
	sorted := report.Sort(results, sortKey, order)
	switch format {
	case "html":
		page, err := h.renderer.Page(reportTitle, sorted)
		if err != nil {
			handleError(c, err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
	case "markdown":
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(report.Markdown(sorted)))
	default:
		items := make([]resultItem, 0, len(sorted))
		for _, res := range sorted {
			items = append(items, resultItem{DocumentResult: res, Status: report.Status(res)})
		}
		response.Success(c, analyzeResponse{
			Items: items,
			Stats: report.Summarize(results),
			Sort:  sortKey,
			Order: order,
		})
	}
}

// readDocuments validates every upload before reading any of them, so a bad
// file rejects the batch without partial work. An empty upload is left to
// ProcessAll to reject.
func (h *AnalysisHandler) readDocuments(ctx context.Context, files []*multipart.FileHeader) ([]model.Document, error) {
	if h.upload.MaxFiles > 0 && len(files) > h.upload.MaxFiles {
		return nil, &uploadError{code: errcode.ErrTooManyFiles, msg: fmt.Sprintf("too many files (max %d)", h.upload.MaxFiles)}
	}
	types := make([]string, len(files))
	for i, fh := range files {
		if h.upload.MaxFileSize > 0 && fh.Size > h.upload.MaxFileSize {
			return nil, &uploadError{
				code: errcode.ErrFileTooLarge,
				msg:  fmt.Sprintf("%s: file too large (max %s)", fh.Filename, formatUploadLimit(h.upload.MaxFileSize)),
			}
		}
		mediaType, ok := resolveType(fh.Header.Get("Content-Type"), fh.Filename, h.upload.AllowedTypes)
		if !ok {
			return nil, &uploadError{code: errcode.ErrUnsupportedType, msg: fh.Filename + ": unsupported file type"}
		}
		types[i] = mediaType
	}
	docs := make([]model.Document, 0, len(files))
	for i, fh := range files {
		data, err := readUpload(fh)
		if err != nil {
			return nil, &uploadError{code: errcode.ErrInvalidFile, msg: fh.Filename + ": failed to read file"}
		}
		h.archiveUpload(ctx, fh.Filename, data)
		docs = append(docs, model.Document{
			Name:        fh.Filename,
			ContentType: types[i],
			Content:     strings.ToValidUTF8(string(data), "\uFFFD"),
		})
	}
	return docs, nil
}

func (h *AnalysisHandler) archiveUpload(ctx context.Context, name string, data []byte) {
	if !h.archive.Enabled() {
		return
	}
	if _, err := h.archive.Save(ctx, name, data); err != nil {
		logutil.GetLogger(ctx).Warn("archive upload failed", zap.String("file", name), zap.Error(err))
	}
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
