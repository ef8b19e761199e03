package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrank/internal/middleware"
	"github.com/xxxsen/docrank/internal/pkg/errcode"
	appErr "github.com/xxxsen/docrank/internal/pkg/errors"
	"github.com/xxxsen/docrank/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrNoDocuments):
		response.Error(c, errcode.ErrNoDocuments, err.Error())
	case errors.Is(err, appErr.ErrMissingAssistantConfig), errors.Is(err, appErr.ErrUnavailable):
		response.Error(c, errcode.ErrAssistantUnavailable, err.Error())
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	default:
		response.Error(c, errcode.ErrAnalyzeFailed, "analysis failed")
	}
}
