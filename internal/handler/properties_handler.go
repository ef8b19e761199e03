package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docrank/internal/config"
	"github.com/xxxsen/docrank/internal/pkg/response"
)

type Properties struct {
	MaxFileSize      int64    `json:"max_file_size"`
	MaxFileSizeLabel string   `json:"max_file_size_label"`
	MaxFiles         int      `json:"max_files"`
	AllowedTypes     []string `json:"allowed_types"`
	Accept           []string `json:"accept"`
	FieldName        string   `json:"field_name"`
}

type PropertiesHandler struct {
	properties Properties
}

func NewPropertiesHandler(upload config.UploadConfig) *PropertiesHandler {
	return &PropertiesHandler{properties: Properties{
		MaxFileSize:      upload.MaxFileSize,
		MaxFileSizeLabel: formatUploadLimit(upload.MaxFileSize),
		MaxFiles:         upload.MaxFiles,
		AllowedTypes:     upload.AllowedTypes,
		Accept:           acceptExtensions(upload.AllowedTypes),
		FieldName:        documentsField,
	}}
}

func (h *PropertiesHandler) Get(c *gin.Context) {
	response.Success(c, gin.H{"properties": h.properties})
}
