package handler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docrank/internal/config"
)

func TestFormatUploadLimit(t *testing.T) {
	require.Equal(t, "0MB", formatUploadLimit(0))
	require.Equal(t, "1MB", formatUploadLimit(100))
	require.Equal(t, "10MB", formatUploadLimit(10*1024*1024))
}

func TestResolveType(t *testing.T) {
	allowed := []string{config.MimePDF, config.MimeText}

	mediaType, ok := resolveType("text/plain; charset=utf-8", "notes", allowed)
	require.True(t, ok)
	require.Equal(t, config.MimeText, mediaType)

	mediaType, ok = resolveType("application/octet-stream", "paper.PDF", allowed)
	require.True(t, ok)
	require.Equal(t, config.MimePDF, mediaType)

	_, ok = resolveType("", "report.docx", allowed)
	require.False(t, ok)
	_, ok = resolveType("image/png", "image.png", allowed)
	require.False(t, ok)

	require.Equal(t, []string{".pdf", ".txt"}, acceptExtensions(allowed))
}
