package handler

import (
	"mime"
	"strconv"
	"strings"

	"github.com/xxxsen/docrank/internal/config"
)

func formatUploadLimit(bytes int64) string {
	const mb = 1024 * 1024
	if bytes <= 0 {
		return "0MB"
	}
	value := bytes / mb
	if value <= 0 {
		value = 1
	}
	return strconv.FormatInt(value, 10) + "MB"
}

// resolveType returns the allowed media type of an upload, taken from its
// declared Content-Type or, failing that, from its extension.
func resolveType(declared, filename string, allowed []string) (string, bool) {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
		if containsType(allowed, mediaType) {
			return mediaType, true
		}
	}
	if mediaType := config.TypeByExtension(filename); mediaType != "" && containsType(allowed, mediaType) {
		return mediaType, true
	}
	return "", false
}

func containsType(allowed []string, mediaType string) bool {
	for _, t := range allowed {
		if strings.EqualFold(strings.TrimSpace(t), mediaType) {
			return true
		}
	}
	return false
}

func acceptExtensions(allowed []string) []string {
	out := make([]string, 0, 3)
	for _, ext := range []string{".pdf", ".txt", ".docx"} {
		if containsType(allowed, config.TypeByExtension(ext)) {
			out = append(out, ext)
		}
	}
	return out
}
