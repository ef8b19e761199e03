package service

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docrank/internal/filestore"
)

const maxArchiveNameLen = 120

// ArchiveService keeps the raw bytes of uploaded documents. A nil store
// turns Save into a no-op.
type ArchiveService struct {
	store filestore.Store
	now   func() time.Time
}

func NewArchiveService(store filestore.Store) *ArchiveService {
	return &ArchiveService{store: store, now: time.Now}
}

func (s *ArchiveService) Enabled() bool {
	return s != nil && s.store != nil
}

// Save writes data under a fresh key derived from name and returns the key.
func (s *ArchiveService) Save(ctx context.Context, name string, data []byte) (string, error) {
	if !s.Enabled() {
		return "", nil
	}
	key := archiveKey(s.now(), name)
	if err := s.store.Save(ctx, key, nopCloser{bytes.NewReader(data)}, int64(len(data))); err != nil {
		return "", fmt.Errorf("archive %s: %w", name, err)
	}
	logutil.GetLogger(ctx).Debug("document archived", zap.String("file", name), zap.String("key", key))
	return key, nil
}

func archiveKey(now time.Time, name string) string {
	return now.UTC().Format("20060102T150405") + "-" + newID()[:12] + "-" + sanitizeName(name)
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == ' ' || r < 0x20:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" || out == "." || out == "_" {
		out = "document"
	}
	if runes := []rune(out); len(runes) > maxArchiveNameLen {
		out = string(runes[len(runes)-maxArchiveNameLen:])
	}
	return out
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
