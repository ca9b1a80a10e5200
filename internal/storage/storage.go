// Package storage keeps proof-of-payment files (vouchers, transfer screenshots) sent with an abono.
package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PutInput struct {
	Filename    string
	ContentType string
	Size        int64
}

// PutResult.Key is the evidence reference stored on the batch.
type PutResult struct {
	Key string `json:"ref"`
	URL string `json:"url"`
}

type Storage interface {
	Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error)
	Delete(ctx context.Context, key string) error
}

// AllowedExt returns the normalised extension of an accepted evidence file, or "".
func AllowedExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".webp", ".pdf":
		return ext
	}
	return ""
}

// newKey files evidence by upload month: 2024/03/<uuid>.jpg
func newKey(now time.Time, filename string) string {
	return now.UTC().Format("2006/01") + "/" + uuid.NewString() + AllowedExt(filename)
}
