package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	ContentTypeParquet = "application/vnd.apache.parquet"
	ContentTypeText    = "text/plain; charset=utf-8"
)

type ArtifactInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ArtifactStore mirrors benchmark outputs off the local machine.
type ArtifactStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (ArtifactInfo, error)
}

// UploadFile streams a local file into the store under key.
func UploadFile(ctx context.Context, store ArtifactStore, key, localPath, contentType string) (ArtifactInfo, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return ArtifactInfo{}, fmt.Errorf("open artifact %q: %w", localPath, err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return ArtifactInfo{}, fmt.Errorf("stat artifact %q: %w", localPath, err)
	}
	return store.Upload(ctx, key, file, stat.Size(), contentType)
}
