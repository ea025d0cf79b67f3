package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestArtifactKey(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 22, 5, 0, 0, time.FixedZone("x", -5*3600))
	key, err := ArtifactKey(ts, "warehouse_sql_download", "0c5d3c1e-8b8e-4c61-9b38-5d1f3d0a0b11", "assignments.parquet")
	if err != nil {
		t.Fatalf("ArtifactKey() error = %v", err)
	}
	want := "date=2026-02-20/warehouse_sql_download/0c5d3c1e-8b8e-4c61-9b38-5d1f3d0a0b11/assignments.parquet"
	if key != want {
		t.Fatalf("ArtifactKey() = %q, want %q", key, want)
	}
}

func TestArtifactKeyRejectsInvalidComponent(t *testing.T) {
	if _, err := ArtifactKey(time.Now(), "../oops", "run-1", "a.txt"); err == nil {
		t.Fatal("expected invalid scenario error")
	}
	if _, err := ArtifactKey(time.Now(), "scenario", "", "a.txt"); err == nil {
		t.Fatal("expected invalid run id error")
	}
}

func TestUploadFileStreamsContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.txt")
	if err := os.WriteFile(path, []byte("OK  12.3s\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	store := &recordingStore{}

	info, err := UploadFile(context.Background(), store, "k/result.txt", path, ContentTypeText)
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if info.Size != 10 || store.body != "OK  12.3s\n" || store.contentType != ContentTypeText {
		t.Fatalf("upload = %+v body=%q type=%q", info, store.body, store.contentType)
	}
}

func TestUploadFileMissingSource(t *testing.T) {
	_, err := UploadFile(context.Background(), &recordingStore{}, "k", filepath.Join(t.TempDir(), "nope"), ContentTypeText)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

type recordingStore struct {
	body        string
	contentType string
}

func (r *recordingStore) Upload(_ context.Context, key string, body io.Reader, size int64, contentType string) (ArtifactInfo, error) {
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, body)
	r.body = buf.String()
	r.contentType = contentType
	return ArtifactInfo{Key: key, Size: size}, nil
}
