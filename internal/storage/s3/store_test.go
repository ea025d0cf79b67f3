package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dbxbench/dbxbench/internal/storage"
)

func TestUploadUsesPrefixAndCleanKey(t *testing.T) {
	fake := &fakeClient{}
	mirror, err := newWithClient("bench-artifacts", "/dbxbench/prod/", fake)
	if err != nil {
		t.Fatalf("newWithClient() error = %v", err)
	}

	_, err = mirror.Upload(context.Background(), "/date=2026-01-02/warehouse_sql_download/run-1/assignments.parquet", bytes.NewBufferString("abc"), 3, storage.ContentTypeParquet)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if fake.lastBucket != "bench-artifacts" {
		t.Fatalf("bucket = %q", fake.lastBucket)
	}
	if fake.lastKey != "dbxbench/prod/date=2026-01-02/warehouse_sql_download/run-1/assignments.parquet" {
		t.Fatalf("key = %q", fake.lastKey)
	}
	if fake.lastContentType != storage.ContentTypeParquet {
		t.Fatalf("content type = %q", fake.lastContentType)
	}
}

func TestUploadRejectsPathTraversal(t *testing.T) {
	mirror, err := newWithClient("bench-artifacts", "", &fakeClient{})
	if err != nil {
		t.Fatalf("newWithClient() error = %v", err)
	}
	for _, key := range []string{"../secrets.txt", "a/../../b", "  "} {
		if _, err := mirror.Upload(context.Background(), key, bytes.NewBufferString("x"), 1, storage.ContentTypeText); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

func TestUploadWrapsClientError(t *testing.T) {
	cause := errors.New("NoSuchBucket")
	mirror, err := newWithClient("bench-artifacts", "runs", &fakeClient{putErr: cause})
	if err != nil {
		t.Fatalf("newWithClient() error = %v", err)
	}
	_, err = mirror.Upload(context.Background(), "k/result.txt", bytes.NewBufferString("x"), 1, storage.ContentTypeText)
	if !errors.Is(err, cause) || !strings.Contains(err.Error(), "runs/k/result.txt") {
		t.Fatalf("Upload() error = %v", err)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeClient{}
	mirror, err := newWithClient("bench-artifacts", "", fake)
	if err != nil {
		t.Fatalf("newWithClient() error = %v", err)
	}
	if err := mirror.ensureBucket(context.Background(), "us-west-2"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if fake.madeBucketRegion != "us-west-2" {
		t.Fatalf("MakeBucket region = %q", fake.madeBucketRegion)
	}

	fake = &fakeClient{bucketExists: true}
	mirror, _ = newWithClient("bench-artifacts", "", fake)
	if err := mirror.ensureBucket(context.Background(), "us-west-2"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if fake.madeBucketRegion != "" {
		t.Fatal("MakeBucket should not be called for an existing bucket")
	}
}

func TestUploadFileThroughMirror(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warehouse_sql_download.txt")
	if err := os.WriteFile(path, []byte("OK  1.0s\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	fake := &fakeClient{}
	mirror, _ := newWithClient("bench-artifacts", "runs", fake)

	info, err := storage.UploadFile(context.Background(), mirror, "k/result.txt", path, storage.ContentTypeText)
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if info.Size != 9 || fake.lastBody != "OK  1.0s\n" || fake.lastKey != "runs/k/result.txt" {
		t.Fatalf("info=%+v body=%q key=%q", info, fake.lastBody, fake.lastKey)
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
		wantErr    bool
	}{
		{raw: "https://minio.example.com", wantHost: "minio.example.com", wantSecure: true},
		{raw: "http://localhost:9000", wantHost: "localhost:9000"},
		{raw: "s3.amazonaws.com", useSSL: true, wantHost: "s3.amazonaws.com", wantSecure: true},
		{raw: "ftp://minio", wantErr: true},
		{raw: " ", wantErr: true},
	}
	for _, tc := range cases {
		host, secure, err := parseEndpoint(tc.raw, tc.useSSL)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseEndpoint(%q) expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error = %v", tc.raw, err)
		}
		if host != tc.wantHost || secure != tc.wantSecure {
			t.Fatalf("parseEndpoint(%q) = %q/%v", tc.raw, host, secure)
		}
	}
}

type fakeClient struct {
	lastBucket       string
	lastKey          string
	lastContentType  string
	lastBody         string
	bucketExists     bool
	madeBucketRegion string
	putErr           error
}

func (f *fakeClient) PutObject(_ context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (storage.ArtifactInfo, error) {
	f.lastBucket = bucket
	f.lastKey = key
	f.lastContentType = contentType
	body, _ := io.ReadAll(reader)
	f.lastBody = string(body)
	if f.putErr != nil {
		return storage.ArtifactInfo{}, f.putErr
	}
	return storage.ArtifactInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeClient) MakeBucket(_ context.Context, _, region string) error {
	f.madeBucketRegion = region
	return nil
}
