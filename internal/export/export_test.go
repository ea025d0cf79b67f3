package export

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/parquet-go/parquet-go"
)

func TestEncodeAssignmentsTracksExposureBounds(t *testing.T) {
	early := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC).UnixMilli()
	late := time.Date(2024, 3, 2, 18, 30, 0, 0, time.UTC).UnixMilli()
	rows := []Assignment{
		{ExperimentID: strPtr("e1"), UserID: strPtr("u1"), ExposureTimeUnixMs: &late},
		{ExperimentID: strPtr("e1"), UserID: strPtr("u2"), ExposureTimeUnixMs: &early},
		{ExperimentID: strPtr("e2")},
	}

	encoded, err := EncodeAssignments(rows)
	if err != nil {
		t.Fatalf("EncodeAssignments() error = %v", err)
	}
	if encoded.RecordCount != 3 {
		t.Fatalf("RecordCount = %d", encoded.RecordCount)
	}
	if encoded.MinExposureTime == nil || encoded.MinExposureTime.UnixMilli() != early {
		t.Fatalf("MinExposureTime = %v", encoded.MinExposureTime)
	}
	if encoded.MaxExposureTime == nil || encoded.MaxExposureTime.UnixMilli() != late {
		t.Fatalf("MaxExposureTime = %v", encoded.MaxExposureTime)
	}

	reader := parquet.NewGenericReader[Assignment](bytes.NewReader(encoded.Data))
	defer func() { _ = reader.Close() }()
	decoded := make([]Assignment, 3)
	n, _ := reader.Read(decoded)
	if n != 3 {
		t.Fatalf("read rows = %d", n)
	}
	if decoded[2].UserID != nil || decoded[2].ExposureTimeUnixMs != nil {
		t.Fatalf("expected nulls to survive, got %+v", decoded[2])
	}
	if *decoded[1].UserID != "u2" {
		t.Fatalf("row 1 user = %q", *decoded[1].UserID)
	}
}

func TestScanAssignmentsMapsNulls(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	exposed := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"experiment_id", "experiment_name", "status", "session_id", "user_id", "variant_id", "exposure_time"}).
			AddRow("e1", "Button color", "running", "s1", "u1", "v1", exposed).
			AddRow("e2", nil, nil, nil, nil, nil, nil),
	)

	rows, err := db.Query("SELECT 1")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	got, err := ScanAssignments(rows)
	if err != nil {
		t.Fatalf("ScanAssignments() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d", len(got))
	}
	if *got[0].ExperimentName != "Button color" || *got[0].ExposureTimeUnixMs != exposed.UnixMilli() {
		t.Fatalf("row 0 = %+v", got[0])
	}
	if got[1].ExperimentName != nil || got[1].ExposureTimeUnixMs != nil {
		t.Fatalf("row 1 should be null, got %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestScanAssignmentsRejectsUnexpectedColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"experiment_id", "user_id"}).AddRow("e1", "u1"),
	)
	rows, err := db.Query("SELECT 1")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if _, err := ScanAssignments(rows); err == nil || !strings.Contains(err.Error(), "unexpected result columns") {
		t.Fatalf("ScanAssignments() error = %v", err)
	}
}

func TestWriteParquetFileAndInspect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "assignments.parquet")
	rows := []Assignment{
		{ExperimentID: strPtr("e1"), UserID: strPtr("u1")},
		{ExperimentID: strPtr("e1"), UserID: strPtr("u2")},
		{ExperimentID: strPtr("e2"), UserID: strPtr("u3")},
	}
	if _, err := WriteParquetFile(path, rows); err != nil {
		t.Fatalf("WriteParquetFile() error = %v", err)
	}

	summary, err := InspectParquet(context.Background(), path)
	if err != nil {
		t.Fatalf("InspectParquet() error = %v", err)
	}
	if summary.Rows != 3 || summary.DistinctExperiments != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(summary.Columns) != 7 || summary.Columns[0] != "experiment_id" {
		t.Fatalf("columns = %v", summary.Columns)
	}
}

func TestInspectParquetRequiresPath(t *testing.T) {
	if _, err := InspectParquet(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestQuoteStringEscapesQuotes(t *testing.T) {
	if got := quoteString("/tmp/o'brien.parquet"); got != "'/tmp/o''brien.parquet'" {
		t.Fatalf("quoteString() = %q", got)
	}
}

func strPtr(value string) *string {
	return &value
}

func TestCountParquetRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assignments.parquet")
	if _, err := WriteParquetFile(path, []Assignment{{ExperimentID: strPtr("e1")}}); err != nil {
		t.Fatalf("WriteParquetFile() error = %v", err)
	}
	count, err := CountParquetRows(context.Background(), path)
	if err != nil {
		t.Fatalf("CountParquetRows() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d", count)
	}
}
