package export

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/dbxbench/dbxbench/internal/query"
)

// Assignment is one row of the benchmark query result.
type Assignment struct {
	ExperimentID       *string `parquet:"experiment_id,optional"`
	ExperimentName     *string `parquet:"experiment_name,optional"`
	Status             *string `parquet:"status,optional"`
	SessionID          *string `parquet:"session_id,optional"`
	UserID             *string `parquet:"user_id,optional"`
	VariantID          *string `parquet:"variant_id,optional"`
	ExposureTimeUnixMs *int64  `parquet:"exposure_time_unix_ms,optional"`
}

type EncodeResult struct {
	Data            []byte
	RecordCount     int64
	MinExposureTime *time.Time
	MaxExposureTime *time.Time
}

// ScanAssignments drains rows produced by the benchmark query. Columns are
// read positionally, so the result must have the query's columns in select
// order.
func ScanAssignments(rows *sql.Rows) ([]Assignment, error) {
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}
	if !sameColumns(columns, query.Columns) {
		return nil, fmt.Errorf("unexpected result columns %v, want %v", columns, query.Columns)
	}

	var out []Assignment
	for rows.Next() {
		var (
			experimentID, experimentName, status sql.NullString
			sessionID, userID, variantID         sql.NullString
			exposureTime                         sql.NullTime
		)
		if err := rows.Scan(&experimentID, &experimentName, &status, &sessionID, &userID, &variantID, &exposureTime); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		item := Assignment{
			ExperimentID:   nullString(experimentID),
			ExperimentName: nullString(experimentName),
			Status:         nullString(status),
			SessionID:      nullString(sessionID),
			UserID:         nullString(userID),
			VariantID:      nullString(variantID),
		}
		if exposureTime.Valid {
			ms := exposureTime.Time.UTC().UnixMilli()
			item.ExposureTimeUnixMs = &ms
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func EncodeAssignments(rows []Assignment) (EncodeResult, error) {
	var minTime *time.Time
	var maxTime *time.Time
	for _, row := range rows {
		if row.ExposureTimeUnixMs == nil {
			continue
		}
		exposure := time.UnixMilli(*row.ExposureTimeUnixMs).UTC()
		if minTime == nil || exposure.Before(*minTime) {
			copy := exposure
			minTime = &copy
		}
		if maxTime == nil || exposure.After(*maxTime) {
			copy := exposure
			maxTime = &copy
		}
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Assignment](buf)
	if _, err := writer.Write(rows); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{
		Data:            buf.Bytes(),
		RecordCount:     int64(len(rows)),
		MinExposureTime: minTime,
		MaxExposureTime: maxTime,
	}, nil
}

// WriteParquetFile encodes rows and replaces path atomically.
func WriteParquetFile(path string, rows []Assignment) (EncodeResult, error) {
	encoded, err := EncodeAssignments(rows)
	if err != nil {
		return EncodeResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return EncodeResult{}, fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".assignments-*.parquet")
	if err != nil {
		return EncodeResult{}, fmt.Errorf("create temp parquet file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(encoded.Data); err != nil {
		_ = tmp.Close()
		return EncodeResult{}, fmt.Errorf("write parquet file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return EncodeResult{}, fmt.Errorf("move parquet file into place: %w", err)
	}
	return encoded, nil
}

func sameColumns(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if !strings.EqualFold(got[i], want[i]) {
			return false
		}
	}
	return true
}

func nullString(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}
