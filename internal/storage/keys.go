package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var keyComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// ArtifactKey lays out mirrored files as
// date=YYYY-MM-DD/<scenario>/<run id>/<file name>, dated in UTC.
func ArtifactKey(startedAt time.Time, scenario, runID, fileName string) (string, error) {
	if err := validateKeyComponent(scenario, "scenario"); err != nil {
		return "", err
	}
	if err := validateKeyComponent(runID, "run id"); err != nil {
		return "", err
	}
	if err := validateKeyComponent(fileName, "file name"); err != nil {
		return "", err
	}
	ts := startedAt.UTC()
	return path.Join(
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		scenario,
		runID,
		fileName,
	), nil
}

func validateKeyComponent(value, field string) error {
	if !keyComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
