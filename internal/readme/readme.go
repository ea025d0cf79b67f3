// Package readme rewrites the benchmark tables in README.md from result
// files. Edits are line based and leave everything else byte for byte.
package readme

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dbxbench/dbxbench/internal/bench"
)

const InstanceSectionHeading = "Appendix: Instance details"

var (
	ErrSectionNotFound = errors.New("instance details section not found")
	ErrTableNotFound   = errors.New("instance details table not found")
)

// Groups: 1 script column through its closing pipe, 2 link text stem,
// 3 link target stem, 4 time token.
var rowPattern = regexp.MustCompile(`^(\| \[(\w+)\.py\]\((?:benchmarks/)?(\w+)\.py\)\s+\|)\s+([\d.]+s)`)

// ParseTime returns the first "<number>s" token of a result file body,
// without the unit.
func ParseTime(text string) (string, bool) {
	outcome, ok := bench.ParseResult(text)
	if !ok {
		return "", false
	}
	return outcome.Seconds, true
}

// CollectTimes maps result file stems to their recorded time. Files without a
// time token are skipped.
func CollectTimes(resultsDir string) (map[string]string, error) {
	paths, err := filepath.Glob(filepath.Join(resultsDir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("list result files: %w", err)
	}
	times := make(map[string]string, len(paths))
	for _, path := range paths {
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read result file %q: %w", path, err)
		}
		if value, ok := ParseTime(string(body)); ok {
			times[strings.TrimSuffix(filepath.Base(path), ".txt")] = value
		}
	}
	return times, nil
}

// UpdateResultRows replaces the time cell of every result row whose script
// has a known time. The new value is right-padded to the old cell width so
// column alignment survives. It returns the rewritten text and the number of
// rows changed.
func UpdateResultRows(text string, times map[string]string) (string, int) {
	lines := strings.Split(text, "\n")
	updated := 0
	for i, line := range lines {
		loc := rowPattern.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		name := line[loc[4]:loc[5]]
		if name != line[loc[6]:loc[7]] {
			continue
		}
		value, ok := times[name]
		if !ok {
			continue
		}
		oldTime := line[loc[8]:loc[9]]
		newTime := value + "s"
		if pad := len(oldTime) - len(newTime); pad > 0 {
			newTime += strings.Repeat(" ", pad)
		}
		lines[i] = line[:loc[8]] + newTime + line[loc[9]:]
		updated++
	}
	return strings.Join(lines, "\n"), updated
}

// ReplaceInstanceTable swaps the first markdown table after the instance
// details heading for table.
func ReplaceInstanceTable(text string, table []string) (string, error) {
	lines := strings.Split(text, "\n")

	heading := -1
	for i, line := range lines {
		if strings.Contains(line, InstanceSectionHeading) {
			heading = i
			break
		}
	}
	if heading < 0 {
		return "", ErrSectionNotFound
	}

	start, end := -1, -1
	for i := heading + 1; i < len(lines); i++ {
		if strings.HasPrefix(lines[i], "|") {
			if start < 0 {
				start = i
			}
			end = i
			continue
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return "", ErrTableNotFound
	}

	out := make([]string, 0, len(lines)-(end-start+1)+len(table))
	out = append(out, lines[:start]...)
	out = append(out, table...)
	out = append(out, lines[end+1:]...)
	return strings.Join(out, "\n"), nil
}

// RenderTable formats rows as a left-aligned markdown table. The first row
// is the header and is followed by a dash separator.
func RenderTable(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}
	columns := 0
	for _, row := range rows {
		columns = max(columns, len(row))
	}
	widths := make([]int, columns)
	for _, row := range rows {
		for j, cell := range row {
			widths[j] = max(widths[j], utf8.RuneCountInString(cell))
		}
	}

	out := make([]string, 0, len(rows)+1)
	for i, row := range rows {
		cells := make([]string, columns)
		for j := range cells {
			var cell string
			if j < len(row) {
				cell = row[j]
			}
			cells[j] = cell + strings.Repeat(" ", widths[j]-utf8.RuneCountInString(cell))
		}
		out = append(out, "| "+strings.Join(cells, " | ")+" |")
		if i == 0 {
			dashes := make([]string, columns)
			for j, width := range widths {
				dashes[j] = strings.Repeat("-", width)
			}
			out = append(out, "| "+strings.Join(dashes, " | ")+" |")
		}
	}
	return out
}

// RewriteFile applies edit to the file at path, keeping its permissions.
func RewriteFile(path string, edit func(string) (string, error)) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	updated, err := edit(string(body))
	if err != nil {
		return err
	}
	if updated == string(body) {
		return nil
	}
	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
