// Package query holds the analytical query every benchmark scenario runs and
// the statements that materialize its result.
package query

import (
	"fmt"
	"strings"
)

const Query = `SELECT
  re.id AS experiment_id,
  re.name AS experiment_name,
  re.status,
  e.session_id,
  e.user_id,
  get_json_object(e.event_properties, '$.variant_id') AS variant_id,
  e.event_time AS exposure_time
FROM us_dpe_production_silver.base_amplitude_sensitive.base_amplitude__events e
INNER JOIN us_dpe_production_silver.base_growthbook.base_growthbook__experiments re
  ON get_json_object(e.event_properties, '$.experiment_id') = re.name
WHERE
  e.event_type = 'experiment:expose'
  AND (re.status = 'running' OR re.date_created >= DATE_SUB(CURRENT_DATE(), 90))
  AND e.event_time >= '2025-01-01'
`

// Columns lists the result columns of Query in select order.
var Columns = []string{
	"experiment_id",
	"experiment_name",
	"status",
	"session_id",
	"user_id",
	"variant_id",
	"exposure_time",
}

type TableFormat string

const (
	FormatDefault TableFormat = ""
	FormatDelta   TableFormat = "DELTA"
)

func FullTableName(catalog, table string) string {
	return fmt.Sprintf("%s.default.%s", catalog, table)
}

// CreateTableAs returns a CTAS statement materializing Query into
// <catalog>.default.<table>.
func CreateTableAs(catalog, table string, format TableFormat) (string, error) {
	if strings.TrimSpace(catalog) == "" {
		return "", fmt.Errorf("catalog is required")
	}
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("table name is required")
	}
	var b strings.Builder
	b.WriteString("CREATE OR REPLACE TABLE ")
	b.WriteString(FullTableName(catalog, table))
	b.WriteString(" ")
	if format != FormatDefault {
		b.WriteString("USING ")
		b.WriteString(string(format))
		b.WriteString(" ")
	}
	b.WriteString("AS ")
	b.WriteString(Query)
	return b.String(), nil
}
