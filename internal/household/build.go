package household

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Table is the normalized household table. It is never modified after
// BuildTable returns; a refresh builds a new one.
type Table struct {
	rows    []Row
	columns []string
}

// timeLayouts are tried in order. Layouts without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// BuildTable flattens records into rows, renames appliance columns, parses
// Time and stable-sorts the rows by it. A single bad Time fails the build.
func BuildTable(records []RawRecord) (*Table, error) {
	t := &Table{rows: make([]Row, 0, len(records))}
	known := make(map[string]bool)
	addColumn := func(name string) {
		if !known[name] {
			known[name] = true
			t.columns = append(t.columns, name)
		}
	}

	for _, rec := range records {
		row := Row{
			Sensor: rec.Sensor,
			values: make(map[string]any, len(rec.Data)),
		}

		var (
			rawTime any
			hasTime bool
		)
		for _, f := range rec.Data {
			switch f.Key {
			case ColumnTime:
				rawTime, hasTime = f.Value, true
				addColumn(ColumnTime)
			case ColumnSensor:
				// The record's own identity takes precedence.
				addColumn(ColumnSensor)
			default:
				name := ApplianceLabel(f.Key)
				row.values[name] = f.Value
				addColumn(name)
			}
		}
		addColumn(ColumnSensor)

		if !hasTime {
			return nil, &TimeParseError{ObjectID: rec.ObjectID, Sensor: rec.Sensor}
		}
		ts, ok := parseTime(rawTime)
		if !ok {
			return nil, &TimeParseError{ObjectID: rec.ObjectID, Sensor: rec.Sensor, Value: rawTime}
		}
		row.Time = ts

		t.rows = append(t.rows, row)
	}

	sort.SliceStable(t.rows, func(i, j int) bool {
		return t.rows[i].Time.Before(t.rows[j].Time)
	})

	return t, nil
}

// parseTime accepts the timestamp strings sensors are known to send, or a
// JSON number holding Unix seconds.
func parseTime(v any) (time.Time, bool) {
	switch v := v.(type) {
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	case float64:
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	}
	return time.Time{}, false
}

// Len returns the number of rows; zero for a nil table.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// row returns the i-th row in time order.
func (t *Table) row(i int) Row {
	return t.rows[i]
}

// Columns returns the union of all row columns in first-seen order.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}
