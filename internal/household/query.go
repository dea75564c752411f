package household

import "sort"

// The query methods below read a single table snapshot. They never fail:
// a nil table, an unknown sensor or an empty filter yields an empty result.

// Sensors returns the distinct sensor identities, sorted.
func (t *Table) Sensors() []string {
	sensors := []string{}
	if t == nil {
		return sensors
	}
	seen := make(map[string]bool)
	for _, r := range t.rows {
		if !seen[r.Sensor] {
			seen[r.Sensor] = true
			sensors = append(sensors, r.Sensor)
		}
	}
	sort.Strings(sensors)
	return sensors
}

// Dates returns the distinct calendar days a sensor has rows for, sorted.
func (t *Table) Dates(sensor string) []Date {
	dates := []Date{}
	if t == nil {
		return dates
	}
	seen := make(map[Date]bool)
	for _, r := range t.rows {
		if r.Sensor != sensor {
			continue
		}
		d := DateOf(r.Time)
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })
	return dates
}

// ApplianceColumns returns, in table column order, the columns that hold
// numeric readings for the sensor on the given day. Time, sensor and the
// Unix index are never included, nor are columns that are empty or carry a
// non-numeric value within that day.
func (t *Table) ApplianceColumns(sensor string, date Date) []string {
	columns := []string{}
	rows := t.filter(sensor, date)
	if len(rows) == 0 {
		return columns
	}

	for _, col := range t.columns {
		if nonApplianceColumns[col] {
			continue
		}
		if numericColumn(rows, col) {
			columns = append(columns, col)
		}
	}
	return columns
}

func numericColumn(rows []Row, col string) bool {
	numeric := false
	for _, r := range rows {
		v, ok := r.values[col]
		if !ok || v == nil {
			continue
		}
		if _, isNum := v.(float64); !isNum {
			return false
		}
		numeric = true
	}
	return numeric
}

// Series returns the appliance readings of a sensor on a day in ascending
// time order. Rows without a numeric value for the appliance are skipped.
func (t *Table) Series(sensor string, date Date, appliance string) []Point {
	points := []Point{}
	for _, r := range t.filter(sensor, date) {
		v, ok := r.Number(appliance)
		if !ok {
			continue
		}
		points = append(points, Point{Time: r.Time, Value: v})
	}
	return points
}

// HasRows reports whether the sensor has any row on the given day,
// whatever columns that row carries.
func (t *Table) HasRows(sensor string, date Date) bool {
	if t == nil {
		return false
	}
	for _, r := range t.rows {
		if r.Sensor == sensor && DateOf(r.Time) == date {
			return true
		}
	}
	return false
}

// filter keeps time order since rows are already sorted.
func (t *Table) filter(sensor string, date Date) []Row {
	if t == nil {
		return nil
	}
	var rows []Row
	for _, r := range t.rows {
		if r.Sensor == sensor && DateOf(r.Time) == date {
			rows = append(rows, r)
		}
	}
	return rows
}
