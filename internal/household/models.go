package household

import (
	"fmt"
	"time"
)

const (
	// ColumnTime is the raw timestamp field of every record's data object.
	ColumnTime = "Time"
	// ColumnSensor carries the household identity on every row.
	ColumnSensor = "sensor"
	// ColumnUnix is the raw epoch index some sensors report next to Time.
	ColumnUnix = "Unix"
)

// applianceLabels maps raw appliance codes to the labels shown on the dashboard.
var applianceLabels = map[string]string{
	"Appliance1": "Refrigerator",
	"Appliance2": "Washing machine",
	"Appliance3": "Dryer",
	"Appliance4": "Dish washer",
	"Appliance5": "Toaster",
	"Appliance6": "Kettle",
	"Appliance7": "Microwave",
	"Appliance8": "Oven",
	"Appliance9": "Iron",
}

// ApplianceLabel returns the human label for a raw field name, or the name
// itself when it is not a known appliance code.
func ApplianceLabel(key string) string {
	if label, ok := applianceLabels[key]; ok {
		return label
	}
	return key
}

// nonApplianceColumns are never offered as appliance columns.
var nonApplianceColumns = map[string]bool{
	ColumnTime:   true,
	ColumnSensor: true,
	ColumnUnix:   true,
}

// Field is one key/value pair of a record's data object, in document order.
type Field struct {
	Key   string
	Value any
}

// RawRecord is one decoded object from the store. It only lives for the
// duration of a refresh cycle.
type RawRecord struct {
	ObjectID string
	Sensor   string
	Data     []Field
}

// Row is the flattened, renamed form of a RawRecord.
type Row struct {
	Sensor string
	Time   time.Time

	values map[string]any
}

// value returns the value stored under column and whether the row has it.
// Time and sensor are readable through this accessor too.
func (r Row) value(column string) (any, bool) {
	switch column {
	case ColumnTime:
		return r.Time, true
	case ColumnSensor:
		return r.Sensor, true
	}
	v, ok := r.values[column]
	return v, ok
}

// Number returns the column as a float64 when it holds a JSON number.
func (r Row) Number(column string) (float64, bool) {
	v, ok := r.values[column]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Point is one sample of an appliance time series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Date is a calendar day in YYYY-MM-DD form.
type Date string

const dateLayout = "2006-01-02"

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// ParseDate validates a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: use YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return string(d)
}

// Snapshot is what a successful refresh publishes.
type Snapshot struct {
	Table       *Table
	CycleID     string
	PublishedAt time.Time // always UTC
	Objects     int
	Skipped     int
}
