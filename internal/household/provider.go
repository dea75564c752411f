package household

import (
	"context"
	"time"
)

// ObjectStore abstracts the container holding the raw sensor objects
// (e.g. Azure Blob Storage, S3).
type ObjectStore interface {
	Name() string
	List(ctx context.Context) ([]string, error)
	Download(ctx context.Context, objectID string) ([]byte, error)
}

// Payload is one downloaded object body waiting to be decoded.
type Payload struct {
	ObjectID string
	// SensorHint is used when the body does not name its sensor.
	SensorHint string
	Body       []byte
}

// Slot is the contract the published-table holder must satisfy.
type Slot interface {
	Publish(snapshot *Snapshot)
	Current() *Snapshot
}

// Recorder receives refresh cycle outcomes. A nil Recorder is allowed.
type Recorder interface {
	CycleFinished(result string, elapsed time.Duration)
	DecodeFailures(n int)
	Published(rows, sensors int, at time.Time)
}
