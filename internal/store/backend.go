package store

import (
	"context"

	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("attendance.persist")

// DefaultNamespace is the key the state blob is stored under.
const DefaultNamespace = "smart_attendance_state_v1"

// Backend keeps the serialized attendance state. Load returns an error
// satisfying errors.NotFound when nothing has been saved yet.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
	Healthy(ctx context.Context) bool
	Close() error
}
