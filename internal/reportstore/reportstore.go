// Package reportstore persists the outcome of batch runs so that corpus
// scores can be compared across model versions.
//
// Two implementations exist: [postgres.Store] for shared deployments and
// [memstore.Store] for tests and for runs without a configured database.
package reportstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/editscore/internal/batch"
)

// ErrNotFound is returned by [Store.Run] for unknown run IDs.
var ErrNotFound = errors.New("reportstore: run not found")

// Run is one persisted batch run.
type Run struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Summary   *batch.Summary `json:"summary"`
}

// NewRun wraps s in a [Run] with a fresh random ID and the current time.
func NewRun(s *batch.Summary) *Run {
	return &Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		Summary:   s,
	}
}

// Store persists batch runs. Implementations must be safe for concurrent use.
type Store interface {
	// SaveRun stores run. Saving an ID twice is an error.
	SaveRun(ctx context.Context, run *Run) error

	// Run returns the run with the given ID, or an error wrapping
	// [ErrNotFound].
	Run(ctx context.Context, id string) (*Run, error)
}
