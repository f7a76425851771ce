// Package snapshot stores computed dashboard views in Postgres and announces them.
package snapshot

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// KindSummary is the yearly dashboard summary.
const KindSummary = "summary"

// ErrDuplicate signals that a snapshot for the kind and period already exists.
var ErrDuplicate = errors.New("snapshot: duplicate kind and period")

// Snapshot is one stored dashboard view.
type Snapshot struct {
	ID        uuid.UUID       `json:"id"`
	Kind      string          `json:"kind"`
	Period    string          `json:"period"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Event is published whenever a snapshot is written.
type Event struct {
	ID      uuid.UUID `json:"id"`
	Kind    string    `json:"kind"`
	Period  string    `json:"period"`
	Created bool      `json:"created"`
	At      time.Time `json:"at"`
}
