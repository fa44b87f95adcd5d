// Package history records trailer renders and uploads in SQLite so the
// agent can report what it produced across restarts.
package history

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Render is one Create request handed to the encoder.
type Render struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Sources   int       `json:"sources"`
	Targets   []string  `json:"targets"`
	Plan      string    `json:"plan"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Upload is one trailer file pushed to the upload host.
type Upload struct {
	ID        string    `json:"id"`
	RenderID  string    `json:"render_id"`
	Path      string    `json:"path"`
	Link      string    `json:"link,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewID() string {
	return uuid.NewString()
}
