package history

import (
	"time"

	"mercator-hq/corsgate/pkg/config"

	"github.com/google/uuid"
)

// Record is one stored policy change.
type Record struct {
	// ID is a UUID v4 assigned when the record is created.
	ID string `json:"id"`

	// At is when the change happened.
	At time.Time `json:"at"`

	// Source is what triggered the change: env, api, file or reset.
	Source string `json:"source"`

	// Success is false for rejected updates and failed reloads.
	Success bool `json:"success"`

	// Revision is the active revision after the change; zero after a reset.
	Revision uint64 `json:"revision"`

	// PreviousRevision is the active revision before the change.
	PreviousRevision uint64 `json:"previousRevision"`

	// Errors lists the validation errors of a rejected change.
	Errors []config.FieldError `json:"errors,omitempty"`

	// Policy is the snapshot active after the change, nil after a reset.
	Policy *config.Policy `json:"policy,omitempty"`
}

// NewRecord builds a Record from a store change event.
func NewRecord(ev config.ChangeEvent) Record {
	r := Record{
		ID:      uuid.NewString(),
		At:      ev.At.UTC(),
		Source:  string(ev.Source),
		Success: ev.Success,
		Errors:  ev.Errors,
	}
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	if ev.Previous != nil {
		r.PreviousRevision = ev.Previous.Revision
	}
	if ev.Current != nil {
		p := ev.Current.Clone()
		r.Policy = &p
		r.Revision = p.Revision
	}
	return r
}
