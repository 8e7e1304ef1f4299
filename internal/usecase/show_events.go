package usecase

import (
	"context"
	"fmt"

	"github.com/runoshun/gastown/internal/domain"
)

// DefaultEventLimit is the number of events shown when no limit is given.
const DefaultEventLimit = 50

// ShowEventsInput contains the parameters for querying the journal.
type ShowEventsInput struct {
	JobID string // Restrict to one job (optional)
	Type  string // Restrict to one event type (optional)
	Limit int
}

// ShowEventsOutput contains the events, newest first.
type ShowEventsOutput struct {
	Events []domain.Event
}

// ShowEvents is the use case for reading the event journal.
type ShowEvents struct {
	events domain.EventLog
}

// NewShowEvents creates a new ShowEvents use case.
func NewShowEvents(events domain.EventLog) *ShowEvents {
	return &ShowEvents{events: events}
}

// Execute queries the journal.
func (uc *ShowEvents) Execute(ctx context.Context, in ShowEventsInput) (*ShowEventsOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	events, err := uc.events.Query(ctx, domain.EventQuery{JobID: in.JobID, Type: in.Type, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return &ShowEventsOutput{Events: events}, nil
}
