package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SpawnRequest asks the mayor to enqueue a job.
// Fields are ordered to minimize memory padding.
type SpawnRequest struct {
	JobID        string // Optional; generated when empty
	Rig          string
	Task         string
	BaseRef      string
	ConvoyID     string
	ContextFiles []string
	ConvoyIndex  int
}

// Validate checks the request for missing fields.
func (r SpawnRequest) Validate() error {
	if strings.TrimSpace(r.Task) == "" {
		return ErrEmptyTask
	}
	if r.Rig == "" {
		return fmt.Errorf("%w: rig is required", ErrUnknownRig)
	}
	return nil
}

// CommandKind identifies an operator command delivered through the inbox.
type CommandKind string

const (
	CommandSpawn    CommandKind = "spawn"
	CommandCancel   CommandKind = "cancel"
	CommandDispatch CommandKind = "dispatch"
	CommandQuit     CommandKind = "quit"
	CommandDrain    CommandKind = "drain"
)

// OperatorCommand is a command sent to a running mayor from another process.
// Fields are ordered to minimize memory padding.
type OperatorCommand struct {
	CreatedAt    time.Time   `json:"created_at"`
	ID           string      `json:"id"`
	Kind         CommandKind `json:"kind"`
	JobID        string      `json:"job_id,omitempty"`
	Rig          string      `json:"rig,omitempty"`
	Task         string      `json:"task,omitempty"`
	BaseRef      string      `json:"base_ref,omitempty"`
	ConvoyID     string      `json:"convoy_id,omitempty"`
	ContextFiles []string    `json:"context_files,omitempty"`
	Count        int         `json:"count,omitempty"`
}

// Validate checks that the command carries the fields its kind needs.
func (c OperatorCommand) Validate() error {
	switch c.Kind {
	case CommandSpawn:
		if strings.TrimSpace(c.Task) == "" || c.Rig == "" {
			return fmt.Errorf("%w: spawn requires rig and task", ErrInvalidCommand)
		}
	case CommandCancel:
		if c.JobID == "" {
			return fmt.Errorf("%w: cancel requires job id", ErrInvalidCommand)
		}
	case CommandDispatch:
		if c.ConvoyID == "" || c.Count <= 0 {
			return fmt.Errorf("%w: dispatch requires convoy id and positive count", ErrInvalidCommand)
		}
	case CommandQuit, CommandDrain:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCommand, c.Kind)
	}
	return nil
}

// Deliver applies a command to a coordinator.
func Deliver(ctx context.Context, coord Coordinator, cmd OperatorCommand) error {
	switch cmd.Kind {
	case CommandSpawn:
		_, err := coord.Spawn(ctx, SpawnRequest{
			JobID:        cmd.JobID,
			Rig:          cmd.Rig,
			Task:         cmd.Task,
			BaseRef:      cmd.BaseRef,
			ConvoyID:     cmd.ConvoyID,
			ContextFiles: cmd.ContextFiles,
		})
		return err
	case CommandCancel:
		return coord.Cancel(ctx, cmd.JobID)
	case CommandDispatch:
		return coord.DispatchConvoy(ctx, cmd.ConvoyID, cmd.Count)
	case CommandQuit:
		return coord.Quit(ctx, false)
	case CommandDrain:
		return coord.Quit(ctx, true)
	}
	return cmd.Validate()
}
