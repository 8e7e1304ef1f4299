package inbox

import (
	"context"

	"github.com/runoshun/gastown/internal/domain"
)

// Client implements domain.Coordinator for processes other than the mayor.
// Commands are queued in the inbox and applied when the mayor reads them.
type Client struct {
	inbox *Inbox
}

// NewClient creates a client that writes to inbox.
func NewClient(inbox *Inbox) *Client {
	return &Client{inbox: inbox}
}

// Ensure Client implements domain.Coordinator interface.
var _ domain.Coordinator = (*Client)(nil)

// Spawn queues a spawn command. The job id is assigned here so the caller
// can track the job before the mayor picks it up.
func (c *Client) Spawn(ctx context.Context, req domain.SpawnRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.JobID == "" {
		req.JobID = domain.NewJobID()
	}
	_, err := c.inbox.Send(ctx, domain.OperatorCommand{
		Kind:         domain.CommandSpawn,
		JobID:        req.JobID,
		Rig:          req.Rig,
		Task:         req.Task,
		BaseRef:      req.BaseRef,
		ContextFiles: req.ContextFiles,
		ConvoyID:     req.ConvoyID,
	})
	if err != nil {
		return "", err
	}
	return req.JobID, nil
}

// Cancel queues a cancel command.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	_, err := c.inbox.Send(ctx, domain.OperatorCommand{Kind: domain.CommandCancel, JobID: jobID})
	return err
}

// DispatchConvoy queues a dispatch command.
func (c *Client) DispatchConvoy(ctx context.Context, convoyID string, count int) error {
	_, err := c.inbox.Send(ctx, domain.OperatorCommand{Kind: domain.CommandDispatch, ConvoyID: convoyID, Count: count})
	return err
}

// Quit queues a quit, or a drain when drain is set.
func (c *Client) Quit(ctx context.Context, drain bool) error {
	kind := domain.CommandQuit
	if drain {
		kind = domain.CommandDrain
	}
	_, err := c.inbox.Send(ctx, domain.OperatorCommand{Kind: kind})
	return err
}
