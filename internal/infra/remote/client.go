// Package remote drives the remote agent execution service through its CLI.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/runoshun/gastown/internal/domain"
)

// maxOutputInError bounds how much command output is quoted in errors.
const maxOutputInError = 500

// Client implements domain.RemoteService by running the service CLI.
// Fields are ordered to minimize memory padding.
type Client struct {
	runner  Runner
	command string
	args    []string // Prepended to every invocation
}

// NewClient creates a client for the configured CLI.
func NewClient(cfg domain.RemoteConfig, runner Runner) *Client {
	command := cfg.Command
	if command == "" {
		command = domain.DefaultRemoteCommand
	}
	return &Client{runner: runner, command: command, args: cfg.Args}
}

// Ensure Client implements domain.RemoteService interface.
var _ domain.RemoteService = (*Client)(nil)

// startResponse is the JSON output of `start`.
type startResponse struct {
	ID    string `json:"id"`
	JobID string `json:"job_id"`
}

// statusResponse is the JSON output of `status`.
type statusResponse struct {
	State       string `json:"state"`
	CurrentStep string `json:"current_step"`
	DiffRef     string `json:"diff_ref"`
	PRURL       string `json:"pr_url"`
	Error       string `json:"error"`
}

// errorResponse is the JSON error body the CLI prints on failure.
type errorResponse struct {
	Error *struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// Submit runs `start` and returns the service's job id as the handle.
func (c *Client) Submit(ctx context.Context, req domain.SubmitRequest) (string, error) {
	args := []string{"start", "--prompt", req.Task, "--branch", req.Branch}
	for _, f := range req.ContextFiles {
		args = append(args, "--context", f)
	}
	args = append(args, "--format", "json")

	out, err := c.run(ctx, req.HookPath, args...)
	if err != nil {
		return "", err
	}

	handle := parseHandle(out)
	if handle == "" {
		return "", fmt.Errorf("%s start: no job id in output: %s", c.command, truncate(out))
	}
	return handle, nil
}

// Poll runs `status` for the handle.
func (c *Client) Poll(ctx context.Context, handle string) (domain.PollStatus, error) {
	out, err := c.run(ctx, "", "status", handle, "--format", "json")
	if err != nil {
		return domain.PollStatus{}, err
	}

	var resp statusResponse
	if err := json.Unmarshal(bytes.TrimSpace(out), &resp); err != nil {
		return domain.PollStatus{}, fmt.Errorf("%s status: parse output: %w", c.command, err)
	}

	state := domain.RemoteState(strings.ToUpper(strings.TrimSpace(resp.State)))
	if !state.IsValid() {
		return domain.PollStatus{}, fmt.Errorf("%s status: unknown state %q", c.command, resp.State)
	}

	diffRef := resp.DiffRef
	if diffRef == "" {
		diffRef = resp.PRURL
	}
	return domain.PollStatus{
		State:   state,
		Step:    resp.CurrentStep,
		DiffRef: diffRef,
		Error:   resp.Error,
	}, nil
}

// Cancel runs `cancel` for the handle.
func (c *Client) Cancel(ctx context.Context, handle string) error {
	_, err := c.run(ctx, "", "cancel", handle)
	return err
}

// run executes the CLI. A declared error body becomes a *domain.RemoteError,
// whether or not the process exited non-zero.
func (c *Client) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := Command{
		Program: c.command,
		Dir:     dir,
		Args:    append(append([]string{}, c.args...), args...),
	}
	stdout, stderr, err := c.runner.Run(ctx, cmd)

	if remoteErr := parseRemoteError(stdout); remoteErr != nil {
		return nil, remoteErr
	}
	if err != nil {
		if remoteErr := parseRemoteError(stderr); remoteErr != nil {
			return nil, remoteErr
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%s %s: %w", c.command, args[0], err)
		}
		return nil, fmt.Errorf("%s %s: %w: %s", c.command, args[0], err, truncate(stderr))
	}
	return stdout, nil
}

// parseRemoteError extracts a declared error body from command output.
func parseRemoteError(out []byte) *domain.RemoteError {
	out = bytes.TrimSpace(out)
	if len(out) == 0 || out[0] != '{' {
		return nil
	}
	var resp errorResponse
	if err := json.Unmarshal(out, &resp); err != nil || resp.Error == nil {
		return nil
	}
	status := domain.RemoteState(strings.ToUpper(resp.Error.Status))
	if status == "" {
		status = domain.RemoteFailed
	}
	return &domain.RemoteError{Status: status, Message: resp.Error.Message}
}

var handlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[Jj]ob\s*[Ii][Dd]:\s*(\S+)`),
	regexp.MustCompile(`[Ss]tarted\s+job:\s*(\S+)`),
	regexp.MustCompile(`(?m)^([a-f0-9-]{36})$`),
}

// parseHandle reads the job id from JSON output, falling back to the
// plain-text forms older CLI versions print.
func parseHandle(out []byte) string {
	var resp startResponse
	if err := json.Unmarshal(bytes.TrimSpace(out), &resp); err == nil {
		if resp.ID != "" {
			return resp.ID
		}
		return resp.JobID
	}
	for _, p := range handlePatterns {
		if m := p.FindSubmatch(out); m != nil {
			return string(m[1])
		}
	}
	return ""
}

func truncate(out []byte) string {
	s := strings.TrimSpace(string(out))
	if len(s) > maxOutputInError {
		return s[:maxOutputInError] + "..."
	}
	return s
}
