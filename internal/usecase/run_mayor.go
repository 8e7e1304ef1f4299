package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/runoshun/gastown/internal/domain"
)

// MayorRunner is a coordinator loop that can be run in the foreground.
type MayorRunner interface {
	domain.Coordinator
	Run(ctx context.Context) error
}

// CommandSource delivers operator commands written by other processes.
type CommandSource interface {
	// Watch calls handle for each command; a command handle rejects is
	// set aside by the source.
	Watch(ctx context.Context, fallback time.Duration, handle func(domain.OperatorCommand) error) error
}

// RunMayorInput contains the parameters for running the mayor.
type RunMayorInput struct {
	Commands      <-chan domain.OperatorCommand // Interactive commands (optional)
	OnError       func(cmd domain.OperatorCommand, err error) // May be called concurrently
	WatchInterval time.Duration // Inbox rescan interval
}

// RunMayor is the use case for running the coordinator loop.
type RunMayor struct {
	mayor  MayorRunner
	inbox  CommandSource
	logger domain.Logger
}

// NewRunMayor creates a new RunMayor use case.
func NewRunMayor(mayor MayorRunner, inbox CommandSource, logger domain.Logger) *RunMayor {
	return &RunMayor{mayor: mayor, inbox: inbox, logger: logger}
}

// Execute runs the mayor until it is told to quit or ctx is done.
// Commands from the inbox and from in.Commands are delivered to it.
func (uc *RunMayor) Execute(ctx context.Context, in RunMayorInput) error {
	feedCtx, stopFeeds := context.WithCancel(ctx)
	defer stopFeeds()

	runErr := make(chan error, 1)
	go func() { runErr <- uc.mayor.Run(ctx) }()

	deliver := func(cmd domain.OperatorCommand) error {
		err := cmd.Validate()
		if err == nil {
			err = domain.Deliver(feedCtx, uc.mayor, cmd)
		}
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		uc.logger.Warn(cmd.JobID, "inbox", fmt.Sprintf("%s command failed: %v", cmd.Kind, err))
		if in.OnError != nil {
			in.OnError(cmd, err)
		}
		return err
	}

	watchErr := make(chan error, 1)
	go func() { watchErr <- uc.inbox.Watch(feedCtx, in.WatchInterval, deliver) }()
	var watching <-chan error = watchErr

	commands := in.Commands
	for {
		select {
		case err := <-runErr:
			stopFeeds()
			if watching != nil {
				if wErr := <-watching; wErr != nil {
					uc.logger.Warn("", "inbox", "watch inbox: "+wErr.Error())
				}
			}
			return err
		case err := <-watching:
			// The mayor keeps running on interactive commands only
			watching = nil
			if err != nil {
				uc.logger.Error("", "inbox", "watch inbox: "+err.Error())
			}
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			_ = deliver(cmd)
		}
	}
}
