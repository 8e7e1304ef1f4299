package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/runoshun/gastown/internal/domain"
)

// operatorLine is a parsed interactive command. Status queries are
// answered locally; everything else is an operator command.
type operatorLine struct {
	StatusID string // Job id for /status; empty lists all jobs
	Cmd      domain.OperatorCommand
	Status   bool
	Help     bool
}

const operatorHelp = `Commands:
  /spawn <rig> <task>        queue a job
  /cancel <job-id>           cancel a job
  /status [job-id]           show one job or all jobs
  /dispatch <convoy-id> <n>  feed a convoy with n jobs in flight
  /quit                      stop, leaving remote jobs running
  /drain                     cancel every job, then stop
  /help                      show this help
`

// parseOperatorLine parses one line typed at the mayor prompt.
func parseOperatorLine(line string) (operatorLine, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return operatorLine{}, fmt.Errorf("%w: empty command", domain.ErrInvalidCommand)
	}
	name, args := fields[0], fields[1:]
	if !strings.HasPrefix(name, "/") {
		return operatorLine{}, fmt.Errorf("%w: commands start with / (try /help)", domain.ErrInvalidCommand)
	}

	var out operatorLine
	switch strings.TrimPrefix(name, "/") {
	case "spawn":
		if len(args) < 2 {
			return out, fmt.Errorf("%w: usage: /spawn <rig> <task>", domain.ErrInvalidCommand)
		}
		out.Cmd = domain.OperatorCommand{Kind: domain.CommandSpawn, Rig: args[0], Task: strings.Join(args[1:], " ")}
	case "cancel":
		if len(args) != 1 {
			return out, fmt.Errorf("%w: usage: /cancel <job-id>", domain.ErrInvalidCommand)
		}
		out.Cmd = domain.OperatorCommand{Kind: domain.CommandCancel, JobID: args[0]}
	case "dispatch":
		if len(args) != 2 {
			return out, fmt.Errorf("%w: usage: /dispatch <convoy-id> <n>", domain.ErrInvalidCommand)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return out, fmt.Errorf("%w: count must be a positive number", domain.ErrInvalidCommand)
		}
		out.Cmd = domain.OperatorCommand{Kind: domain.CommandDispatch, ConvoyID: args[0], Count: n}
	case "status", "jobs":
		if len(args) > 1 {
			return out, fmt.Errorf("%w: usage: /status [job-id]", domain.ErrInvalidCommand)
		}
		out.Status = true
		if len(args) == 1 {
			out.StatusID = args[0]
		}
	case "quit":
		out.Cmd = domain.OperatorCommand{Kind: domain.CommandQuit}
	case "drain":
		out.Cmd = domain.OperatorCommand{Kind: domain.CommandDrain}
	case "help":
		out.Help = true
	default:
		return out, fmt.Errorf("%w: unknown command %s (try /help)", domain.ErrInvalidCommand, name)
	}
	return out, nil
}
