// Package stage provides the named-step execution primitive used by the
// release orchestrator. A stage has a title, a one-line description and
// an optional parent (for nested recovery flows). Its body reports
// interim progress and terminates with OK or a structured failure.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
)

// ErrTagInvalidState marks stage failures: a stage's postcondition could
// not be established. These abort the run with a non-zero exit.
var ErrTagInvalidState = goerr.NewTag("invalid_state")

// UserAbort signals that no error occurred, but a human must act before
// the run can proceed (sign a tag, publish a release). It propagates out
// of the orchestrator unwrapped and results in a clean exit.
type UserAbort struct {
	Instruction string
}

func (e *UserAbort) Error() string {
	return "returning to the user to " + e.Instruction
}

// NewUserAbort creates a UserAbort carrying an actionable instruction.
func NewUserAbort(instruction string) *UserAbort {
	return &UserAbort{Instruction: instruction}
}

// AsUserAbort extracts a UserAbort from an error chain.
func AsUserAbort(err error) (*UserAbort, bool) {
	var abort *UserAbort
	if errors.As(err, &abort) {
		return abort, true
	}
	return nil, false
}

// Func is a stage body. Returning nil means the stage succeeded.
type Func func(ctx context.Context, s *Stage) error

// Stage is a single named unit of orchestration work.
type Stage struct {
	title       string
	description string
	parent      *Stage
	logger      *slog.Logger
	detail      string
}

// Title returns the stage title.
func (s *Stage) Title() string {
	return s.title
}

// Path returns the stage title prefixed with its ancestors.
func (s *Stage) Path() string {
	if s.parent == nil {
		return s.title
	}
	return s.parent.Path() + " > " + s.title
}

// Progress reports an interim status line, e.g. during polling loops.
func (s *Stage) Progress(msg string, args ...any) {
	s.logger.Info(msg, append([]any{slog.String("stage", s.Path())}, args...)...)
}

// OK records the stage as succeeded with an optional detail string.
func (s *Stage) OK(detail string) {
	s.detail = detail
	s.logger.Info("stage done",
		slog.String("stage", s.Path()),
		slog.String("detail", detail),
	)
}

// Failf builds a structured stage failure carrying the stage name. The
// returned error is tagged ErrTagInvalidState.
func (s *Stage) Failf(format string, args ...any) error {
	return goerr.New(fmt.Sprintf(format, args...),
		goerr.T(ErrTagInvalidState),
		goerr.V("stage", s.Path()),
	)
}

// Run executes a top-level stage.
func Run(ctx context.Context, title, description string, fn Func) error {
	return run(ctx, nil, title, description, fn)
}

// Run executes a nested sub-stage under s.
func (s *Stage) Run(ctx context.Context, title, description string, fn Func) error {
	return run(ctx, s, title, description, fn)
}

func run(ctx context.Context, parent *Stage, title, description string, fn Func) error {
	s := &Stage{
		title:       title,
		description: description,
		parent:      parent,
		logger:      ctxlog.From(ctx),
	}
	s.logger.Info(description, slog.String("stage", s.Path()))

	err := fn(ctx, s)
	if err == nil {
		return nil
	}
	if _, ok := AsUserAbort(err); ok {
		// A benign pause, not a failure. Propagate untouched.
		return err
	}
	if goerr.HasTag(err, ErrTagInvalidState) {
		return err
	}
	return goerr.Wrap(err, "stage failed",
		goerr.T(ErrTagInvalidState),
		goerr.V("stage", s.Path()),
	)
}
