// Package sequencer runs the provisioning sequence: a fixed, ordered table
// of steps with a declared failure policy each. Recoverable failures are
// collected as incidents and reported at run end; fatal failures abort.
package sequencer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	perrors "provkit/internal/errors"
	"provkit/internal/parser"
	"provkit/pkg/dbrun"
	"provkit/pkg/profile"
)

// Step is one discrete unit of the provisioning sequence. Which steps are
// fatal and which taints they set or require is data here, not control flow,
// so the whole policy is auditable in the step table.
type Step struct {
	Name   string
	Policy Policy
	// Requires lists taints that invalidate this step's preconditions;
	// if any is set the step is skipped with a recorded incident.
	Requires []Taint
	// Taints are set when this step fails recoverably.
	Taints []Taint
	Action func(ctx context.Context, st *state) error
}

// Deps bundles the external collaborators a run drives. All database and
// process access goes through these, which keeps the engine free of tool
// syntax and makes the step table testable with fakes.
type Deps struct {
	DB       dbrun.SQLClient
	Launcher dbrun.Launcher
	Store    dbrun.KeyValueStore
}

// Engine executes the step table against one profile.
type Engine struct {
	profile *profile.Profile
	deps    Deps
	steps   []Step
	log     *slog.Logger
}

const validateStepName = "Validate inputs"

// New builds an engine for the given profile and collaborators.
func New(p *profile.Profile, deps Deps) *Engine {
	return &Engine{
		profile: p,
		deps:    deps,
		steps:   buildSteps(p, deps),
		log:     slog.Default(),
	}
}

// StepNames returns the ordered step table, for display and auditing.
func (e *Engine) StepNames() []string {
	names := make([]string, len(e.steps))
	for i, s := range e.steps {
		names[i] = s.Name
	}
	return names
}

// Run validates the profile and executes the step table in order. An invalid
// profile aborts before any step runs and before any external call is made.
func (e *Engine) Run(ctx context.Context) RunResult {
	runID := uuid.New().String()
	e.log.Info("Starting provisioning run",
		"runId", runID,
		"customer", e.profile.Customer.Name,
		"schemaVersion", e.profile.Customer.SchemaVersion)

	if err := parser.Validate(e.profile); err != nil {
		e.log.Error("Profile validation failed", "runId", runID, "error", err)
		return RunResult{
			Status:    StatusAborted,
			RunID:     runID,
			FatalStep: validateStepName,
			Err: perrors.NewValidationError(validateStepName,
				err.Error(), "fix the profile and run again", err),
		}
	}

	st := newState()

	for _, step := range e.steps {
		if taint, ok := st.firstTaint(step.Requires); ok {
			msg := fmt.Sprintf("skipped: an earlier failure left %s", taint)
			st.recordSkip(step.Name, msg)
			e.log.Warn("Skipping step", "runId", runID, "step", step.Name, "taint", string(taint))
			continue
		}

		e.log.Info("Executing step", "runId", runID, "step", step.Name, "policy", step.Policy.String())
		started := time.Now()
		err := step.Action(ctx, st)
		duration := time.Since(started)

		if err == nil {
			e.log.Info("Step completed", "runId", runID, "step", step.Name, "duration", duration)
			continue
		}

		if step.Policy == Fatal {
			e.log.Error("Fatal step failed, aborting run",
				"runId", runID, "step", step.Name, "duration", duration, "error", err)
			return RunResult{
				Status:    StatusAborted,
				RunID:     runID,
				Incidents: st.incidents,
				FatalStep: step.Name,
				Err:       fmt.Errorf("%s: %w", step.Name, err),
			}
		}

		st.record(step.Name, err.Error())
		for _, t := range step.Taints {
			st.taint(t)
		}
		e.log.Warn("Recoverable step failed, continuing",
			"runId", runID, "step", step.Name, "duration", duration, "error", err)
	}

	status := StatusCompletedClean
	if len(st.incidents) > 0 {
		status = StatusCompletedWithIncidents
	}
	e.log.Info("Provisioning run finished", "runId", runID, "status", string(status), "incidents", len(st.incidents))

	return RunResult{Status: status, RunID: runID, Incidents: st.incidents}
}
