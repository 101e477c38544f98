// Package app is the facade the CLI drives: it wires the real database
// client, process launcher and settings store into the sequencer and turns
// the run result into console output and an exit decision.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"provkit/internal/dbexec"
	"provkit/internal/kvstore"
	"provkit/internal/launcher"
	"provkit/internal/parser"
	"provkit/internal/report"
	"provkit/internal/sequencer"
	"provkit/pkg/profile"
)

// Run executes the full provisioning sequence for the given profile. With
// dryRun set it prints the step table and exits without touching anything.
// The returned error is non-nil only when the run aborted or could not start;
// a run that completes with incidents returns nil after reporting them.
func Run(ctx context.Context, profilePath string, dryRun bool) error {
	reporter, err := report.NewReporter()
	if err != nil {
		return fmt.Errorf("failed to initialize reporting: %w", err)
	}
	slog.SetDefault(reporter.Logger())

	p, err := parser.Parse(profilePath)
	if err != nil {
		reporter.Handle(err)
		return fmt.Errorf("profile parsing failed: %w", err)
	}
	slog.Info("Profile parsed successfully",
		"customer", p.Customer.Name, "schemaVersion", p.Customer.SchemaVersion)

	if dryRun {
		fmt.Printf("Provisioning sequence for %s (schema %s):\n", p.Customer.Name, p.Customer.SchemaVersion)
		for i, name := range sequencer.New(p, sequencer.Deps{}).StepNames() {
			fmt.Printf("%2d. %s\n", i+1, name)
		}
		fmt.Println("Dry run completed. No steps were executed.")
		return nil
	}

	store, err := kvstore.Open(p.Paths.StoreFile)
	if err != nil {
		reporter.Handle(err)
		return fmt.Errorf("failed to open settings store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close settings store", "error", err)
		}
	}()

	deps := sequencer.Deps{
		DB:       dbexec.New(p.Database.Driver, p.Database.DSN),
		Launcher: launcher.New(),
		Store:    store,
	}
	res := sequencer.New(p, deps).Run(ctx)
	reporter.Summarize(res)

	if path, err := report.WriteSummaryFile(p.Paths.LogDir, res); err != nil {
		slog.Warn("Failed to write run summary file", "error", err)
	} else {
		fmt.Printf("Run summary written to: %s\n", path)
	}

	if res.Status == sequencer.StatusAborted {
		return fmt.Errorf("provisioning aborted at step %q: %w", res.FatalStep, res.Err)
	}
	return nil
}

// Validate parses and validates a profile without executing anything.
func Validate(profilePath string) (*profile.Profile, error) {
	return parser.Parse(profilePath)
}
