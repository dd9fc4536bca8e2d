package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"nondetify/internal/driver"
	"nondetify/internal/ui"
)

type batchOutcome struct {
	outcomes []driver.Outcome
	err      error
}

// runBatchWithUI runs the batch in the background and renders its progress
// until the driver finishes. Quitting the view cancels units not yet started.
func runBatchWithUI(ctx context.Context, title string, units []driver.Unit, opts driver.Options) ([]driver.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan driver.Event, 256)
	outcomeCh := make(chan batchOutcome, 1)

	go func() {
		runOpts := opts
		runOpts.Progress = driver.ChannelSink{Ch: events}
		outcomes, err := driver.Run(ctx, units, runOpts)
		close(events)
		outcomeCh <- batchOutcome{outcomes: outcomes, err: err}
	}()

	paths := make([]string, len(units))
	for i, u := range units {
		paths[i] = u.IR
	}
	model := ui.NewProgressModel(title, paths, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	// UI закрывается сам только после конца прогона; иначе это Ctrl+C
	cancel()
	// после выхода из UI дочитываем события, иначе воркеры заблокируются
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	if uiErr != nil && outcome.err == nil {
		return outcome.outcomes, uiErr
	}
	return outcome.outcomes, outcome.err
}
