package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/donovanhide/eventsource"
	"github.com/spf13/cobra"

	"handout/internal/api"
	"handout/internal/progress"
	"handout/internal/queue"
)

// progressPrinter renders progress events. On a terminal it redraws one
// line; elsewhere it prints a line per stage change.
type progressPrinter struct {
	out      io.Writer
	terminal bool

	mu        sync.Mutex
	lastStage string
	drawn     bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, terminal: shouldColorize(out)}
}

// Publish implements progress.Publisher so in-process runs can print
// directly.
func (p *progressPrinter) Publish(_ context.Context, _ string, event progress.Event) error {
	p.render(event)
	return nil
}

func (p *progressPrinter) render(event progress.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	line := fmt.Sprintf("%3.0f%%  %-20s %s", event.Progress*100, event.Stage, strings.TrimSpace(event.Message))
	if p.terminal {
		fmt.Fprintf(p.out, "\r\x1b[2K%s", line)
		p.drawn = true
		return
	}
	if event.Stage != p.lastStage || isTerminalEvent(event) {
		fmt.Fprintln(p.out, line)
		p.lastStage = event.Stage
	}
}

// done ends the redrawn line.
func (p *progressPrinter) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminal && p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
}

func isTerminalEvent(event progress.Event) bool {
	status, ok := queue.ParseStatus(event.Status)
	return ok && status.IsTerminal()
}

// watchJob follows a job's SSE channel until a terminal event arrives, then
// prints the final record.
func watchJob(cmd *cobra.Command, client *api.Client, job api.Job) error {
	out := cmd.OutOrStdout()
	if isFinished(job.Status) {
		fmt.Fprint(out, renderJobDetails(job))
		return nil
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, client.EventsURL(job.ID), nil)
	if err != nil {
		return err
	}
	if token := client.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	stream, err := eventsource.SubscribeWithRequest("", req)
	if err != nil {
		return fmt.Errorf("subscribe to job events: %w", err)
	}
	defer stream.Close()

	printer := newProgressPrinter(out)
	defer printer.done()
	for {
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case ev, ok := <-stream.Events:
			if !ok {
				return errors.New("event stream closed")
			}
			event, err := progress.DecodeEvent(ev.Data())
			if err != nil {
				continue
			}
			printer.render(event)
			if isTerminalEvent(event) {
				printer.done()
				return printFinal(cmd, client, job.ID)
			}
		case err, ok := <-stream.Errors:
			if !ok || errors.Is(err, io.EOF) {
				// The daemon went away or the job finished between events.
				printer.done()
				return printFinal(cmd, client, job.ID)
			}
		}
	}
}

func printFinal(cmd *cobra.Command, client *api.Client, id string) error {
	job, err := client.Get(cmd.Context(), id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}
	fmt.Fprint(cmd.OutOrStdout(), renderJobDetails(*job))
	if job.Status == string(queue.StatusFailed) {
		return fmt.Errorf("job failed: %s", job.ErrorMessage)
	}
	return nil
}

func isFinished(status string) bool {
	parsed, ok := queue.ParseStatus(status)
	return ok && parsed.IsTerminal()
}
