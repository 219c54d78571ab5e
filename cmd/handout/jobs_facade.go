package main

import (
	"context"
	"fmt"
	"strings"

	"handout/internal/api"
	"handout/internal/queue"
)

// jobsAPI is the job surface shared by the daemon client and the offline
// store fallback.
type jobsAPI interface {
	List(ctx context.Context, statuses []string) ([]api.Job, error)
	Get(ctx context.Context, id string) (*api.Job, error)
	Cancel(ctx context.Context, id string) (api.CancelResponse, error)
	ClearFinished(ctx context.Context) (int64, error)
	// Online reports whether a daemon is serving the calls.
	Online() bool
}

type jobsHTTPAdapter struct {
	client *api.Client
}

func (a *jobsHTTPAdapter) List(ctx context.Context, statuses []string) ([]api.Job, error) {
	return a.client.List(ctx, statuses)
}

func (a *jobsHTTPAdapter) Get(ctx context.Context, id string) (*api.Job, error) {
	return a.client.Get(ctx, id)
}

func (a *jobsHTTPAdapter) Cancel(ctx context.Context, id string) (api.CancelResponse, error) {
	return a.client.Cancel(ctx, id)
}

func (a *jobsHTTPAdapter) ClearFinished(ctx context.Context) (int64, error) {
	return a.client.ClearFinished(ctx)
}

func (a *jobsHTTPAdapter) Online() bool { return true }

type jobsStoreAdapter struct {
	store *queue.Store
}

func (a *jobsStoreAdapter) List(ctx context.Context, statuses []string) ([]api.Job, error) {
	filter, err := parseStatuses(statuses)
	if err != nil {
		return nil, err
	}
	jobs, err := a.store.List(ctx, filter...)
	if err != nil {
		return nil, err
	}
	return api.SortJobsNewestFirst(api.FromJobs(jobs)), nil
}

func (a *jobsStoreAdapter) Get(ctx context.Context, id string) (*api.Job, error) {
	job, err := a.store.Get(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}
	view := api.FromJob(job)
	return &view, nil
}

// Cancel marks the job in the database. A running job only stops once a
// daemon picks the request up; at the next start it is resolved to
// cancelled.
func (a *jobsStoreAdapter) Cancel(ctx context.Context, id string) (api.CancelResponse, error) {
	status, err := a.store.RequestCancel(ctx, id)
	if err != nil {
		return api.CancelResponse{}, err
	}
	return api.CancelResponse{ID: id, Status: string(status)}, nil
}

func (a *jobsStoreAdapter) ClearFinished(ctx context.Context) (int64, error) {
	return a.store.ClearFinished(ctx)
}

func (a *jobsStoreAdapter) Online() bool { return false }

func parseStatuses(values []string) ([]queue.Status, error) {
	var out []queue.Status
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, ok := queue.ParseStatus(part)
			if !ok {
				return nil, fmt.Errorf("unknown status %q", part)
			}
			out = append(out, status)
		}
	}
	return out, nil
}
