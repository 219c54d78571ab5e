package daemon_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"handout/internal/api"
	"handout/internal/config"
	"handout/internal/daemon"
	"handout/internal/logging"
	"handout/internal/progress"
	"handout/internal/queue"
	"handout/internal/runspec"
	"handout/internal/stage"
	"handout/internal/taskrunner"
	"handout/internal/testsupport"
	"handout/internal/workflow"
)

func noop() stage.Handler {
	return stage.HandlerFunc(func(context.Context, runspec.Run, stage.Reporter) (runspec.Patch, error) {
		return runspec.Patch{}, nil
	})
}

func newDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *queue.Store) {
	t.Helper()
	d, store, _ := newDaemonWithEvents(t, cfg)
	return d, store
}

func newDaemonWithEvents(t *testing.T, cfg *config.Config) (*daemon.Daemon, *queue.Store, *progress.SSEPublisher) {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	runner := taskrunner.NewGroup(1)
	t.Cleanup(func() { _ = runner.Close() })
	o, err := workflow.New(store, workflow.Stages{
		Acquire: noop(), Captions: noop(), Frames: noop(), Refine: noop(),
		Render: noop(), Compress: noop(), Artifacts: noop(),
	}, runner, workflow.WithLogger(logging.NewNop()))
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}
	events := progress.NewSSEPublisher()
	t.Cleanup(events.Close)
	d, err := daemon.New(cfg, store, o, events, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, store, events
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body, out any) int {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &payload)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	video := filepath.Join(t.TempDir(), "lecture.mp4")
	testsupport.WriteFile(t, video, 1024)

	var created api.JobResponse
	if code := doJSON(t, srv, http.MethodPost, "/api/jobs", "", api.NewSubmitRequest(video), &created); code != http.StatusCreated {
		t.Fatalf("submit status = %d", code)
	}
	if created.Job.ID == "" || created.Job.Status != string(queue.StatusPending) {
		t.Fatalf("unexpected job %+v", created.Job)
	}

	var list api.JobListResponse
	if code := doJSON(t, srv, http.MethodGet, "/api/jobs?status=pending", "", nil, &list); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if len(list.Jobs) != 1 || list.Jobs[0].ID != created.Job.ID {
		t.Fatalf("unexpected list %+v", list.Jobs)
	}

	var cancel api.CancelResponse
	if code := doJSON(t, srv, http.MethodPost, "/api/jobs/"+created.Job.ID+"/cancel", "", nil, &cancel); code != http.StatusOK {
		t.Fatalf("cancel status = %d", code)
	}
	if cancel.Status != string(queue.StatusCancelled) {
		t.Fatalf("pending job should cancel immediately, got %s", cancel.Status)
	}

	var got api.JobResponse
	if code := doJSON(t, srv, http.MethodGet, "/api/jobs/"+created.Job.ID, "", nil, &got); code != http.StatusOK {
		t.Fatalf("get status = %d", code)
	}
	if got.Job.Status != string(queue.StatusCancelled) {
		t.Fatalf("status = %s", got.Job.Status)
	}

	var cleared api.ClearResponse
	if code := doJSON(t, srv, http.MethodDelete, "/api/jobs?finished=true", "", nil, &cleared); code != http.StatusOK {
		t.Fatalf("clear status = %d", code)
	}
	if cleared.Removed != 1 {
		t.Fatalf("removed = %d", cleared.Removed)
	}
	if code := doJSON(t, srv, http.MethodGet, "/api/jobs/"+created.Job.ID, "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("cleared job status = %d", code)
	}
}

func TestEventStreamOutlivesReadTimeout(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _, events := newDaemonWithEvents(t, cfg)
	srv := httptest.NewUnstartedServer(d.Handler())
	srv.Config.ReadTimeout = 100 * time.Millisecond
	srv.Start()
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL + "/api/events?channel=" + progress.Channel("job-1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("subscribe status %d", resp.StatusCode)
	}

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	// Publish well after the read deadline would have fired.
	time.Sleep(400 * time.Millisecond)
	event := progress.Event{JobID: "job-1", Stage: stage.Acquire, Progress: 0.1, Status: "running"}
	if err := events.Publish(context.Background(), "job-1", event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before the event arrived")
			}
			if strings.HasPrefix(line, "data:") && strings.Contains(line, `"job_id":"job-1"`) {
				return
			}
		case <-timeout:
			t.Fatal("event never arrived")
		}
	}
}

func TestHTTPErrorMapping(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	invalid := api.SubmitRequest{Source: api.SubmitSource{Kind: "hls"}}
	if code := doJSON(t, srv, http.MethodPost, "/api/jobs", "", invalid, nil); code != http.StatusBadRequest {
		t.Fatalf("invalid submit status = %d", code)
	}
	if code := doJSON(t, srv, http.MethodPost, "/api/jobs/missing/cancel", "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("cancel missing status = %d", code)
	}
	if code := doJSON(t, srv, http.MethodGet, "/api/jobs?status=bogus", "", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad status filter = %d", code)
	}
	if code := doJSON(t, srv, http.MethodDelete, "/api/jobs", "", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("clear without filter = %d", code)
	}
}

func TestTokenRequiredWhenSecretConfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.TokenSecret = "s3cret"
	d, _ := newDaemon(t, cfg)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	if code := doJSON(t, srv, http.MethodGet, "/api/jobs", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous list status = %d", code)
	}
	if code := doJSON(t, srv, http.MethodGet, "/api/jobs", "not-a-jwt", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("garbage token status = %d", code)
	}
	forged, err := api.MintToken("other", "cli", time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	if code := doJSON(t, srv, http.MethodGet, "/api/jobs", forged, nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("wrong-secret token status = %d", code)
	}

	token, err := api.MintToken(cfg.API.TokenSecret, "cli", time.Hour)
	if err != nil {
		t.Fatalf("MintToken: %v", err)
	}
	if code := doJSON(t, srv, http.MethodGet, "/api/jobs", token, nil, nil); code != http.StatusOK {
		t.Fatalf("authorized list status = %d", code)
	}

	var health api.HealthResponse
	if code := doJSON(t, srv, http.MethodGet, "/api/health", "", nil, &health); code != http.StatusOK {
		t.Fatalf("health status = %d", code)
	}
	if health.Status != "ok" {
		t.Fatalf("health = %+v", health)
	}
}

func TestStatusReportsWorkflow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, store := newDaemon(t, cfg)
	testsupport.SubmitFile(t, store, filepath.Join(t.TempDir(), "x.mp4"), runspec.Features{})
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	var status api.DaemonStatus
	if code := doJSON(t, srv, http.MethodGet, "/api/status", "", nil, &status); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if status.Running {
		t.Fatal("daemon should not report running before Run")
	}
	if status.Workflow.Capacity != 1 || status.Workflow.JobStats[string(queue.StatusPending)] != 1 {
		t.Fatalf("unexpected workflow %+v", status.Workflow)
	}
	if status.JobsDBPath != cfg.JobsDBPath() || len(status.Dependencies) != 3 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestRunHoldsLockAndRecoversStuckJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.LLM.APIKey = ""
	d, store := newDaemon(t, cfg)

	job := testsupport.SubmitFile(t, store, filepath.Join(t.TempDir(), "x.mp4"), runspec.Features{})
	if _, err := store.NextPending(context.Background()); err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	stale := filepath.Join(cfg.Paths.WorkDir, "expired-job")
	fresh := filepath.Join(cfg.Paths.WorkDir, job.ID)
	for _, dir := range []string{stale, fresh} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	expired := time.Now().Add(-cfg.CacheTTL() - time.Hour)
	if err := os.Chtimes(stale, expired, expired); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	other := flock.New(cfg.LockPath())
	deadline := time.Now().Add(5 * time.Second)
	for {
		ok, err := other.TryLock()
		if err != nil {
			t.Fatalf("TryLock: %v", err)
		}
		if !ok {
			break
		}
		_ = other.Unlock()
		if time.Now().After(deadline) {
			t.Fatal("daemon never took the lock")
		}
		time.Sleep(10 * time.Millisecond)
	}

	for {
		recovered, err := store.Get(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if recovered.Status == queue.StatusFailed {
			if recovered.ErrorMessage != queue.DaemonStopReason {
				t.Fatalf("unexpected failure message %q", recovered.ErrorMessage)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stuck job not recovered: %+v", recovered)
		}
		time.Sleep(10 * time.Millisecond)
	}

	for {
		if _, err := os.Stat(stale); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expired work directory was not swept")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("recent work directory removed: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)

	held := flock.New(cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v %v", ok, err)
	}
	defer held.Unlock()

	if err := d.Run(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}
