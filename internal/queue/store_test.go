package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"handout/internal/queue"
	"handout/internal/runspec"
	"handout/internal/services"
	"handout/internal/testsupport"
)

func TestSubmitAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	run := runspec.New("", runspec.DirectFile("/videos/lecture.mp4"), runspec.Features{Quiz: true}, runspec.Params{})
	job, err := store.Submit(ctx, run)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected job ID to be assigned")
	}
	if job.Status != queue.StatusPending || job.SourceKind != runspec.KindDirectFile {
		t.Fatalf("unexpected job: %#v", job)
	}

	fetched, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	decoded, err := fetched.Run()
	if err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if decoded.JobID != job.ID || !decoded.Features.Quiz {
		t.Fatalf("unexpected run envelope: %+v", decoded)
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil job for unknown id, got %#v %v", missing, err)
	}
}

func TestSubmitRejectsInvalidSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	run := runspec.New("", runspec.RemoteURL("not a url"), runspec.Features{}, runspec.Params{})
	if _, err := store.Submit(context.Background(), run); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNextPendingClaimsOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.SubmitFile(t, store, "/videos/a.mp4", runspec.Features{})
	second := testsupport.SubmitFile(t, store, "/videos/b.mp4", runspec.Features{})

	claimed, err := store.NextPending(ctx)
	if err != nil {
		t.Fatalf("NextPending failed: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID || claimed.Status != queue.StatusRunning || claimed.StartedAt == nil {
		t.Fatalf("unexpected claimed job: %#v", claimed)
	}
	claimed, err = store.NextPending(ctx)
	if err != nil || claimed == nil || claimed.ID != second.ID {
		t.Fatalf("expected second job, got %#v %v", claimed, err)
	}
	claimed, err = store.NextPending(ctx)
	if err != nil || claimed != nil {
		t.Fatalf("expected empty queue, got %#v %v", claimed, err)
	}
}

func TestClaimSpecificJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.SubmitFile(t, store, "/videos/a.mp4", runspec.Features{})
	second := testsupport.SubmitFile(t, store, "/videos/b.mp4", runspec.Features{})

	claimed, err := store.Claim(ctx, second.ID)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed.ID != second.ID || claimed.Status != queue.StatusRunning {
		t.Fatalf("unexpected claimed job: %#v", claimed)
	}
	if _, err := store.Claim(ctx, second.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error on double claim, got %v", err)
	}
	if _, err := store.Claim(ctx, "missing"); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestProgressAndCompletion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.SubmitFile(t, store, "/videos/a.mp4", runspec.Features{})
	if _, err := store.NextPending(ctx); err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if err := store.UpdateProgress(ctx, job.ID, "deduplicate-frames", 0.42, "frame 3/7"); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.ProgressStage != "deduplicate-frames" || got.ProgressPercent != 0.42 || got.ProgressMessage != "frame 3/7" {
		t.Fatalf("unexpected progress: %#v", got)
	}

	outputs := map[string]string{"pdf": "output/Lecture.pdf", "source_id": "abc123"}
	if err := store.MarkCompleted(ctx, job.ID, outputs); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	got, _ = store.Get(ctx, job.ID)
	if got.Status != queue.StatusCompleted || got.ProgressPercent != 1 || got.FinishedAt == nil {
		t.Fatalf("unexpected completed job: %#v", got)
	}
	if got.Outputs["pdf"] != "output/Lecture.pdf" || got.SourceID != "abc123" {
		t.Fatalf("unexpected outputs: %#v", got)
	}

	// Terminal jobs keep their first outcome.
	if err := store.MarkFailed(ctx, job.ID, "late failure"); err != nil {
		t.Fatalf("MarkFailed on terminal job: %v", err)
	}
	if err := store.UpdateProgress(ctx, job.ID, "acquire", 0.1, ""); err != nil {
		t.Fatalf("UpdateProgress on terminal job: %v", err)
	}
	got, _ = store.Get(ctx, job.ID)
	if got.Status != queue.StatusCompleted || got.ProgressPercent != 1 {
		t.Fatalf("terminal job changed: %#v", got)
	}
}

func TestMarkFailedRecordsMessage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.SubmitFile(t, store, "/videos/a.mp4", runspec.Features{})
	if err := store.MarkFailed(ctx, job.ID, "acquire: no video stream"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.Status != queue.StatusFailed || got.ErrorMessage != "acquire: no video stream" {
		t.Fatalf("unexpected failed job: %#v", got)
	}

	if err := store.MarkFailed(ctx, "missing", "x"); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestCancellationFlow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	pending := testsupport.SubmitFile(t, store, "/videos/a.mp4", runspec.Features{})
	status, err := store.RequestCancel(ctx, pending.ID)
	if err != nil || status != queue.StatusCancelled {
		t.Fatalf("pending job should cancel immediately, got %s %v", status, err)
	}

	running := testsupport.SubmitFile(t, store, "/videos/b.mp4", runspec.Features{})
	if _, err := store.NextPending(ctx); err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	cancelling, err := store.IsCancelling(ctx, running.ID)
	if err != nil || cancelling {
		t.Fatalf("running job should not be cancelling yet: %v %v", cancelling, err)
	}
	status, err = store.RequestCancel(ctx, running.ID)
	if err != nil || status != queue.StatusCancelling {
		t.Fatalf("running job should move to cancelling, got %s %v", status, err)
	}
	cancelling, err = store.IsCancelling(ctx, running.ID)
	if err != nil || !cancelling {
		t.Fatalf("expected cancelling, got %v %v", cancelling, err)
	}
	if err := store.MarkCancelled(ctx, running.ID); err != nil {
		t.Fatalf("MarkCancelled: %v", err)
	}
	got, _ := store.Get(ctx, running.ID)
	if got.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}

	missing, err := store.IsCancelling(ctx, "deleted-job")
	if err != nil || !missing {
		t.Fatalf("missing job should count as cancelled, got %v %v", missing, err)
	}
	if _, err := store.RequestCancel(ctx, "deleted-job"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResetStuckAndClearFinished(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	running := testsupport.SubmitFile(t, store, "/videos/a.mp4", runspec.Features{})
	cancelling := testsupport.SubmitFile(t, store, "/videos/b.mp4", runspec.Features{})
	pending := testsupport.SubmitFile(t, store, "/videos/c.mp4", runspec.Features{})
	for range 2 {
		if _, err := store.NextPending(ctx); err != nil {
			t.Fatalf("NextPending: %v", err)
		}
	}
	if _, err := store.RequestCancel(ctx, cancelling.ID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}

	count, err := store.ResetStuck(ctx)
	if err != nil {
		t.Fatalf("ResetStuck: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 reset jobs, got %d", count)
	}
	got, _ := store.Get(ctx, running.ID)
	if got.Status != queue.StatusFailed || got.ErrorMessage != queue.DaemonStopReason {
		t.Fatalf("unexpected reset running job: %#v", got)
	}
	got, _ = store.Get(ctx, cancelling.ID)
	if got.Status != queue.StatusCancelled {
		t.Fatalf("unexpected reset cancelling job: %#v", got)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[queue.StatusPending] != 1 || stats[queue.StatusFailed] != 1 || stats[queue.StatusCancelled] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	removed, err := store.ClearFinished(ctx)
	if err != nil {
		t.Fatalf("ClearFinished: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	remaining, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != pending.ID {
		t.Fatalf("unexpected remaining jobs: %#v", remaining)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.SubmitFile(t, store, "/videos/a.mp4", runspec.Features{})
	testsupport.SubmitFile(t, store, "/videos/b.mp4", runspec.Features{})
	if err := store.MarkFailed(ctx, a.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	failed, err := store.List(ctx, queue.StatusFailed)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != a.ID {
		t.Fatalf("unexpected failed list: %#v", failed)
	}
	all, err := store.List(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 jobs, got %d %v", len(all), err)
	}
}

func TestSaveRunUpdatesTitleAndSourceID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := testsupport.SubmitFile(t, store, "/videos/a.mp4", runspec.Features{})
	run, err := job.Run()
	if err != nil {
		t.Fatalf("decode run: %v", err)
	}
	run.Title = "Renal Physiology"
	if err := run.SetSourceID("deadbeef"); err != nil {
		t.Fatalf("SetSourceID: %v", err)
	}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, _ := store.Get(ctx, job.ID)
	if got.Title != "Renal Physiology" || got.SourceID != "deadbeef" {
		t.Fatalf("unexpected job after SaveRun: %#v", got)
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.TableExists || !health.IntegrityCheck || len(health.MissingColumns) != 0 {
		t.Fatalf("unexpected health: %#v", health)
	}
	if health.DBPath != filepath.Join(cfg.Paths.StateDir, "jobs.db") {
		t.Fatalf("unexpected db path %q", health.DBPath)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := queue.ParseStatus(" Cancelling "); !ok || status != queue.StatusCancelling {
		t.Fatalf("unexpected parse: %s %v", status, ok)
	}
	if _, ok := queue.ParseStatus("uploading"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if !queue.StatusCancelled.IsTerminal() || queue.StatusCancelling.IsTerminal() {
		t.Fatal("unexpected terminal classification")
	}
}

func TestOpenPathMigratesOnceAndRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	store, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Submit(ctx, runspec.New("", runspec.DirectFile("/videos/a.mp4"), runspec.Features{}, runspec.Params{})); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_ = store.Close()

	reopened, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	jobs, err := reopened.List(ctx)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("reopen lost jobs: %v %d", err, len(jobs))
	}
	_ = reopened.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := queue.OpenPath(path); !errors.Is(err, queue.ErrSchemaTooNew) {
		t.Fatalf("expected ErrSchemaTooNew, got %v", err)
	}
}
