package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/labrig/internal/data"
	"github.com/nerrad567/labrig/internal/infrastructure/config"
	"github.com/nerrad567/labrig/internal/infrastructure/database"

	_ "github.com/nerrad567/labrig/migrations"
)

func testRepository(t *testing.T) *Repository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "labrig.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewRepository(db)
}

func testRun(id string) RunRecord {
	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return RunRecord{
		ID:               id,
		ExperimentID:     "exp-001",
		Experimenter:     "tester",
		State:            "done",
		StartedAt:        started,
		StoppedAt:        started.Add(2 * time.Minute),
		RecordsDelivered: 1200,
		RecordsDropped:   3,
		FaultCount:       0,
	}
}

func TestRepository_SaveAndGetRun(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	run := testRun("run-1")
	results := []DeviceResult{
		{
			DeviceStats: data.DeviceStats{
				DeviceID:   "encoder-wheel",
				DeviceType: "encoder",
				Delivered:  1000,
				Dropped:    3,
				LastSeq:    1003,
				Gaps:       3,
			},
			FinalState: "closed",
		},
		{
			DeviceStats: data.DeviceStats{
				DeviceID:   "camera-meso",
				DeviceType: "camera",
				Delivered:  200,
				LastSeq:    200,
			},
			FinalState: "closed",
		},
	}
	notes := []Note{
		{At: run.StartedAt.Add(30 * time.Second), Text: "mouse settled"},
		{At: run.StartedAt.Add(time.Minute), Text: "visible whisking"},
	}

	if err := repo.SaveRun(ctx, run, results, notes); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	got, err := repo.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.ExperimentID != run.ExperimentID || got.State != "done" {
		t.Errorf("GetRun() = %+v, want experiment exp-001 state done", got)
	}
	if got.RecordsDelivered != 1200 || got.RecordsDropped != 3 {
		t.Errorf("totals = %d/%d, want 1200/3", got.RecordsDelivered, got.RecordsDropped)
	}
	if !got.StartedAt.Equal(run.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, run.StartedAt)
	}

	devs, err := repo.DeviceResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("DeviceResults() error = %v", err)
	}
	if len(devs) != 2 {
		t.Fatalf("len(DeviceResults()) = %d, want 2", len(devs))
	}
	if devs[0].DeviceID != "encoder-wheel" || devs[0].Gaps != 3 {
		t.Errorf("first result = %+v, want encoder-wheel with 3 gaps", devs[0])
	}

	gotNotes, err := repo.Notes(ctx, "run-1")
	if err != nil {
		t.Fatalf("Notes() error = %v", err)
	}
	if len(gotNotes) != 2 {
		t.Fatalf("len(Notes()) = %d, want 2", len(gotNotes))
	}
	if gotNotes[0].Text != "mouse settled" {
		t.Errorf("first note = %q, want oldest first", gotNotes[0].Text)
	}
}

func TestRepository_NeverStartedRunArchivesWithNullTimes(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	run := RunRecord{
		ID:           "run-failed",
		ExperimentID: "exp-001",
		Experimenter: "tester",
		State:        "failed",
		FaultCount:   1,
	}
	if err := repo.SaveRun(ctx, run, nil, nil); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	got, err := repo.GetRun(ctx, "run-failed")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if !got.StartedAt.IsZero() || !got.StoppedAt.IsZero() {
		t.Errorf("times = %v/%v, want zero", got.StartedAt, got.StoppedAt)
	}
	if got.FaultCount != 1 {
		t.Errorf("FaultCount = %d, want 1", got.FaultCount)
	}
}

func TestRepository_SaveRunIsWrittenOnce(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	if err := repo.SaveRun(ctx, testRun("run-dup"), nil, nil); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if err := repo.SaveRun(ctx, testRun("run-dup"), nil, nil); err == nil {
		t.Error("second SaveRun() with same ID should fail")
	}
}

func TestRepository_GetRunNotFound(t *testing.T) {
	repo := testRepository(t)

	_, err := repo.GetRun(context.Background(), "ghost")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun(ghost) = %v, want ErrRunNotFound", err)
	}
}
