package core

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/JonMunkholm/intervalmerge/internal/history"
	"github.com/google/uuid"
)

func TestNewScheduler(t *testing.T) {
	svc := NewService(Options{})
	ctx := context.Background()

	tests := []struct {
		name     string
		cfg      ScheduleConfig
		wantJobs int
		wantErr  bool
	}{
		{name: "nothing configured", cfg: ScheduleConfig{}, wantJobs: 0},
		{name: "prune without retention", cfg: ScheduleConfig{PruneSpec: "@daily"}, wantJobs: 0},
		{name: "both jobs", cfg: ScheduleConfig{Folder: "/data", ValidateSpec: "0 6 * * *", PruneSpec: "@daily", Retention: time.Hour}, wantJobs: 2},
		{name: "validation without folder", cfg: ScheduleConfig{ValidateSpec: "@hourly"}, wantErr: true},
		{name: "bad spec", cfg: ScheduleConfig{Folder: "/data", ValidateSpec: "soon"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScheduler(ctx, svc, tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewScheduler: %v", err)
			}
			if got := s.Jobs(); got != tt.wantJobs {
				t.Errorf("Jobs() = %d, want %d", got, tt.wantJobs)
			}
		})
	}
}

func TestScheduler_RunValidationRecords(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.txt": monthFile(2023, time.February, 3)})
	rec := &memRecorder{}
	svc := NewService(Options{Recorder: rec})

	s, err := NewScheduler(context.Background(), svc, ScheduleConfig{Folder: dir, ValidateSpec: "@daily"})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.runValidation()

	if len(rec.runs) != 1 || rec.runs[0].Kind != history.KindValidate || rec.runs[0].ValidCount() != 0 {
		t.Errorf("runs = %+v", rec.runs)
	}
}

func TestScheduler_RunValidationSkipsAfterCancel(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.txt": monthFile(2023, time.February)})
	rec := &memRecorder{}
	svc := NewService(Options{Recorder: rec})

	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewScheduler(ctx, svc, ScheduleConfig{Folder: dir, ValidateSpec: "@daily"})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	cancel()
	s.runValidation()

	if len(rec.runs) != 0 {
		t.Errorf("recorded %d runs after cancel", len(rec.runs))
	}
}

func TestScheduler_RunPrune(t *testing.T) {
	ctx := context.Background()
	rec, err := history.NewSQLite(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer rec.Close()

	now := time.Date(2024, time.June, 1, 3, 0, 0, 0, time.UTC)
	for _, age := range []time.Duration{100 * 24 * time.Hour, time.Hour} {
		run := history.Run{ID: uuid.New(), Kind: history.KindValidate, Folder: "/x", StartedAt: now.Add(-age), FinishedAt: now.Add(-age)}
		if err := rec.RecordRun(ctx, run); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	svc := NewService(Options{Recorder: rec})
	svc.now = func() time.Time { return now }

	s, err := NewScheduler(ctx, svc, ScheduleConfig{PruneSpec: "@daily", Retention: 90 * 24 * time.Hour})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.runPrune()

	runs, err := rec.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || !runs[0].StartedAt.Equal(now.Add(-time.Hour)) {
		t.Errorf("remaining runs = %+v", runs)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := NewScheduler(context.Background(), NewService(Options{}), ScheduleConfig{PruneSpec: "@daily", Retention: time.Hour})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Start()
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestNewScheduler_ErrorKind(t *testing.T) {
	_, err := NewScheduler(context.Background(), NewService(Options{}), ScheduleConfig{ValidateSpec: "@daily"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("error = %v, want ErrInvalidRequest", err)
	}
}
