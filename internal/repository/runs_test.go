package repository

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/ocr-watcher/constants"
)

func openTestRepo(t *testing.T) RunRepository {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, Config{DSN: ":memory:"}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close(nil) })

	repo := NewRunRepository(db, nil)
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// running it twice is harmless
	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	return repo
}

func TestRunRepository_RoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	started := time.Date(2024, 5, 6, 7, 8, 9, 123456789, time.UTC)
	rec := RunRecord{
		ID:          uuid.New(),
		Source:      "/scan/scan-001.pdf",
		OCROutput:   "/ocr/scan-001.pdf",
		Destination: "/final/PO-20-0002_SPO-21-0001.pdf",
		Codes:       []string{"PO-20-0002", "SPO-21-0001"},
		Status:      constants.RunStatusClassified,
		StartedAt:   started,
		FinishedAt:  started.Add(1500 * time.Millisecond),
	}
	if err := repo.Record(ctx, rec); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := repo.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1", len(got))
	}
	if !reflect.DeepEqual(got[0], rec) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got[0], rec)
	}
}

func TestRunRepository_ListOrderFilterLimit(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	statuses := []constants.RunStatus{
		constants.RunStatusClassified,
		constants.RunStatusUnmatched,
		constants.RunStatusClassified,
		constants.RunStatusOCRFailed,
		constants.RunStatusClassified,
	}
	for i, s := range statuses {
		rec := RunRecord{
			Source:     "f.pdf",
			Status:     s,
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + time.Second),
		}
		if s == constants.RunStatusOCRFailed {
			rec.Error = "OCR_FAILED: ocr engine: exit code 6"
		}
		if err := repo.Record(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	all, err := repo.List(ctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(statuses) {
		t.Fatalf("got %d rows", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].StartedAt.After(all[i-1].StartedAt) {
			t.Fatalf("rows not newest first at %d", i)
		}
	}
	if all[0].Codes != nil {
		t.Fatalf("empty codes should come back nil, got %v", all[0].Codes)
	}

	classified, err := repo.List(ctx, ListOptions{Status: constants.RunStatusClassified, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(classified) != 2 {
		t.Fatalf("got %d classified rows, want 2", len(classified))
	}
	if !classified[0].StartedAt.Equal(base.Add(4 * time.Minute)) {
		t.Fatalf("newest classified run first, got %v", classified[0].StartedAt)
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[constants.RunStatus]int{
		constants.RunStatusClassified: 3,
		constants.RunStatusUnmatched:  1,
		constants.RunStatusOCRFailed:  1,
	}
	if !reflect.DeepEqual(counts, want) {
		t.Fatalf("counts = %v, want %v", counts, want)
	}
}

func TestRunRepository_DuplicateIDRejected(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	rec := RunRecord{ID: uuid.New(), Source: "a.pdf", Status: constants.RunStatusUnmatched}
	if err := repo.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := repo.Record(ctx, rec); err == nil {
		t.Fatal("second insert with the same id should fail")
	}
}

func TestIsPostgres(t *testing.T) {
	tests := map[string]bool{
		"postgres://u:p@localhost/db":    true,
		"postgresql://localhost/db":      true,
		"ocr-journal.db":                 false,
		":memory:":                       false,
		"file:journal.db?_pragma=wal(1)": false,
	}
	for dsn, want := range tests {
		if got := IsPostgres(dsn); got != want {
			t.Errorf("IsPostgres(%q) = %v, want %v", dsn, got, want)
		}
	}
}
