package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/ocr-watcher/constants"
	"github.com/joseph-ayodele/ocr-watcher/internal/repository"
)

func TestExportRunsXLSX(t *testing.T) {
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{DSN: ":memory:"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close(nil)
	runs := repository.NewRunRepository(db, nil)
	if err := runs.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
	recs := []repository.RunRecord{
		{Source: "a.pdf", Destination: "final/PO-20-0001.pdf", Codes: []string{"PO-20-0001"}, Status: constants.RunStatusClassified},
		{Source: "b.pdf", Destination: "final/b.pdf", Status: constants.RunStatusUnmatched},
		{Source: "c.pdf", Status: constants.RunStatusOCRFailed, Error: "OCR_FAILED: exit code 6"},
	}
	for i, r := range recs {
		r.StartedAt = base.Add(time.Duration(i) * time.Minute)
		r.FinishedAt = r.StartedAt.Add(time.Second)
		if err := runs.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	b, err := NewService(runs, nil).ExportRunsXLSX(ctx, repository.ListOptions{})
	if err != nil {
		t.Fatalf("ExportRunsXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(runsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	if rows[0][2] != "Status" || rows[1][2] != string(constants.RunStatusOCRFailed) || rows[1][7] != "OCR_FAILED: exit code 6" {
		t.Fatalf("unexpected sheet contents %v", rows[:2])
	}
	if rows[3][3] != "PO-20-0001" {
		t.Fatalf("codes column = %q", rows[3][3])
	}

	summary, err := f.GetRows(summarySheet)
	if err != nil {
		t.Fatal(err)
	}
	last := summary[len(summary)-1]
	if last[0] != "Total" || last[1] != "3" {
		t.Fatalf("summary total row = %v", last)
	}
}
