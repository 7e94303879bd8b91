package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/intervalmerge/internal/history"
	"github.com/JonMunkholm/intervalmerge/internal/interval"
	"github.com/JonMunkholm/intervalmerge/internal/measurement"
	"github.com/JonMunkholm/intervalmerge/internal/spreadsheet"
	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
)

const testHeader = "Datum/Zeit;Temp;Flow"

// monthFile returns an export covering every mark of year/month. Each drop
// index removes that mark.
func monthFile(year int, month time.Month, drop ...int) string {
	skip := make(map[int]bool, len(drop))
	for _, i := range drop {
		skip[i] = true
	}

	var b strings.Builder
	b.WriteString("Station Wernau\n\n")
	b.WriteString(testHeader + "\n")
	grid := interval.MonthGrid(interval.NewInstant(year, month, 1, 0, 15))
	i := 0
	for at := range grid.All() {
		if !skip[i] {
			fmt.Fprintf(&b, "%s;%d,5;%d\n", at.Format(), i%30, i)
		}
		i++
	}
	return b.String()
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

// memRecorder keeps runs in memory.
type memRecorder struct {
	mu   sync.Mutex
	runs []history.Run
}

func (m *memRecorder) RecordRun(_ context.Context, run history.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memRecorder) RecentRuns(context.Context, int) ([]history.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Run(nil), m.runs...), nil
}

func (m *memRecorder) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memRecorder) Close() error { return nil }

func TestService_ValidateFolder(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"2023_02.txt":    monthFile(2023, time.February),
		"2023_03.txt":    monthFile(2023, time.March, 500),
		"noheader.txt":   "Zeit;Temp\n01.02.2023 00:15;1\n",
		"empty.txt":      testHeader + "\n",
		"incomplete.txt": testHeader + "\n01.02.2023 00:15;1\n",
		"notes.csv":      "ignored",
	})
	rec := &memRecorder{}
	svc := NewService(Options{Recorder: rec, Workers: 2})

	report, err := svc.ValidateFolder(context.Background(), dir)
	if err != nil {
		t.Fatalf("ValidateFolder: %v", err)
	}

	wantOrder := []string{"2023_02.txt", "2023_03.txt", "empty.txt", "incomplete.txt", "noheader.txt"}
	var gotOrder []string
	for _, res := range report.Results {
		gotOrder = append(gotOrder, res.Name)
	}
	if diff := cmp.Diff(wantOrder, gotOrder); diff != "" {
		t.Errorf("result order mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"2023_02.txt"}, report.Valid()); diff != "" {
		t.Errorf("Valid() mismatch (-want +got):\n%s", diff)
	}

	wantCodes := map[string]string{
		"2023_03.txt":    "TS003",
		"empty.txt":      "TS002",
		"incomplete.txt": "ROW001",
		"noheader.txt":   "HDR001",
	}
	for name, code := range wantCodes {
		res, ok := report.Lookup(name)
		if !ok {
			t.Errorf("no result for %s", name)
			continue
		}
		if res.Code() != code {
			t.Errorf("%s: Code = %q, want %q (reason %q)", name, res.Code(), code, res.Reason())
		}
	}

	gap, _ := report.Lookup("2023_03.txt")
	missing := interval.MonthGrid(interval.NewInstant(2023, time.March, 1, 0, 15)).Instants()[500]
	if !strings.Contains(gap.Reason(), missing.Format()) {
		t.Errorf("reason %q does not name %s", gap.Reason(), missing)
	}

	ok, _ := report.Lookup("2023_02.txt")
	if ok.Rows != 28*interval.MarksPerDay {
		t.Errorf("Rows = %d, want %d", ok.Rows, 28*interval.MarksPerDay)
	}

	if len(rec.runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(rec.runs))
	}
	run := rec.runs[0]
	if run.Kind != history.KindValidate || run.ID != report.RunID || len(run.Files) != 5 || run.ValidCount() != 1 {
		t.Errorf("recorded run = %+v", run)
	}
}

func TestService_ValidateFolder_Missing(t *testing.T) {
	svc := NewService(Options{})
	_, err := svc.ValidateFolder(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, measurement.ErrFolderNotFound) {
		t.Fatalf("error = %v, want ErrFolderNotFound", err)
	}
}

func TestService_ValidateFolder_Cancelled(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.txt": monthFile(2023, time.February)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewService(Options{}).ValidateFolder(ctx, dir)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestService_ValidateFolder_Extension(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.csv": monthFile(2023, time.February),
		"b.txt": monthFile(2023, time.February),
	})
	report, err := NewService(Options{Extension: ".csv"}).ValidateFolder(context.Background(), dir)
	if err != nil {
		t.Fatalf("ValidateFolder: %v", err)
	}
	if diff := cmp.Diff([]string{"a.csv"}, report.Valid()); diff != "" {
		t.Errorf("Valid() mismatch (-want +got):\n%s", diff)
	}
}

func TestService_ValidateReader(t *testing.T) {
	svc := NewService(Options{})

	res := svc.ValidateReader(context.Background(), "upload.txt", strings.NewReader(monthFile(2024, time.February)))
	if !res.Valid() {
		t.Fatalf("leap February rejected: %s", res.Reason())
	}
	if res.Rows != 29*interval.MarksPerDay {
		t.Errorf("Rows = %d, want %d", res.Rows, 29*interval.MarksPerDay)
	}

	res = svc.ValidateReader(context.Background(), "upload.txt", strings.NewReader("garbage"))
	if res.Code() != "HDR001" {
		t.Errorf("Code = %q, want HDR001", res.Code())
	}
}

func TestService_Columns(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.txt": monthFile(2023, time.February)})
	svc := NewService(Options{})

	cols, err := svc.Columns(context.Background(), dir, "a.txt")
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	if diff := cmp.Diff([]string{"Datum/Zeit", "Temp", "Flow"}, cols); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}

	if _, err := svc.Columns(context.Background(), dir, "../a.txt"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("traversal error = %v, want ErrInvalidRequest", err)
	}
	if _, err := svc.Columns(context.Background(), dir, "missing.txt"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}
}

func TestService_Export(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"2023_02.txt": monthFile(2023, time.February),
		"2023_03.txt": monthFile(2023, time.March, 0),
	})
	rec := &memRecorder{}
	svc := NewService(Options{Recorder: rec})
	out := filepath.Join(t.TempDir(), "out", spreadsheet.DefaultFileName)

	result, err := svc.Export(context.Background(), ExportRequest{
		Folder:     dir,
		Files:      []string{"2023_02.txt", "2023_03.txt"},
		Column1:    "Temp",
		Column2:    " Flow ",
		OutputPath: out,
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if diff := cmp.Diff([]string{"2023_02.txt"}, result.Included); diff != "" {
		t.Errorf("Included mismatch (-want +got):\n%s", diff)
	}
	if len(result.Skipped) != 1 || result.Skipped[0].Name != "2023_03.txt" || result.Skipped[0].Code() != "TS003" {
		t.Errorf("Skipped = %+v", result.Skipped)
	}
	if result.Rows != 28*interval.MarksPerDay {
		t.Errorf("Rows = %d, want %d", result.Rows, 28*interval.MarksPerDay)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(spreadsheet.SheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != result.Rows+1 {
		t.Fatalf("sheet has %d rows, want %d", len(rows), result.Rows+1)
	}
	if diff := cmp.Diff([]string{"Datum/Zeit", "Temp", "Flow"}, rows[0]); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}

	if len(rec.runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(rec.runs))
	}
	run := rec.runs[0]
	if run.Kind != history.KindExport || run.Output != out || len(run.Files) != 2 {
		t.Errorf("recorded run = %+v", run)
	}
}

func TestService_ExportKeepsRequestOrder(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"feb.txt": monthFile(2023, time.February),
		"mar.txt": monthFile(2023, time.March),
	})

	var written []measurement.ProjectedRow
	svc := NewService(Options{
		Workers: 2,
		Write: func(_ string, header []string, rows []measurement.ProjectedRow) error {
			written = rows
			return nil
		},
	})

	result, err := svc.Export(context.Background(), ExportRequest{
		Folder:     dir,
		Files:      []string{"mar.txt", "feb.txt", "mar.txt"},
		Column1:    "Flow",
		Column2:    "Temp",
		OutputPath: "unused.xlsx",
	})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if diff := cmp.Diff([]string{"mar.txt", "feb.txt"}, result.Included); diff != "" {
		t.Errorf("Included mismatch (-want +got):\n%s", diff)
	}
	marRows := 31 * interval.MarksPerDay
	if len(written) != marRows+28*interval.MarksPerDay {
		t.Fatalf("wrote %d rows", len(written))
	}
	if got := written[0].At; got != interval.NewInstant(2023, time.March, 1, 0, 15) {
		t.Errorf("first row at %s, want 01.03.2023 00:15", got)
	}
	if got := written[marRows].At; got != interval.NewInstant(2023, time.February, 1, 0, 15) {
		t.Errorf("first February row at %s, want 01.02.2023 00:15", got)
	}
	if written[0].Value1 != "0" || written[0].Value2 != "0,5" {
		t.Errorf("first row values = %q %q, want Flow then Temp", written[0].Value1, written[0].Value2)
	}
}

func TestService_ExportNoData(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"gap.txt": monthFile(2023, time.February, 10),
		"ok.txt":  monthFile(2023, time.February),
	})
	out := filepath.Join(t.TempDir(), spreadsheet.DefaultFileName)
	rec := &memRecorder{}
	svc := NewService(Options{Recorder: rec})

	tests := []struct {
		name     string
		files    []string
		column   string
		wantCode string
	}{
		{name: "all files invalid", files: []string{"gap.txt"}, column: "Temp", wantCode: "TS003"},
		{name: "unknown column", files: []string{"ok.txt"}, column: "Pressure", wantCode: "COL001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Export(context.Background(), ExportRequest{
				Folder:     dir,
				Files:      tt.files,
				Column1:    tt.column,
				Column2:    "Flow",
				OutputPath: out,
			})
			if !errors.Is(err, spreadsheet.ErrNoData) {
				t.Fatalf("error = %v, want ErrNoData", err)
			}
			if result == nil || len(result.Skipped) != 1 || result.Skipped[0].Code() != tt.wantCode {
				t.Fatalf("result = %+v", result)
			}
			if _, statErr := os.Stat(out); !errors.Is(statErr, os.ErrNotExist) {
				t.Errorf("workbook should not exist, stat err = %v", statErr)
			}
		})
	}

	for _, run := range rec.runs {
		if run.Output != "" {
			t.Errorf("run %s recorded output %q", run.ID, run.Output)
		}
	}
}

func TestService_ExportLogsEachFileOnce(t *testing.T) {
	dir := writeFiles(t, map[string]string{"ok.txt": monthFile(2023, time.February)})

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	svc := NewService(Options{})
	_, err := svc.Export(context.Background(), ExportRequest{
		Folder: dir, Files: []string{"ok.txt"}, Column1: "Pressure", Column2: "Flow",
		OutputPath: filepath.Join(t.TempDir(), spreadsheet.DefaultFileName),
	})
	if !errors.Is(err, spreadsheet.ErrNoData) {
		t.Fatalf("error = %v, want ErrNoData", err)
	}

	logs := buf.String()
	if n := strings.Count(logs, "file=ok.txt"); n != 1 {
		t.Errorf("ok.txt logged %d times, want once:\n%s", n, logs)
	}
	if strings.Contains(logs, "file validated") || !strings.Contains(logs, "code=COL001") {
		t.Errorf("want a single rejection with COL001:\n%s", logs)
	}
}

func TestService_ExportWriteError(t *testing.T) {
	dir := writeFiles(t, map[string]string{"ok.txt": monthFile(2023, time.February)})
	boom := errors.New("disk full")
	svc := NewService(Options{Write: func(string, []string, []measurement.ProjectedRow) error { return boom }})

	result, err := svc.Export(context.Background(), ExportRequest{
		Folder: dir, Files: []string{"ok.txt"}, Column1: "Temp", Column2: "Flow", OutputPath: "x.xlsx",
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if result == nil || result.Rows != 28*interval.MarksPerDay {
		t.Errorf("result = %+v", result)
	}
}

func TestService_ExportInvalidRequest(t *testing.T) {
	svc := NewService(Options{})
	valid := ExportRequest{Folder: t.TempDir(), Files: []string{"a.txt"}, Column1: "Temp", Column2: "Flow", OutputPath: "out.xlsx"}

	tests := []struct {
		name   string
		mutate func(*ExportRequest)
	}{
		{name: "no files", mutate: func(r *ExportRequest) { r.Files = nil }},
		{name: "blank files", mutate: func(r *ExportRequest) { r.Files = []string{" ", ""} }},
		{name: "missing column", mutate: func(r *ExportRequest) { r.Column2 = "  " }},
		{name: "missing output", mutate: func(r *ExportRequest) { r.OutputPath = "" }},
		{name: "path traversal", mutate: func(r *ExportRequest) { r.Files = []string{"../secret.txt"} }},
		{name: "nested path", mutate: func(r *ExportRequest) { r.Files = []string{"sub/a.txt"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			if _, err := svc.Export(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestService_RecordsToSQLite(t *testing.T) {
	ctx := context.Background()
	dir := writeFiles(t, map[string]string{"ok.txt": monthFile(2023, time.February)})

	rec, err := history.NewSQLite(ctx, filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer rec.Close()

	svc := NewService(Options{Recorder: rec})
	report, err := svc.ValidateFolder(ctx, dir)
	if err != nil {
		t.Fatalf("ValidateFolder: %v", err)
	}

	runs, err := rec.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != report.RunID || runs[0].ValidCount() != 1 {
		t.Errorf("runs = %+v", runs)
	}
}
