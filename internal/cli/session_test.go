package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/intervalmerge/internal/core"
	"github.com/JonMunkholm/intervalmerge/internal/interval"
	"github.com/JonMunkholm/intervalmerge/internal/spreadsheet"
)

func monthFile(year int, month time.Month, drop int) string {
	var b strings.Builder
	b.WriteString("Datum/Zeit;Temp;Flow;Pressure\n")
	i := 0
	for at := range interval.MonthGrid(interval.NewInstant(year, month, 1, 0, 15)).All() {
		if i != drop {
			fmt.Fprintf(&b, "%s;4,%d;%d;1013\n", at.Format(), i%10, i)
		}
		i++
	}
	return b.String()
}

func inputFolder(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"feb.txt": monthFile(2023, time.February, -1),
		"mar.txt": monthFile(2023, time.March, 42),
		"bad.txt": "no header here\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func runSession(t *testing.T, runner Runner, input string, presets Presets) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := NewSession(runner, strings.NewReader(input), &out, presets).Run(context.Background())
	return out.String(), err
}

func TestSession_InteractiveExport(t *testing.T) {
	in := inputFolder(t)
	outDir := t.TempDir()
	input := strings.Join([]string{
		in,
		"feb.txt, mar.txt, nope.txt",
		"Temp",
		"Flow",
		filepath.Join(outDir, "missing"),
		outDir,
	}, "\n") + "\n"

	runner := &recordingRunner{Service: core.NewService(core.Options{})}
	out, err := runSession(t, runner, input, Presets{})
	if err != nil {
		t.Fatalf("Run: %v\n%s", err, out)
	}

	if len(runner.exports) != 1 || !slices.Equal(runner.exports[0].Files, []string{"feb.txt"}) {
		t.Errorf("export requests = %+v, want only feb.txt selected", runner.exports)
	}
	if strings.Contains(out, "Skipping") {
		t.Errorf("invalid files are filtered before export, nothing should be skipped:\n%s", out)
	}

	for _, want := range []string{
		"Validating files...",
		"Invalid Files:",
		"bad.txt: ",
		"mar.txt: missing timestamps: ",
		"Valid Files:\nfeb.txt\n",
		"Available columns:\nDatum/Zeit\nTemp\nFlow\nPressure\n",
		"Folder does not exist. Please enter a valid folder path.",
		"Processing files...",
		"All data saved to " + filepath.Join(outDir, spreadsheet.DefaultFileName) + ".",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n--- output ---\n%s", want, out)
		}
	}

	if _, err := os.Stat(filepath.Join(outDir, spreadsheet.DefaultFileName)); err != nil {
		t.Errorf("workbook not written: %v", err)
	}
}

func TestSession_Presets(t *testing.T) {
	in := inputFolder(t)
	outDir := t.TempDir()

	out, err := runSession(t, core.NewService(core.Options{}), "", Presets{
		Folder:       in,
		Files:        []string{"feb.txt"},
		Column1:      "Flow",
		Column2:      "Pressure",
		OutputFolder: outDir,
		OutputFile:   "feb.xlsx",
	})
	if err != nil {
		t.Fatalf("Run: %v\n%s", err, out)
	}
	if strings.Contains(out, "Enter the") || strings.Contains(out, "> ") {
		t.Errorf("preset session prompted:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(outDir, "feb.xlsx")); err != nil {
		t.Errorf("workbook not written: %v", err)
	}
}

func TestSession_AllValid(t *testing.T) {
	in := inputFolder(t)
	outDir := t.TempDir()

	out, err := runSession(t, core.NewService(core.Options{}), "", Presets{
		Folder:       in,
		Column1:      "Temp",
		Column2:      "Flow",
		OutputFolder: outDir,
		AllValid:     true,
	})
	if err != nil {
		t.Fatalf("Run: %v\n%s", err, out)
	}
	if strings.Contains(out, "Which files") {
		t.Errorf("session asked for files:\n%s", out)
	}
	want := "All data saved to " + filepath.Join(outDir, spreadsheet.DefaultFileName) + "."
	if !strings.Contains(out, want) {
		t.Errorf("output missing %q:\n%s", want, out)
	}
}

func TestSession_Aborts(t *testing.T) {
	in := inputFolder(t)
	empty := t.TempDir()

	tests := []struct {
		name    string
		input   string
		presets Presets
		want    string
	}{
		{
			name:  "missing folder",
			input: filepath.Join(in, "nope") + "\n",
			want:  "Folder does not exist. Exiting.",
		},
		{
			name:  "no valid files",
			input: empty + "\n",
			want:  "No valid files found. Exiting.",
		},
		{
			name:  "selection filtered to nothing",
			input: in + "\nmar.txt, bad.txt\n",
			want:  "No valid files selected. Exiting.",
		},
		{
			name:  "unknown column",
			input: in + "\nfeb.txt\nTemp\nHumidity\n",
			want:  "Invalid column names. Please choose from: Datum/Zeit, Temp, Flow, Pressure",
		},
		{
			name:    "unknown preset column",
			presets: Presets{Folder: in, Files: []string{"feb.txt"}, Column1: "Temp", Column2: "Wind"},
			want:    "Invalid column names.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runSession(t, core.NewService(core.Options{}), tt.input, tt.presets)
			if !errors.Is(err, ErrAborted) {
				t.Fatalf("error = %v, want ErrAborted\n%s", err, out)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q\n--- output ---\n%s", tt.want, out)
			}
		})
	}
}

func TestSession_InputEnds(t *testing.T) {
	in := inputFolder(t)

	out, err := runSession(t, core.NewService(core.Options{}), in+"\nfeb.txt\nTemp\nFlow\n", Presets{})
	if !errors.Is(err, ErrNoInput) {
		t.Fatalf("error = %v, want ErrNoInput\n%s", err, out)
	}
}

// recordingRunner keeps every export request it forwards.
type recordingRunner struct {
	*core.Service
	exports []core.ExportRequest
}

func (r *recordingRunner) Export(ctx context.Context, req core.ExportRequest) (*core.ExportResult, error) {
	r.exports = append(r.exports, req)
	return r.Service.Export(ctx, req)
}

// staleRunner validates two files but reports the second as skipped at
// export time, as when a file changes between validation and export.
type staleRunner struct{}

func (staleRunner) ValidateFolder(context.Context, string) (*core.Report, error) {
	return &core.Report{Results: []core.FileResult{{Name: "a.txt"}, {Name: "b.txt"}}}, nil
}

func (staleRunner) Columns(context.Context, string, string) ([]string, error) {
	return []string{"Datum/Zeit", "A", "B"}, nil
}

func (staleRunner) Export(_ context.Context, req core.ExportRequest) (*core.ExportResult, error) {
	return &core.ExportResult{
		OutputPath: req.OutputPath,
		Rows:       96,
		Included:   []string{"a.txt"},
		Skipped: []core.FileResult{
			{Name: "b.txt", Err: fmt.Errorf("%w: 01.03.2023 01:30", interval.ErrMissingTimestamps)},
		},
	}, nil
}

func TestSession_PrintsSkippedFiles(t *testing.T) {
	dir := t.TempDir()
	out, err := runSession(t, staleRunner{}, "", Presets{
		Folder: dir, Files: []string{"a.txt", "b.txt"}, Column1: "A", Column2: "B", OutputFolder: dir,
	})
	if err != nil {
		t.Fatalf("Run: %v\n%s", err, out)
	}
	for _, want := range []string{
		"Skipping b.txt: missing timestamps: 01.03.2023 01:30\n",
		"All data saved to " + filepath.Join(dir, spreadsheet.DefaultFileName) + ".",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "Skipping a.txt") {
		t.Errorf("included file reported as skipped:\n%s", out)
	}
}

// noDataRunner reports every selected file as skipped.
type noDataRunner struct{}

func (r *noDataRunner) ValidateFolder(context.Context, string) (*core.Report, error) {
	return &core.Report{Results: []core.FileResult{{Name: "a.txt"}}}, nil
}

func (r *noDataRunner) Columns(context.Context, string, string) ([]string, error) {
	return []string{"Datum/Zeit", "A", "B"}, nil
}

func (r *noDataRunner) Export(_ context.Context, req core.ExportRequest) (*core.ExportResult, error) {
	res := &core.ExportResult{OutputPath: req.OutputPath}
	for _, name := range req.Files {
		res.Skipped = append(res.Skipped, core.FileResult{Name: name, Err: errors.New("went stale")})
	}
	return res, spreadsheet.ErrNoData
}

func TestSession_NoData(t *testing.T) {
	dir := t.TempDir()
	out, err := runSession(t, &noDataRunner{}, "", Presets{
		Folder: dir, Files: []string{"a.txt"}, Column1: "A", Column2: "B", OutputFolder: dir,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{"Skipping a.txt: went stale", "No valid data to save."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}
