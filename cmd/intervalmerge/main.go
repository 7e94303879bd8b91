// Command intervalmerge validates monthly 15-minute interval exports and
// merges two of their columns into a single workbook.
//
// Without a subcommand it runs the interactive session. Settings come from
// the environment (and a .env file if present); flags override them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/intervalmerge/internal/cli"
	"github.com/JonMunkholm/intervalmerge/internal/config"
	"github.com/JonMunkholm/intervalmerge/internal/core"
	"github.com/JonMunkholm/intervalmerge/internal/history"
	"github.com/JonMunkholm/intervalmerge/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// errIncomplete is returned by validate when at least one file failed.
var errIncomplete = errors.New("incomplete months found")

// app holds what the commands share once setup has run.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg      *config.Config
	recorder history.Recorder
	service  *core.Service

	folder     string
	files      []string
	column1    string
	column2    string
	output     string
	outputFile string
	workers    int
	logLevel   string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line in args and returns the exit code.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	a := &app{in: in, out: out, errOut: errOut}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if a.recorder != nil {
		if cerr := a.recorder.Close(); cerr != nil {
			slog.Warn("failed to close history", "error", cerr)
		}
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, cli.ErrAborted), errors.Is(err, errIncomplete):
		return 1
	case core.IsUserFacing(err):
		fmt.Fprintf(errOut, "Error: %s\n  %v\n", core.FormatUserError(err), err)
		return 1
	default:
		fmt.Fprintln(errOut, "Error:", err)
		return 1
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "intervalmerge",
		Short: "Validate monthly interval exports and merge two columns into a workbook",
		Long: `intervalmerge checks that every export in a folder covers one calendar month
in complete 15-minute steps, then copies two chosen columns of the valid files
into a single .xlsx workbook.

Run without a subcommand to be asked for each choice.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.NewSession(a.service, a.in, a.out, a.presets()).Run(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.folder, "folder", "f", "", "folder containing the exports (INPUT_FOLDER)")
	pf.StringSliceVar(&a.files, "files", nil, "files to export, comma-separated (INPUT_FILES)")
	pf.StringVar(&a.column1, "column1", "", "first column to extract (COLUMN_1)")
	pf.StringVar(&a.column2, "column2", "", "second column to extract (COLUMN_2)")
	pf.StringVarP(&a.output, "output", "o", "", "folder the workbook is written to (OUTPUT_FOLDER)")
	pf.StringVar(&a.outputFile, "output-file", "", "workbook file name (OUTPUT_FILE)")
	pf.IntVar(&a.workers, "workers", 0, "files processed at once (WORKERS)")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	pf.StringVar(&a.logFormat, "log-format", "", "text or json (LOG_FORMAT)")

	root.AddCommand(a.validateCmd(), a.exportCmd(), a.serveCmd())
	return root
}

// setup loads configuration, applies flag overrides and builds the service.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logging.Setup(a.errOut, cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	recorder, err := history.Open(cmd.Context(), cfg.History.Driver, cfg.History.URL)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	a.recorder = recorder

	a.service = core.NewService(core.Options{
		Extension: cfg.Input.Extension,
		Workers:   cfg.Process.Workers,
		Recorder:  recorder,
	})
	return nil
}

// applyFlags copies the flags set on the command line over cfg.
func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("folder") {
		cfg.Input.Folder = a.folder
	}
	if flags.Changed("files") {
		cfg.Input.Files = a.files
	}
	if flags.Changed("column1") {
		cfg.Input.Column1 = a.column1
	}
	if flags.Changed("column2") {
		cfg.Input.Column2 = a.column2
	}
	if flags.Changed("output") {
		cfg.Output.Folder = a.output
	}
	if flags.Changed("output-file") {
		cfg.Output.FileName = a.outputFile
	}
	if flags.Changed("workers") {
		cfg.Process.Workers = a.workers
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = a.logFormat
	}
	cfg.Normalize()
}

func (a *app) presets() cli.Presets {
	return cli.Presets{
		Folder:       a.cfg.Input.Folder,
		Files:        a.cfg.Input.Files,
		Column1:      a.cfg.Input.Column1,
		Column2:      a.cfg.Input.Column2,
		OutputFolder: a.cfg.Output.Folder,
		OutputFile:   a.cfg.Output.FileName,
	}
}
