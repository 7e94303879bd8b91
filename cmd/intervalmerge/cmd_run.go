package main

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/intervalmerge/internal/cli"
	"github.com/JonMunkholm/intervalmerge/internal/core"
	"github.com/spf13/cobra"
)

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [folder]",
		Short: "Check every export in a folder and print the report",
		Long: `Validate reads every export in the folder and reports, per file, whether it
covers exactly one calendar month in 15-minute steps.

The exit code is 1 when any file is incomplete.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder := a.cfg.Input.Folder
			if len(args) == 1 {
				folder = args[0]
			}
			if folder == "" {
				return fmt.Errorf("%w: pass a folder or set INPUT_FOLDER", core.ErrInvalidRequest)
			}

			report, err := a.service.ValidateFolder(cmd.Context(), folder)
			if err != nil {
				return err
			}
			a.printReport(report)
			if len(report.Invalid()) > 0 {
				return errIncomplete
			}
			return nil
		},
	}
}

func (a *app) printReport(report *core.Report) {
	if len(report.Results) == 0 {
		fmt.Fprintf(a.out, "No %s files in %s.\n", a.cfg.Input.Extension, report.Folder)
		return
	}
	for _, res := range report.Results {
		if res.Valid() {
			fmt.Fprintf(a.out, "ok       %s (%d rows)\n", res.Name, res.Rows)
			continue
		}
		fmt.Fprintf(a.out, "invalid  %s [%s] %s\n", res.Name, res.Code(), res.Reason())
	}
	fmt.Fprintf(a.out, "\n%d of %d files valid.\n", len(report.Valid()), len(report.Results))
}

func (a *app) exportCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export without prompting, using flags and environment only",
		Long: `Export runs the same steps as the interactive session but never reads from
standard input. Folder, columns and output folder must be set. Files default to
every valid file when --all is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := a.presets()
			presets.AllValid = all

			var missing []string
			if presets.Folder == "" {
				missing = append(missing, "--folder")
			}
			if len(presets.Files) == 0 && !all {
				missing = append(missing, "--files or --all")
			}
			if presets.Column1 == "" || presets.Column2 == "" {
				missing = append(missing, "--column1 and --column2")
			}
			if presets.OutputFolder == "" {
				missing = append(missing, "--output")
			}
			if len(missing) > 0 {
				return fmt.Errorf("%w: missing %s", core.ErrInvalidRequest, strings.Join(missing, ", "))
			}

			return cli.NewSession(a.service, strings.NewReader(""), a.out, presets).Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "export every valid file when no files are given")
	return cmd
}
