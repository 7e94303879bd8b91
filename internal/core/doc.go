// Package core orchestrates validation and export of monthly interval files.
//
// This package holds the workflow independent of any UI or transport layer.
// It is used by the interactive CLI session, the one-shot commands and the
// HTTP server without modification.
//
// # Workflow
//
//  1. [Service.ValidateFolder] scans a folder for exports and checks every
//     file: header located, rows complete, timestamps parsed, and the
//     sequence compared with the month grid (see package interval).
//  2. The caller shows the [Report] (valid files, and invalid files with
//     their reasons) to the operator before anything is written.
//  3. [Service.Export] re-validates the selected files, projects the two
//     chosen columns and writes one workbook with all rows, in the order the
//     files were requested.
//
// Files are processed in parallel, bounded by [Options.Workers]. A failing
// file never aborts the others; its error is kept on its [FileResult].
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [Describe].
// Each failure kind has a code for support reference (see error_messages.go).
//
// # History
//
// Every validation and export run is handed to a history.Recorder, which may
// be a no-op, a SQLite file or a PostgreSQL database. A [Scheduler] can
// re-validate the input folder on a cron spec and prune old runs.
//
// # Concurrency
//
// [ExportLimiter] bounds concurrent exports for the HTTP server; requests
// that cannot get a slot within the wait time fail with [ErrTooManyExports].
package core
