package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/intervalmerge/internal/core"
	"github.com/JonMunkholm/intervalmerge/internal/history"
	"github.com/JonMunkholm/intervalmerge/internal/spreadsheet"
	"github.com/JonMunkholm/intervalmerge/internal/web/templates"
)

// defaultUploadName is used when an upload carries no file name.
const defaultUploadName = "upload.txt"

type fileJSON struct {
	Name    string   `json:"name"`
	Valid   bool     `json:"valid"`
	Code    string   `json:"code,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Rows    int      `json:"rows"`
	Columns []string `json:"columns,omitempty"`
}

func toFileJSON(res core.FileResult) fileJSON {
	return fileJSON{
		Name:    res.Name,
		Valid:   res.Valid(),
		Code:    res.Code(),
		Reason:  res.Reason(),
		Rows:    res.Rows,
		Columns: res.Header,
	}
}

type reportJSON struct {
	RunID  string     `json:"run_id"`
	Folder string     `json:"folder"`
	Files  []fileJSON `json:"files"`
	Valid  []string   `json:"valid"`
}

type exportRequestJSON struct {
	Folder     string   `json:"folder"`
	Files      []string `json:"files"`
	Column1    string   `json:"column1"`
	Column2    string   `json:"column2"`
	OutputFile string   `json:"output_file,omitempty"`
}

type exportJSON struct {
	RunID    string         `json:"run_id"`
	Output   string         `json:"output,omitempty"`
	Rows     int            `json:"rows"`
	Included []string       `json:"included"`
	Skipped  []fileJSON     `json:"skipped"`
	Error    *ErrorResponse `json:"error,omitempty"`
}

// handleHealth reports liveness and export slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"exports": s.exports.Status(),
	})
}

// handleReportPage renders the validation report of a folder as HTML.
func (s *Server) handleReportPage(w http.ResponseWriter, r *http.Request) {
	view := templates.ReportView{Folder: s.folder(r)}
	if view.Folder != "" {
		report, err := s.service.ValidateFolder(r.Context(), view.Folder)
		if err != nil {
			view.Problem = core.FormatUserError(err)
		} else {
			view.Report = report
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ReportPage(view).Render(r.Context(), w); err != nil {
		respondError(w, r, err)
	}
}

// handleListFiles returns the validation report of a folder.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	folder, err := s.requireFolder(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	report, err := s.service.ValidateFolder(r.Context(), folder)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := reportJSON{
		RunID:  report.RunID.String(),
		Folder: report.Folder,
		Files:  make([]fileJSON, len(report.Results)),
		Valid:  report.Valid(),
	}
	for i, res := range report.Results {
		out.Files[i] = toFileJSON(res)
	}
	if out.Valid == nil {
		out.Valid = []string{}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleColumns returns the header of one file.
func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	folder, err := s.requireFolder(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	name := r.URL.Query().Get("file")
	if name == "" {
		respondError(w, r, fmt.Errorf("%w: file is required", core.ErrInvalidRequest))
		return
	}

	cols, err := s.service.Columns(r.Context(), folder, name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": name, "columns": cols})
}

// handleValidateUpload checks one export sent as the raw body or as the
// "file" part of a multipart form.
func (s *Server) handleValidateUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Server.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	var body io.Reader = r.Body
	name := r.URL.Query().Get("name")

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxSize); err != nil {
			if isTooLarge(err) {
				writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
				return
			}
			writeError(w, http.StatusBadRequest, "invalid multipart form")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "no file provided")
			return
		}
		defer file.Close()
		body = file
		if name == "" {
			name = header.Filename
		}
	}
	if name = filepath.Base(name); name == "." || name == "/" {
		name = defaultUploadName
	}

	res := s.service.ValidateReader(r.Context(), name, body)
	if isTooLarge(res.Err) {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds the size limit")
		return
	}
	writeJSON(w, http.StatusOK, toFileJSON(res))
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// handleExport writes the workbook for the requested files into the
// configured output folder.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequestJSON
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("%w: invalid JSON body: %v", core.ErrInvalidRequest, err))
		return
	}

	outputPath, err := s.outputPath(req.OutputFile)
	if err != nil {
		respondError(w, r, err)
		return
	}
	folder := req.Folder
	if folder == "" {
		folder = s.cfg.Input.Folder
	}

	if err := s.exports.Acquire(r.Context()); err != nil {
		respondError(w, r, err)
		return
	}
	defer s.exports.Release()

	result, err := s.service.Export(r.Context(), core.ExportRequest{
		Folder:     folder,
		Files:      req.Files,
		Column1:    req.Column1,
		Column2:    req.Column2,
		OutputPath: outputPath,
	})
	if result == nil {
		respondError(w, r, err)
		return
	}

	out := exportJSON{
		RunID:    result.RunID.String(),
		Rows:     result.Rows,
		Included: result.Included,
		Skipped:  make([]fileJSON, len(result.Skipped)),
	}
	for i, res := range result.Skipped {
		out.Skipped[i] = toFileJSON(res)
	}
	if out.Included == nil {
		out.Included = []string{}
	}

	if err != nil {
		msg := core.Describe(err)
		out.Error = &ErrorResponse{Error: err.Error(), Message: msg.Message, Action: msg.Action, Code: msg.Code}
		writeJSON(w, statusFor(err), out)
		return
	}
	out.Output = result.OutputPath
	writeJSON(w, http.StatusOK, out)
}

// handleHistory returns recent runs, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			respondError(w, r, fmt.Errorf("%w: limit must be 1-500", core.ErrInvalidRequest))
			return
		}
		limit = n
	}

	runs, err := s.service.Recorder().RecentRuns(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// folder returns the ?folder= parameter or the configured input folder.
func (s *Server) folder(r *http.Request) string {
	if f := strings.TrimSpace(r.URL.Query().Get("folder")); f != "" {
		return f
	}
	return s.cfg.Input.Folder
}

func (s *Server) requireFolder(r *http.Request) (string, error) {
	folder := s.folder(r)
	if folder == "" {
		return "", fmt.Errorf("%w: folder is required", core.ErrInvalidRequest)
	}
	return folder, nil
}

// outputPath resolves the workbook path inside the configured output folder.
func (s *Server) outputPath(name string) (string, error) {
	if s.cfg.Output.Folder == "" {
		return "", fmt.Errorf("%w: no output folder configured", core.ErrInvalidRequest)
	}
	if name == "" {
		name = s.cfg.Output.FileName
	}
	if name == "" {
		name = spreadsheet.DefaultFileName
	}
	if filepath.Base(name) != name || !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return "", fmt.Errorf("%w: output file %q must be a plain .xlsx name", core.ErrInvalidRequest, name)
	}
	return filepath.Join(s.cfg.Output.Folder, name), nil
}
