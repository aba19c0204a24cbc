package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"cashbook/internal/auth"
	"cashbook/internal/cashbook"
	"cashbook/internal/log"
	"cashbook/internal/voice"
)

const reportFilename = "transactions_report"

// ShareResponse carries the click-to-chat link and the text it encodes.
type ShareResponse struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

type dictationBody struct {
	Field      string `json:"field"`
	Transcript string `json:"transcript,omitempty"`
	Current    string `json:"current,omitempty"`
}

// render buffers the document so a failure never leaves a half-written
// body behind.
func (s *Server) render(w http.ResponseWriter, r *http.Request, contentType, filename string, fn func(io.Writer) error) {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		s.fail(w, r, log.OpExport, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	if filename != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request, ws *cashbook.Client, _ string) {
	s.render(w, r, "application/pdf", reportFilename+".pdf", ws.ExportPDF)
}

func (s *Server) handleExportMarkdown(w http.ResponseWriter, r *http.Request, ws *cashbook.Client, _ string) {
	s.render(w, r, "text/markdown; charset=utf-8", reportFilename+".md", ws.ExportMarkdown)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request, ws *cashbook.Client, _ string) {
	s.render(w, r, "image/png", "", ws.Chart)
}

// handleExportSheets publishes the current report to the configured
// spreadsheet tab.
func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request, ws *cashbook.Client, _ string) {
	if s.publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "spreadsheet export is not configured")
		return
	}
	table, err := ws.Report()
	if err != nil {
		s.fail(w, r, log.OpExport, err)
		return
	}
	if err := s.publisher.Publish(r.Context(), s.opts.SheetTab, table); err != nil {
		s.fail(w, r, log.OpExport, err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Report published",
		log.FieldOperation, log.OpExport,
		log.FieldCount, len(table.Rows),
		"tab", s.opts.SheetTab)
	writeJSON(w, http.StatusOK, map[string]any{"tab": s.opts.SheetTab, "rows": len(table.Rows)})
}

// handleShare answers with the share link. Without a session the user is
// asked to log in first.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	const loginFirst = "Please login to share."
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, loginFirst)
		return
	}
	if _, err := s.auth.Verify(token); err != nil {
		s.workspaces.Delete(token)
		writeError(w, http.StatusUnauthorized, loginFirst)
		return
	}
	ws, err := s.workspace(token)
	if err != nil {
		s.fail(w, r, log.OpShare, err)
		return
	}

	text, err := ws.ShareText()
	if errors.Is(err, auth.ErrNoSession) {
		writeError(w, http.StatusUnauthorized, loginFirst)
		return
	}
	if err != nil {
		s.fail(w, r, log.OpShare, err)
		return
	}
	link, err := ws.ShareURL()
	if err != nil {
		s.fail(w, r, log.OpShare, err)
		return
	}
	writeJSON(w, http.StatusOK, ShareResponse{URL: link, Text: text})
}

// handleDictation cleans a transcript for a form field. Without a transcript
// the workspace transcriber is asked; when none is configured the current
// value comes back with a 501.
func (s *Server) handleDictation(w http.ResponseWriter, r *http.Request, ws *cashbook.Client, _ string) {
	var in dictationBody
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, "dictation", err)
		return
	}
	field, err := voice.ParseField(in.Field)
	if err != nil {
		s.fail(w, r, "dictation", err)
		return
	}

	var value string
	if in.Transcript != "" {
		value, err = voice.Clean(field, in.Transcript)
	} else {
		value, err = ws.Dictate(r.Context(), field, in.Current)
	}
	if err != nil {
		status, msg := errorStatus(err)
		writeJSON(w, status, map[string]string{"error": msg, "value": in.Current})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"field": string(field), "value": value})
}
