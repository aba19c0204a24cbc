package http

import (
	"net/http"
	"strconv"

	"cashbook/internal/cashbook"
	"cashbook/internal/core"
	"cashbook/internal/log"
	"cashbook/internal/view"
)

// TransactionsResponse is the ledger screen: the newest-first list and
// whether the first snapshot is still pending.
type TransactionsResponse struct {
	Transactions []core.Transaction `json:"transactions"`
	Loading      bool               `json:"loading"`
	FeedStopped  bool               `json:"feedStopped"`
	Version      uint64             `json:"version"`
}

type idResponse struct {
	ID string `json:"id"`
}

type viewBody struct {
	View string `json:"view"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, _ *http.Request, ws *cashbook.Client, _ string) {
	st := ws.State()
	writeJSON(w, http.StatusOK, TransactionsResponse{
		Transactions: st.Transactions,
		Loading:      st.Loading,
		FeedStopped:  st.FeedStopped,
		Version:      st.Version,
	})
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, ws *cashbook.Client, _ string) {
	var d core.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	d.Remark = sanitizeInput(d.Remark)

	id, _, err := ws.Create(r.Context(), d)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// handleEditTransaction returns the form draft for an existing record.
func (s *Server) handleEditTransaction(w http.ResponseWriter, r *http.Request, ws *cashbook.Client, _ string) {
	d, err := ws.Edit(r.PathValue("id"))
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, ws *cashbook.Client, _ string) {
	id := r.PathValue("id")
	var d core.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	d.Remark = sanitizeInput(d.Remark)

	if _, err := ws.Update(r.Context(), id, d); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, idResponse{ID: id})
}

// handleDeleteTransaction needs ?confirm=true; without it the record stays.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, ws *cashbook.Client, _ string) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if err := ws.Delete(r.Context(), r.PathValue("id"), confirmed); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request, ws *cashbook.Client, _ string) {
	writeJSON(w, http.StatusOK, ws.State().Summary)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, _ *http.Request, ws *cashbook.Client, _ string) {
	writeJSON(w, http.StatusOK, map[string]any{"breakdown": ws.State().Breakdown})
}

func (s *Server) handleGetView(w http.ResponseWriter, _ *http.Request, ws *cashbook.Client, _ string) {
	writeJSON(w, http.StatusOK, viewBody{View: string(ws.State().View)})
}

func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request, ws *cashbook.Client, _ string) {
	var in viewBody
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, "view", err)
		return
	}
	v, err := view.Parse(in.View)
	if err == nil {
		err = ws.Show(v)
	}
	if err != nil {
		s.fail(w, r, "view", err)
		return
	}
	writeJSON(w, http.StatusOK, viewBody{View: string(v)})
}
