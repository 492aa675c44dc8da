package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/0xcro3dile/lograg-go/internal/domain/entities"
	"github.com/0xcro3dile/lograg-go/internal/domain/errs"
)

type rowJSON struct {
	ID        int     `json:"id"`
	SourceRow int     `json:"source_row"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
}

type queryResponse struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Rows     []rowJSON `json:"rows"`
}

type statusResponse struct {
	SessionID      string  `json:"session_id"`
	File           string  `json:"file"`
	State          string  `json:"state"`
	RowsDone       int     `json:"rows_done"`
	RowsTotal      int     `json:"rows_total"`
	Progress       float64 `json:"progress"`
	RowsIndexed    int     `json:"rows_indexed"`
	Warnings       int     `json:"warnings"`
	EmbeddingModel string  `json:"embedding_model"`
	Error          string  `json:"error,omitempty"`
	Phase          string  `json:"phase,omitempty"`
}

type warningJSON struct {
	SourceRow int    `json:"source_row"`
	Reason    string `json:"reason"`
}

type turnJSON struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Rows     []rowJSON `json:"rows"`
	AskedAt  time.Time `json:"asked_at"`
}

func toRows(result entities.RetrievalResult) []rowJSON {
	rows := make([]rowJSON, 0, len(result))
	for _, r := range result {
		rows = append(rows, rowJSON{
			ID:        r.Row.ID,
			SourceRow: r.Row.SourceRowIndex,
			Score:     r.Score,
			Text:      r.Row.Text,
		})
	}
	return rows
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("encode response", "error", err)
	}
}

// writeError responds with the error message, its phase and the mapped status.
func writeError(w http.ResponseWriter, err error) {
	body := map[string]string{"error": err.Error()}
	if phase, ok := errs.PhaseOf(err); ok {
		body["phase"] = string(phase)
	}
	writeJSON(w, errs.HTTPStatus(err), body)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

// handleUpload accepts a multipart CSV upload and starts indexing it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, fmt.Errorf("%w: missing multipart field \"file\": %w", errs.ErrLoad, err))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		writeError(w, fmt.Errorf("%w: %s is not a .csv file", errs.ErrLoad, name))
		return
	}

	// The request body is gone once the handler returns.
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errs.ErrLoad, err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server is shutting down"})
		return
	}
	s.uploads.Add(1)
	s.mu.Unlock()

	id, done := s.session.StartUpload(s.baseCtx, name, bytes.NewReader(data))
	go func() {
		defer s.uploads.Done()
		if err := <-done; err != nil {
			log.Debug("background ingestion ended", "session_id", id, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": id,
		"file":       name,
		"state":      s.session.Snapshot().State.String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	resp := statusResponse{
		SessionID:      snap.SessionID,
		File:           snap.FileName,
		State:          snap.State.String(),
		RowsDone:       snap.Progress.RowsDone,
		RowsTotal:      snap.Progress.RowsTotal,
		Progress:       snap.Progress.Fraction(),
		RowsIndexed:    snap.RowsIndexed,
		Warnings:       snap.Warnings,
		EmbeddingModel: snap.EmbeddingModel,
	}
	if snap.LastError != nil {
		resp.Error = snap.LastError.Error()
		if phase, ok := errs.PhaseOf(snap.LastError); ok {
			resp.Phase = string(phase)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	header, rows := s.session.Preview()
	warnings := make([]warningJSON, 0)
	for _, wr := range s.session.Warnings() {
		warnings = append(warnings, warningJSON{SourceRow: wr.SourceRowIndex, Reason: wr.Reason})
	}
	if rows == nil {
		rows = [][]string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file":     s.session.Snapshot().FileName,
		"header":   header,
		"rows":     rows,
		"warnings": warnings,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.session.History()
	turns := make([]turnJSON, 0, len(history))
	for _, t := range history {
		turns = append(turns, turnJSON{Question: t.Question, Answer: t.Answer, Rows: toRows(t.Retrieved), AskedAt: t.AskedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

// questionFrom reads the question from a JSON body or form values.
func questionFrom(r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Query    string `json:"query"`
			Question string `json:"question"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: invalid json body: %w", errs.ErrEmptyQuestion, err)
		}
		if req.Question != "" {
			return req.Question, nil
		}
		return req.Query, nil
	}
	if q := r.FormValue("question"); q != "" {
		return q, nil
	}
	return r.FormValue("query"), nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	question, err := questionFrom(r)
	if err != nil {
		writeError(w, errs.InPhase(errs.PhaseRetrieval, err))
		return
	}

	s.extendWriteDeadline(w)
	turn, err := s.session.Ask(r.Context(), question)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Question: turn.Question,
		Answer:   turn.Answer,
		Rows:     toRows(turn.Retrieved),
	})
}

// handleQueryStream streams the answer as server-sent events. The first event
// carries the retrieved rows, then content tokens, then a done or error event.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	question := r.URL.Query().Get("q")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	s.extendWriteDeadline(w)
	rows, tokens, err := s.session.AskStream(r.Context(), question)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sendSSE(w, flusher, map[string]any{"rows": toRows(rows)})

	for tok := range tokens {
		if tok.Error != nil {
			event := map[string]any{"error": tok.Error.Error(), "done": true}
			if phase, ok := errs.PhaseOf(tok.Error); ok {
				event["phase"] = string(phase)
			}
			sendSSE(w, flusher, event)
			return
		}
		if tok.Content != "" {
			sendSSE(w, flusher, map[string]any{"content": tok.Content})
		}
		if tok.Done {
			sendSSE(w, flusher, map[string]any{"done": true})
			return
		}
	}
}

// extendWriteDeadline replaces the server-wide write timeout for an answer,
// so model timeouts still reach the client as an error response.
func (s *Server) extendWriteDeadline(w http.ResponseWriter) {
	var deadline time.Time
	if s.answerTimeout > 0 {
		deadline = time.Now().Add(s.answerTimeout)
	}
	if err := http.NewResponseController(w).SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Warn("extend write deadline", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  s.session.Snapshot().State.String(),
	})
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, data map[string]any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Warn("encode event", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}
