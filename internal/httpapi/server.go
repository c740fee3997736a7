package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/elevenstudents/specsync/internal/progress"
)

type ServerConfig struct {
	// AuthToken fences /v1/* when non-empty. Health and dashboard stay open.
	AuthToken    string
	MaxBodyBytes int64
}

// Server is the HTTP surface over the progress engine: subject state reads,
// item/mode mutations, aggregate summaries, the websocket event stream and
// the HTML dashboard.
type Server struct {
	tracker *progress.Tracker
	session *progress.Session
	cfg     ServerConfig
	events  *eventHub
	now     func() time.Time
}

func NewServer(tracker *progress.Tracker, session *progress.Session) *Server {
	return NewServerWithConfig(tracker, session, ServerConfig{})
}

func NewServerWithConfig(tracker *progress.Tracker, session *progress.Session, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Server{
		tracker: tracker,
		session: session,
		cfg:     cfg,
		events:  newEventHub(),
		now:     time.Now,
	}
}

// PublishScan announces a checklist rescan on the event stream. The watcher
// wiring in main calls this after handing the scan to the tracker.
func (s *Server) PublishScan(subjectID string, total int) {
	s.publish(Event{
		Type:    eventScan,
		Subject: subjectID,
		Value:   strconv.Itoa(total),
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if r.URL.Path == "/dashboard" && r.Method == http.MethodGet {
		s.handleDashboard(w, r)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "v1" {
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
		return
	}
	if authErr := authorize(r, s.cfg.AuthToken); authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message, getCorrelationID(r))
		return
	}

	switch {
	case len(parts) == 2 && parts[1] == "subjects" && r.Method == http.MethodGet:
		s.handleSubjectList(w, r)
	case len(parts) == 2 && parts[1] == "summary" && r.Method == http.MethodGet:
		s.handleSummaryAll(w, r)
	case len(parts) == 2 && parts[1] == "events" && r.Method == http.MethodGet:
		s.handleEvents(w, r)
	case len(parts) == 3 && parts[1] == "subjects" && r.Method == http.MethodGet:
		s.handleSubjectState(w, r, parts[2])
	case len(parts) == 4 && parts[1] == "subjects" && parts[3] == "mode" && r.Method == http.MethodPut:
		s.handleSetMode(w, r, parts[2])
	case len(parts) == 4 && parts[1] == "subjects" && parts[3] == "summary" && r.Method == http.MethodGet:
		s.handleSubjectSummary(w, r, parts[2])
	case len(parts) == 6 && parts[1] == "subjects" && parts[3] == "items" && parts[5] == "checkbox" && r.Method == http.MethodPut:
		s.handleSetCheckbox(w, r, parts[2], parts[4])
	case len(parts) == 6 && parts[1] == "subjects" && parts[3] == "items" && parts[5] == "rag" && r.Method == http.MethodPut:
		s.handleSetRag(w, r, parts[2], parts[4])
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", getCorrelationID(r))
	}
}

// SubjectSummary is one landing-card row: a subject's counts under the
// requested display mode. HasData false means no progress has ever been
// recorded, which renders as "no data", never as 100% red.
type SubjectSummary struct {
	Subject string          `json:"subject"`
	Mode    progress.Mode   `json:"mode"`
	Counts  progress.Counts `json:"counts"`
	Percent int             `json:"percent"`
	HasData bool            `json:"hasData"`
}

func (s *Server) handleSubjectList(w http.ResponseWriter, r *http.Request) {
	requested, ok := s.displayMode(w, r, "")
	if !ok {
		return
	}
	summaries := make([]SubjectSummary, 0, len(s.tracker.Subjects()))
	for _, subjectID := range s.tracker.Subjects() {
		summaries = append(summaries, s.summarize(subjectID, requested))
	}
	writeJSON(w, http.StatusOK, map[string]any{"subjects": summaries})
}

func (s *Server) handleSubjectState(w http.ResponseWriter, r *http.Request, subjectID string) {
	state, err := s.tracker.Get(subjectID)
	if err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSubjectSummary(w http.ResponseWriter, r *http.Request, subjectID string) {
	state, err := s.tracker.Get(subjectID)
	if err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	mode, ok := s.displayMode(w, r, state.Mode)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, progress.Aggregate(state, mode))
}

func (s *Server) handleSummaryAll(w http.ResponseWriter, r *http.Request) {
	mode, ok := s.displayMode(w, r, progress.ModeCheckbox)
	if !ok {
		return
	}
	subjectIDs := s.tracker.Subjects()
	if raw := strings.TrimSpace(r.URL.Query().Get("subjects")); raw != "" {
		subjectIDs = strings.Split(raw, ",")
	}
	counts := progress.AggregateAll(subjectIDs, mode, s.session.Resolver())
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request, subjectID string) {
	var body struct {
		Mode string `json:"mode"`
	}
	if !s.readBody(w, r, &body) {
		return
	}
	mode, err := progress.ParseMode(body.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error(), getCorrelationID(r))
		return
	}
	if err := s.tracker.SetMode(subjectID, mode); err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	s.publish(Event{Type: eventMode, Subject: subjectID, Value: string(mode)})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetCheckbox(w http.ResponseWriter, r *http.Request, subjectID, itemKey string) {
	var body struct {
		Value bool `json:"value"`
	}
	if !s.readBody(w, r, &body) {
		return
	}
	if err := s.tracker.SetItemCheckbox(subjectID, itemKey, body.Value); err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	s.publish(Event{
		Type:    eventItemCheckbox,
		Subject: subjectID,
		ItemKey: itemKey,
		Value:   strconv.FormatBool(body.Value),
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetRag(w http.ResponseWriter, r *http.Request, subjectID, itemKey string) {
	var body struct {
		Value string `json:"value"`
	}
	if !s.readBody(w, r, &body) {
		return
	}
	rag, err := progress.ParseRag(body.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_rag", err.Error(), getCorrelationID(r))
		return
	}
	if err := s.tracker.SetItemRag(subjectID, itemKey, rag); err != nil {
		s.writeTrackerError(w, r, err)
		return
	}
	s.publish(Event{
		Type:    eventItemRag,
		Subject: subjectID,
		ItemKey: itemKey,
		Value:   string(rag),
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) summarize(subjectID string, requested progress.Mode) SubjectSummary {
	state, ok := s.session.Resolve(subjectID)
	mode := requested
	if mode == "" {
		mode = state.Mode
		if mode == "" {
			mode = progress.ModeCheckbox
		}
	}
	summary := SubjectSummary{Subject: subjectID, Mode: mode}
	if !ok {
		return summary
	}
	counts := progress.Aggregate(state, mode)
	summary.Counts = counts
	summary.HasData = counts.Total > 0
	if counts.Total > 0 {
		summary.Percent = int(math.Round(float64(counts.Green) / float64(counts.Total) * 100))
	}
	return summary
}

// displayMode reads the optional ?mode= parameter, falling back to the given
// default. An empty default propagates as "use each subject's own mode".
func (s *Server) displayMode(w http.ResponseWriter, r *http.Request, fallback progress.Mode) (progress.Mode, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("mode"))
	if raw == "" {
		return fallback, true
	}
	mode, err := progress.ParseMode(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error(), getCorrelationID(r))
		return "", false
	}
	return mode, true
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request, out any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit", getCorrelationID(r))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to read request body", getCorrelationID(r))
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", fmt.Sprintf("invalid json body: %v", err), getCorrelationID(r))
		return false
	}
	return true
}

func (s *Server) writeTrackerError(w http.ResponseWriter, r *http.Request, err error) {
	correlationID := getCorrelationID(r)
	switch {
	case errors.Is(err, progress.ErrUnknownSubject):
		writeError(w, http.StatusNotFound, "unknown_subject", err.Error(), correlationID)
	case errors.Is(err, progress.ErrInvalidMode),
		errors.Is(err, progress.ErrInvalidRag),
		errors.Is(err, progress.ErrInvalidItemKey):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), correlationID)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), correlationID)
	}
}

func (s *Server) publish(event Event) {
	event.Timestamp = s.now().UTC().Format(time.RFC3339)
	s.events.publish(event)
}

func getCorrelationID(r *http.Request) string {
	return r.Header.Get("X-Correlation-Id")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}
