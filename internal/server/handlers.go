package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/coppermind/ingrain/pkg/events"
	"github.com/coppermind/ingrain/pkg/signal"
)

// envelope is the uniform response shape of the control surface.
type envelope struct {
	Ok    bool           `json:"ok"`
	Error string         `json:"error,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Ok: true, Data: map[string]any{"status": "ok"}})
}

// handleListJobs returns job summaries, optionally narrowed by
// ?state=running,paused.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var filter signal.ListFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("state")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			filter.States = append(filter.States, signal.State(strings.TrimSpace(part)))
		}
	}

	jobs, err := s.registry.List(filter)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, envelope{Ok: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Ok: true, Data: map[string]any{"jobs": jobs}})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	sum, err := s.registry.Get(jobID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, signal.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, envelope{Ok: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Ok: true, Data: map[string]any{"job": sum}})
}

// handleAction serves pause/resume/cancel requests. Idempotent: repeating
// an unconsumed request succeeds without creating a second signal.
func (s *Server) handleAction(action signal.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		data := map[string]any{"job_id": jobID, "action": string(action)}

		if err := s.signals.Request(jobID, action); err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, signal.ErrNotFound):
				status = http.StatusNotFound
			case errors.Is(err, signal.ErrInvalidAction):
				status = http.StatusBadRequest
			}
			writeJSON(w, status, envelope{Ok: false, Error: err.Error(), Data: data})
			return
		}

		s.logger.Info("control request accepted",
			zap.String("job_id", jobID), zap.String("action", string(action)))
		data["message"] = string(action) + " requested"
		writeJSON(w, http.StatusOK, envelope{Ok: true, Data: data})
	}
}

// eventsPollInterval paces the drain loop of the SSE stream.
const eventsPollInterval = 100 * time.Millisecond

// handleEvents streams a live job's events as SSE frames. The stream ends
// after the job's end event, or when the client disconnects. Jobs not
// running in this process have no live stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	buf := s.hub.Get(jobID)
	if buf == nil {
		writeJSON(w, http.StatusNotFound, envelope{
			Ok:    false,
			Error: "no live event stream for job " + jobID,
			Data:  map[string]any{"job_id": jobID},
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, envelope{Ok: false, Error: "streaming unsupported"})
		return
	}

	// Streams outlive the server's write timeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(eventsPollInterval)
	defer ticker.Stop()

	for {
		batch := buf.Drain()
		if len(batch) > 0 {
			if err := events.WriteSSEAll(w, batch); err != nil {
				return
			}
			flusher.Flush()
			for _, ev := range batch {
				if ev.Kind() == events.KindEnd {
					return
				}
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
