package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"mcpsched/internal/core"
)

type schedulePreviewRequest struct {
	Schedule string `json:"schedule"`
	Count    int    `json:"count"`
}

type schedulePreviewResponse struct {
	Valid     bool     `json:"valid"`
	Message   string   `json:"message,omitempty"`
	NextTimes []string `json:"next_times,omitempty"`
}

func (s *Server) handleSchedulePreview(w http.ResponseWriter, r *http.Request) {
	var req schedulePreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, schedulePreviewResponse{Valid: false, Message: "invalid JSON payload"})
		return
	}
	req.Schedule = strings.TrimSpace(req.Schedule)
	if req.Schedule == "" {
		writeJSON(w, http.StatusBadRequest, schedulePreviewResponse{Valid: false, Message: "schedule expression is required"})
		return
	}

	schedule, err := core.ParseSchedule(req.Schedule)
	if err != nil {
		writeJSON(w, http.StatusOK, schedulePreviewResponse{Valid: false, Message: err.Error()})
		return
	}

	now := time.Now().In(s.location)
	if schedule == nil {
		// One-shot marker: due immediately, exactly once.
		writeJSON(w, http.StatusOK, schedulePreviewResponse{
			Valid:     true,
			Message:   "one-shot schedule, fires immediately",
			NextTimes: []string{now.Format(time.RFC3339)},
		})
		return
	}

	count := req.Count
	if count <= 0 {
		count = 5
	}
	if count > 10 {
		count = 10
	}
	times := core.NextOccurrences(schedule, now, count)
	formatted := make([]string, 0, len(times))
	for _, t := range times {
		formatted = append(formatted, t.Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, schedulePreviewResponse{Valid: true, NextTimes: formatted})
}
