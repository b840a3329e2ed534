package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hourglass-app/hourglass/internal/idle"
	"github.com/hourglass-app/hourglass/internal/query"
	"github.com/hourglass-app/hourglass/internal/reporter"
	"github.com/hourglass-app/hourglass/internal/settings"

	"github.com/pkg/errors"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) handleActivityPeriods(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	includeWindows := q.Get("windows") == "1" || q.Get("windows") == "true"

	periods, err := s.facade.ActivityPeriods(q.Get("start"), q.Get("end"), includeWindows)
	if err != nil {
		if errors.Is(err, query.ErrInvalidRange) {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to query activity periods: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, periods)
}

func (s *Server) handleDeletePeriods(w http.ResponseWriter, r *http.Request) {
	if err := s.facade.DeleteAllActivityPeriods(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete activity periods: %v", err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleWindowActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	activities, err := s.facade.WindowActivities(q.Get("start"), q.Get("end"))
	if err != nil {
		if errors.Is(err, query.ErrInvalidRange) {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to query window activities: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, activities)
}

func (s *Server) handleWindowActivityStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	stats, err := s.facade.WindowActivityStats(q.Get("start"), q.Get("end"), limit)
	if err != nil {
		if errors.Is(err, query.ErrInvalidRange) {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to query window activity stats: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleDeleteWindowActivities(w http.ResponseWriter, r *http.Request) {
	if err := s.facade.DeleteAllWindowActivities(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete window activities: %v", err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Settings())
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings patch: %v", err)
		return
	}
	if patch.IdleThresholdMinutes != nil && *patch.IdleThresholdMinutes <= 0 {
		writeError(w, http.StatusBadRequest, "idle threshold must be at least 1 minute")
		return
	}

	applied, err := s.engine.UpdateSettings(patch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to apply settings: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

func (s *Server) handleTimerState(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Running *bool `json:"running"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Running == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"running\": true|false}")
		return
	}

	s.engine.SetTimerRunning(*body.Running)
	writeSuccess(w)
}

func (s *Server) handleIdleDisposition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID     string `json:"id"`
		Choice string `json:"choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		writeError(w, http.StatusBadRequest, "body must be {\"id\": ..., \"choice\": ...}")
		return
	}

	choice, err := parseChoice(body.Choice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	if err := s.prompter.Resolve(body.ID, choice); err != nil {
		if errors.Is(err, ErrUnknownPrompt) {
			writeError(w, http.StatusNotFound, "%v", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve prompt: %v", err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	periodType := r.URL.Query().Get("period")
	if periodType == "" {
		periodType = "day"
	}

	report, err := s.reporter.GenerateReport(periodType)
	if err != nil {
		if errors.Is(err, reporter.ErrInvalidPeriod) {
			writeError(w, http.StatusBadRequest, "%v", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to generate report: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// parseChoice maps the wire form of a disposition choice.
func parseChoice(s string) (idle.Choice, error) {
	switch s {
	case "keep":
		return idle.Keep, nil
	case "discard":
		return idle.Discard, nil
	case "discard_and_restart":
		return idle.DiscardAndRestart, nil
	default:
		return idle.Keep, errors.Errorf("invalid choice %q (valid: keep, discard, discard_and_restart)", s)
	}
}
