package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cfletcher/netwatch/internal/discovery"
	"github.com/cfletcher/netwatch/internal/settings"
)

// rangeTimeFormats are accepted by the range endpoint's from/to parameters,
// tried in order. The second matches the log line timestamp format.
var rangeTimeFormats = []string{time.RFC3339, "2006-01-02 15:04:05"}

// handleLogsTail returns the last K lines of today's log for a category.
// Query: ?sub= qualifies the target label, ?limit= caps the line count.
func (s *Server) handleLogsTail(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	sub := r.URL.Query().Get("sub")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			BadRequest(w, "limit must be a non-negative integer", r.URL.Path)
			return
		}
		limit = n
	}

	lines, err := s.engine.Store().Tail(category, sub, limit)
	if err != nil {
		s.logger.Error("tail failed", zap.String("category", category), zap.Error(err))
		InternalError(w, "failed to read log", r.URL.Path)
		return
	}
	if lines == nil {
		lines = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"sub":      sub,
		"count":    len(lines),
		"lines":    lines,
	})
}

// handleLogsRange returns the lines whose timestamps fall within [from, to],
// spanning day files and size-rotated continuations.
func (s *Server) handleLogsRange(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	sub := r.URL.Query().Get("sub")

	from, err := parseRangeTime(r.URL.Query().Get("from"))
	if err != nil {
		BadRequest(w, "from: "+err.Error(), r.URL.Path)
		return
	}
	to, err := parseRangeTime(r.URL.Query().Get("to"))
	if err != nil {
		BadRequest(w, "to: "+err.Error(), r.URL.Path)
		return
	}
	if to.Before(from) {
		BadRequest(w, "to must not precede from", r.URL.Path)
		return
	}

	lines, err := s.engine.Store().Range(category, sub, from, to)
	if err != nil {
		s.logger.Error("range query failed", zap.String("category", category), zap.Error(err))
		InternalError(w, "failed to read log range", r.URL.Path)
		return
	}
	if lines == nil {
		lines = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"sub":      sub,
		"from":     from,
		"to":       to,
		"count":    len(lines),
		"lines":    lines,
	})
}

// handleStats derives ping statistics for the current day of a category.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	sub := r.URL.Query().Get("sub")

	stats, err := s.engine.Store().Stats(category, sub)
	if err != nil {
		s.logger.Error("stats failed", zap.String("category", category), zap.Error(err))
		InternalError(w, "failed to compute statistics", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleDevices returns the latest discovery snapshot. Before the first scan
// completes an empty snapshot is returned rather than an error.
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Discovery().Latest()
	if snap == nil {
		writeJSON(w, http.StatusOK, discovery.Snapshot{Devices: []discovery.Device{}})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleHousekeeping runs one on-demand housekeeping pass.
func (s *Server) handleHousekeeping(w http.ResponseWriter, r *http.Request) {
	reclaimed := s.engine.Sweeper().RunNow()
	writeJSON(w, http.StatusOK, map[string]any{
		"reclaimed_bytes": reclaimed,
		"passes":          s.engine.Sweeper().Passes(),
	})
}

// handleGetSettings returns the persisted settings alongside the effective
// snapshot (defaults filled in, malformed values replaced).
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	stored, err := s.repo.GetAll(r.Context())
	if err != nil {
		s.logger.Error("settings list failed", zap.Error(err))
		InternalError(w, "failed to list settings", r.URL.Path)
		return
	}
	if stored == nil {
		stored = []settings.Setting{}
	}

	eff := s.engine.Settings().Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"stored": stored,
		"effective": map[string]any{
			settings.KeyPingInterval:   eff.PingInterval.Seconds(),
			settings.KeyDeviceInterval: eff.DeviceInterval.Seconds(),
			settings.KeyAutoRestart:    eff.AutoRestart,
			settings.KeyAutoAlert:      eff.AutoAlert,
			settings.KeyMaxLogSizeMB:   eff.MaxLogSizeMB,
			settings.KeyScanTimeout:    eff.ScanTimeout.Seconds(),
		},
	})
}

// handleSetSetting persists one setting and refreshes the watcher so the new
// value takes effect without waiting for the next poll.
func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body", r.URL.Path)
		return
	}
	if err := settings.Validate(key, req.Value); err != nil {
		BadRequest(w, "invalid value for "+key, r.URL.Path)
		return
	}

	if err := s.repo.Set(r.Context(), key, req.Value); err != nil {
		s.logger.Error("settings write failed", zap.String("key", key), zap.Error(err))
		InternalError(w, "failed to save setting", r.URL.Path)
		return
	}
	if err := s.engine.Settings().Refresh(r.Context()); err != nil {
		// Persisted but not yet live; the watcher's next poll picks it up.
		s.logger.Warn("settings refresh failed after write", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}

// parseRangeTime parses a required from/to query parameter.
func parseRangeTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, errors.New("missing required parameter")
	}
	for _, f := range rangeTimeFormats {
		if ts, err := time.ParseInLocation(f, v, time.Local); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.New("unrecognized time format")
}
