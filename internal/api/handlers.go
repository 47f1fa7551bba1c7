package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mohamedkhairy/stock-watchlist/internal/engine"
	"github.com/mohamedkhairy/stock-watchlist/internal/models"
	"github.com/mohamedkhairy/stock-watchlist/internal/quote"
	"github.com/mohamedkhairy/stock-watchlist/internal/storage"
	"github.com/mohamedkhairy/stock-watchlist/pkg/logger"
)

// ExportVersion is written into monitor exports
const ExportVersion = "1.0.0"

// Checker starts an immediate poll cycle
type Checker interface {
	TriggerNow() bool
}

// MonitorHandler handles monitor management endpoints
type MonitorHandler struct {
	store       storage.MonitorStore
	engine      *engine.Engine
	checker     Checker
	names       quote.NameLookup
	lookupLimit time.Duration
	now         func() time.Time
}

// NewMonitorHandler creates a new monitor handler. checker and names may be
// nil.
func NewMonitorHandler(store storage.MonitorStore, eng *engine.Engine, checker Checker, names quote.NameLookup) *MonitorHandler {
	return &MonitorHandler{
		store:       store,
		engine:      eng,
		checker:     checker,
		names:       names,
		lookupLimit: 5 * time.Second,
		now:         time.Now,
	}
}

// ruleRequest is a rule as sent by clients. Missing ids are generated and a
// missing is_active defaults to true.
type ruleRequest struct {
	ID                     string   `json:"id"`
	Kind                   string   `json:"kind"`
	Direction              string   `json:"direction"`
	TargetPrice            *float64 `json:"target_price"`
	PremiumThreshold       *float64 `json:"premium_threshold"`
	ChangePercentThreshold *float64 `json:"change_percent_threshold"`
	IsActive               *bool    `json:"is_active"`
	HasFired               bool     `json:"has_fired"`
}

func (rr ruleRequest) toRule() (models.Rule, error) {
	kind, err := models.ParseRuleKind(rr.Kind)
	if err != nil {
		return models.Rule{}, err
	}
	direction, err := models.ParseDirection(rr.Direction)
	if err != nil {
		return models.Rule{}, err
	}
	id := strings.TrimSpace(rr.ID)
	if id == "" {
		id = uuid.New().String()
	}
	active := true
	if rr.IsActive != nil {
		active = *rr.IsActive
	}
	return models.Rule{
		ID:                     id,
		Kind:                   kind,
		Direction:              direction,
		TargetPrice:            rr.TargetPrice,
		PremiumThreshold:       rr.PremiumThreshold,
		ChangePercentThreshold: rr.ChangePercentThreshold,
		IsActive:               active,
		HasFired:               rr.HasFired,
	}, nil
}

func toRules(reqs []ruleRequest) ([]models.Rule, error) {
	out := make([]models.Rule, 0, len(reqs))
	for _, rr := range reqs {
		rule, err := rr.toRule()
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

type createMonitorRequest struct {
	Code     string        `json:"code"`
	Name     string        `json:"name"`
	IsActive *bool         `json:"is_active"`
	Rules    []ruleRequest `json:"rules"`
}

type updateMonitorRequest struct {
	Code     *string        `json:"code"`
	Name     *string        `json:"name"`
	IsActive *bool          `json:"is_active"`
	Rules    *[]ruleRequest `json:"rules"`
}

// monitorResponse adds the derived suppression state to a monitor
type monitorResponse struct {
	*models.Monitor
	State engine.State `json:"state"`
}

func (h *MonitorHandler) view(m *models.Monitor) monitorResponse {
	return monitorResponse{Monitor: m, State: engine.MonitorState(m, h.engine.Today())}
}

// ListMonitors handles GET /api/v1/monitors
func (h *MonitorHandler) ListMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := h.store.LoadAll(r.Context(), ownerFrom(r))
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}

	views := make([]monitorResponse, 0, len(monitors))
	for _, m := range monitors {
		views = append(views, h.view(m))
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"monitors": views,
		"count":    len(views),
	})
}

// GetMonitor handles GET /api/v1/monitors/{id}
func (h *MonitorHandler) GetMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := h.owned(r, mux.Vars(r)["id"])
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.view(m))
}

// CreateMonitor handles POST /api/v1/monitors
func (h *MonitorHandler) CreateMonitor(w http.ResponseWriter, r *http.Request) {
	var req createMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rules, err := toRules(req.Rules)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	code := models.NormalizeCode(req.Code)
	name := strings.TrimSpace(req.Name)
	if name == "" && code != "" {
		name = h.lookupName(r.Context(), code)
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	m, err := h.store.Insert(r.Context(), &models.Monitor{
		OwnerID:       ownerFrom(r),
		Code:          code,
		Name:          name,
		IsActive:      active,
		Rules:         rules,
		LastResetDate: h.engine.Today(),
	})
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}

	logger.Info("Monitor created",
		logger.String("monitor_id", m.ID),
		logger.String("owner_id", m.OwnerID),
		logger.String("code", m.Code),
		logger.Int("rules", len(m.Rules)),
	)
	respondWithJSON(w, http.StatusCreated, h.view(m))
}

// UpdateMonitor handles PUT /api/v1/monitors/{id}
func (h *MonitorHandler) UpdateMonitor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req updateMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	patch := models.MonitorPatch{
		Code:     req.Code,
		Name:     req.Name,
		IsActive: req.IsActive,
	}
	if req.Rules != nil {
		rules, err := toRules(*req.Rules)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch.Rules = rules
		if len(rules) == 0 {
			respondWithError(w, http.StatusBadRequest, models.ErrNoRules.Error())
			return
		}
	}

	unlock := h.engine.Locks().Lock(id)
	defer unlock()

	if _, err := h.owned(r, id); err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	m, err := h.store.Replace(r.Context(), id, patch)
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}

	logger.Info("Monitor updated",
		logger.String("monitor_id", m.ID),
		logger.String("owner_id", m.OwnerID),
	)
	respondWithJSON(w, http.StatusOK, h.view(m))
}

// DeleteMonitor handles DELETE /api/v1/monitors/{id}
func (h *MonitorHandler) DeleteMonitor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	unlock := h.engine.Locks().Lock(id)
	defer unlock()

	if _, err := h.owned(r, id); err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	deleted, err := h.store.Delete(r.Context(), id)
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	if !deleted {
		respondWithError(w, http.StatusNotFound, "Monitor not found")
		return
	}

	logger.Info("Monitor deleted",
		logger.String("monitor_id", id),
		logger.String("owner_id", ownerFrom(r)),
	)
	w.WriteHeader(http.StatusNoContent)
}

// ResetMonitor handles POST /api/v1/monitors/{id}/reset
func (h *MonitorHandler) ResetMonitor(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.owned(r, id); err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	m, err := h.engine.ResetMonitor(r.Context(), id)
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.view(m))
}

// ResetRule handles POST /api/v1/monitors/{id}/rules/{ruleID}/reset
func (h *MonitorHandler) ResetRule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := h.owned(r, vars["id"]); err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	m, err := h.engine.ResetRule(r.Context(), vars["id"], vars["ruleID"])
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.view(m))
}

// CheckNow handles POST /api/v1/monitors/check
func (h *MonitorHandler) CheckNow(w http.ResponseWriter, r *http.Request) {
	started := h.checker != nil && h.checker.TriggerNow()
	respondWithJSON(w, http.StatusAccepted, map[string]bool{"started": started})
}

type exportDocument struct {
	Version    string            `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	Monitors   []*models.Monitor `json:"monitors"`
}

// ExportMonitors handles GET /api/v1/monitors/export
func (h *MonitorHandler) ExportMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := h.store.LoadAll(r.Context(), ownerFrom(r))
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	if monitors == nil {
		monitors = []*models.Monitor{}
	}
	w.Header().Set("Content-Disposition", `attachment; filename="monitors.json"`)
	respondWithJSON(w, http.StatusOK, exportDocument{
		Version:    ExportVersion,
		ExportedAt: h.now().UTC(),
		Monitors:   monitors,
	})
}

// importRequest is an export document. The browser export's settings block
// is accepted and ignored; poll intervals are server configuration.
type importRequest struct {
	Version  string            `json:"version"`
	Monitors []json.RawMessage `json:"monitors"`
}

// ImportResult counts the outcome of an import
type ImportResult struct {
	Imported int `json:"imported"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
}

// ImportMonitors handles POST /api/v1/monitors/import. Entries may be exports
// of either record shape. An entry whose code matches an existing monitor of
// the owner replaces that monitor's name, switch and rules; anything else is
// inserted. Entries that cannot be migrated are skipped. Documents of another
// export version are rejected as a whole.
func (h *MonitorHandler) ImportMonitors(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Version == "" || req.Monitors == nil {
		respondWithError(w, http.StatusBadRequest, "Invalid import document: version and monitors are required")
		return
	}
	if req.Version != ExportVersion {
		respondWithError(w, http.StatusBadRequest,
			fmt.Sprintf("Unsupported export version %q, expected %q", req.Version, ExportVersion))
		return
	}

	ctx := r.Context()
	owner := ownerFrom(r)
	today := h.engine.Today()

	existing, err := h.store.LoadAll(ctx, owner)
	if err != nil {
		respondWithStoreError(w, r, err)
		return
	}
	byCode := make(map[string]string, len(existing))
	for _, m := range existing {
		byCode[m.Code] = m.ID
	}

	var result ImportResult
	for i, raw := range req.Monitors {
		m, err := decodeImported(raw, today)
		if err != nil {
			result.Skipped++
			logger.Warn("Skipping import entry",
				logger.Int("index", i),
				logger.String("owner_id", owner),
				logger.ErrorField(err),
			)
			continue
		}

		if id, ok := byCode[m.Code]; ok {
			if err := h.replaceImported(ctx, id, m); err != nil {
				result.Skipped++
				logger.Warn("Failed to update imported monitor",
					logger.String("monitor_id", id),
					logger.ErrorField(err),
				)
				continue
			}
			result.Updated++
			continue
		}

		m.ID = ""
		m.OwnerID = owner
		m.CreatedAt = time.Time{}
		inserted, err := h.store.Insert(ctx, m)
		if err != nil {
			result.Skipped++
			logger.Warn("Failed to insert imported monitor",
				logger.String("code", m.Code),
				logger.ErrorField(err),
			)
			continue
		}
		byCode[inserted.Code] = inserted.ID
		result.Imported++
	}

	logger.Info("Monitors imported",
		logger.String("owner_id", owner),
		logger.Int("imported", result.Imported),
		logger.Int("updated", result.Updated),
		logger.Int("skipped", result.Skipped),
	)
	respondWithJSON(w, http.StatusOK, result)
}

func decodeImported(raw json.RawMessage, today string) (*models.Monitor, error) {
	rec, err := models.DecodeMonitorRecord(raw)
	if err != nil {
		return nil, err
	}
	return rec.Migrate(today)
}

func (h *MonitorHandler) replaceImported(ctx context.Context, id string, m *models.Monitor) error {
	unlock := h.engine.Locks().Lock(id)
	defer unlock()

	_, err := h.store.Replace(ctx, id, models.MonitorPatch{
		Name:          &m.Name,
		IsActive:      &m.IsActive,
		Rules:         m.Rules,
		LastResetDate: &m.LastResetDate,
	})
	return err
}

// owned loads a monitor and hides monitors of other owners
func (h *MonitorHandler) owned(r *http.Request, id string) (*models.Monitor, error) {
	m, err := h.store.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if m.OwnerID != ownerFrom(r) {
		return nil, fmt.Errorf("%w: %s", models.ErrMonitorNotFound, id)
	}
	return m, nil
}

func (h *MonitorHandler) lookupName(ctx context.Context, code string) string {
	if h.names == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, h.lookupLimit)
	defer cancel()

	name, err := h.names.LookupName(ctx, code)
	if err != nil {
		logger.Warn("Failed to look up stock name",
			logger.String("code", code),
			logger.ErrorField(err),
		)
		return ""
	}
	return name
}

// respondWithStoreError maps store and validation errors onto status codes
func respondWithStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrMonitorNotFound):
		respondWithError(w, http.StatusNotFound, "Monitor not found")
	case errors.Is(err, models.ErrRuleNotFound):
		respondWithError(w, http.StatusNotFound, "Rule not found")
	case models.IsValidationError(err):
		respondWithError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("Store operation failed",
			logger.String("path", r.URL.Path),
			logger.ErrorField(err),
		)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
