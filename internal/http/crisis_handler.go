package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"wisefido-crisis/internal/catalog"
	"wisefido-crisis/internal/domain"

	"go.uber.org/zap"
)

// CrisisAlerter 人工告警
type CrisisAlerter interface {
	RaiseAlert(ctx context.Context, phoneNumber, message, severity string) (*domain.EscalationRun, error)
}

// EscalationTracker 升级记录查询与确认
type EscalationTracker interface {
	GetRun(runID string) (*domain.EscalationRun, error)
	Acknowledge(ctx context.Context, runID, responder string) (*domain.EscalationRun, error)
}

// ResourceFinder 资源目录
type ResourceFinder interface {
	TopResources(n int, filter catalog.Filter) []domain.CrisisResource
}

// CrisisHandler 危机告警、升级记录与资源查询
type CrisisHandler struct {
	alerts      CrisisAlerter
	escalations EscalationTracker
	resources   ResourceFinder
	logger      *zap.Logger
}

func NewCrisisHandler(alerts CrisisAlerter, escalations EscalationTracker, resources ResourceFinder, logger *zap.Logger) *CrisisHandler {
	return &CrisisHandler{alerts: alerts, escalations: escalations, resources: resources, logger: logger}
}

type alertRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
	Severity    string `json:"severity,omitempty"`
}

// Alerts POST /crisis/api/v1/alerts
func (h *CrisisHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req alertRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("Invalid request body"))
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, Fail("Missing required fields: phoneNumber, message"))
		return
	}
	run, err := h.alerts.RaiseAlert(r.Context(), req.PhoneNumber, req.Message, req.Severity)
	if err != nil {
		writeError(w, h.logger, "raise_alert", err)
		return
	}
	writeJSON(w, http.StatusOK, Result{
		Success: true,
		Message: "Crisis alert created and response sent",
		Data:    run,
	})
}

type ackRequest struct {
	Responder string `json:"responder"`
}

// Escalations /crisis/api/v1/escalations/{id} 与 /crisis/api/v1/escalations/{id}/ack
func (h *CrisisHandler) Escalations(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/crisis/api/v1/escalations/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusNotFound, Fail("Escalation id is required"))
		return
	}

	switch action {
	case "":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		run, err := h.escalations.GetRun(id)
		if err != nil {
			writeError(w, h.logger, "get_escalation", err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(run))
	case "ack":
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		var req ackRequest
		if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("Invalid request body"))
			return
		}
		run, err := h.escalations.Acknowledge(r.Context(), id, strings.TrimSpace(req.Responder))
		if err != nil {
			writeError(w, h.logger, "ack_escalation", err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(run))
	default:
		writeJSON(w, http.StatusNotFound, Fail("Not found"))
	}
}

// Resources GET /crisis/api/v1/resources?limit=&service_type=&language=&coverage=&national_only=&only_24x7=
func (h *CrisisHandler) Resources(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	filter := catalog.Filter{
		ServiceType:  strings.TrimSpace(q.Get("service_type")),
		CoverageCode: strings.TrimSpace(q.Get("coverage")),
		Language:     strings.TrimSpace(q.Get("language")),
	}
	filter.NationalOnly, _ = strconv.ParseBool(q.Get("national_only"))
	filter.Only24x7, _ = strconv.ParseBool(q.Get("only_24x7"))
	filter.MaxPriority = parseInt(q.Get("max_priority"), 0)
	if emergency, _ := strconv.ParseBool(q.Get("emergency")); emergency {
		filter.MaxPriority = catalog.EmergencyContactsMaxPriority
	}

	limit := parseInt(q.Get("limit"), 0)
	if limit < 0 {
		writeJSON(w, http.StatusBadRequest, Fail("limit must not be negative"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.resources.TopResources(limit, filter)))
}
