package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（用于 /metrics 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterSMSRoutes 运营商 webhook 与短信接口
func (r *Router) RegisterSMSRoutes(h *SMSHandler) {
	r.Handle("/sms/api/v1/webhook/incoming", h.Incoming)
	r.Handle("/sms/api/v1/webhook/status", h.Status)
	r.Handle("/sms/api/v1/send", h.Send)
	r.Handle("/sms/api/v1/history", h.History)
	r.Handle("/sms/api/v1/history/export", h.ExportHistory)
}

// RegisterCrisisRoutes 危机告警、升级记录、资源目录
func (r *Router) RegisterCrisisRoutes(h *CrisisHandler) {
	r.Handle("/crisis/api/v1/alerts", h.Alerts)
	r.Handle("/crisis/api/v1/escalations/", h.Escalations)
	r.Handle("/crisis/api/v1/resources", h.Resources)
}

func (r *Router) RegisterAssessmentRoutes(h *AssessmentHandler) {
	r.Handle("/assessment/api/v1/assessments/", h.Assessments)
}

func (r *Router) RegisterSafetyPlanRoutes(h *SafetyPlanHandler) {
	r.Handle("/safety-plan/api/v1/plans", h.Plans)
	r.Handle("/safety-plan/api/v1/plans/", h.PlanByID)
}

// RegisterHealthRoutes /healthz 与 /metrics
func (r *Router) RegisterHealthRoutes(metricsHandler http.Handler) {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, OkMessage("ok"))
	})
	r.HandleHandler("/metrics", metricsHandler)
}
