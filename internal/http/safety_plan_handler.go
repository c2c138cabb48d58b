package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"wisefido-crisis/internal/domain"

	"go.uber.org/zap"
)

// SafetyPlanService 安全计划能力
type SafetyPlanService interface {
	CreatePlan(ctx context.Context, userID string) (*domain.SafetyPlan, error)
	GetPlan(ctx context.Context, userID string) (*domain.SafetyPlan, error)
	ListPlans(ctx context.Context, userID string) ([]*domain.SafetyPlan, error)
	UpdatePlan(ctx context.Context, planID string, update domain.SafetyPlanUpdate) (*domain.SafetyPlan, error)
	SupersedePlan(ctx context.Context, userID string) (*domain.SafetyPlan, error)
}

type SafetyPlanHandler struct {
	plans  SafetyPlanService
	logger *zap.Logger
}

func NewSafetyPlanHandler(plans SafetyPlanService, logger *zap.Logger) *SafetyPlanHandler {
	return &SafetyPlanHandler{plans: plans, logger: logger}
}

type userRequest struct {
	UserID string `json:"user_id"`
}

// Plans POST 创建；GET ?user_id= 查询 active 计划，带 all=true 时返回全部计划
func (h *SafetyPlanHandler) Plans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req userRequest
		if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("Invalid request body"))
			return
		}
		plan, err := h.plans.CreatePlan(r.Context(), req.UserID)
		if err != nil {
			writeError(w, h.logger, "create_safety_plan", err)
			return
		}
		writeJSON(w, http.StatusCreated, Ok(plan))
	case http.MethodGet:
		userID := r.URL.Query().Get("user_id")
		if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); all {
			plans, err := h.plans.ListPlans(r.Context(), userID)
			if err != nil {
				writeError(w, h.logger, "list_safety_plans", err)
				return
			}
			writeJSON(w, http.StatusOK, Ok(plans))
			return
		}
		plan, err := h.plans.GetPlan(r.Context(), userID)
		if err != nil {
			writeError(w, h.logger, "get_safety_plan", err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(plan))
	default:
		writeJSON(w, http.StatusMethodNotAllowed, Fail("Method not allowed"))
	}
}

// PlanByID PUT /safety-plan/api/v1/plans/{id}；POST /safety-plan/api/v1/plans/supersede
func (h *SafetyPlanHandler) PlanByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/safety-plan/api/v1/plans/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusNotFound, Fail("Not found"))
		return
	}

	if id == "supersede" {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		var req userRequest
		if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("Invalid request body"))
			return
		}
		plan, err := h.plans.SupersedePlan(r.Context(), req.UserID)
		if err != nil {
			writeError(w, h.logger, "supersede_safety_plan", err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(plan))
		return
	}

	if !allowMethod(w, r, http.MethodPut) {
		return
	}
	var update domain.SafetyPlanUpdate
	if err := readBodyJSON(r, maxBodyBytes, &update); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("Invalid request body"))
		return
	}
	plan, err := h.plans.UpdatePlan(r.Context(), id, update)
	if err != nil {
		writeError(w, h.logger, "update_safety_plan", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(plan))
}
