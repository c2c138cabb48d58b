package httpapi

import (
	"context"
	"net/http"
	"strings"

	"wisefido-crisis/internal/domain"
	"wisefido-crisis/internal/service"

	"go.uber.org/zap"
)

// AssessmentSubmitter 评估提交
type AssessmentSubmitter interface {
	Submit(ctx context.Context, req service.SubmitAssessmentRequest) (*service.SubmitAssessmentResult, error)
}

// AssessmentHandler 评估问卷
type AssessmentHandler struct {
	submitter   AssessmentSubmitter
	assessments service.AssessmentSource
	logger      *zap.Logger
}

func NewAssessmentHandler(submitter AssessmentSubmitter, assessments service.AssessmentSource, logger *zap.Logger) *AssessmentHandler {
	return &AssessmentHandler{submitter: submitter, assessments: assessments, logger: logger}
}

type submitRequest struct {
	SubjectID      string                    `json:"subject_id"`
	ContactAddress string                    `json:"contact_address,omitempty"`
	Responses      []domain.QuestionResponse `json:"responses"`
}

// Assessments GET /assessment/api/v1/assessments/{id}，POST /assessment/api/v1/assessments/{id}/submit
func (h *AssessmentHandler) Assessments(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/assessment/api/v1/assessments/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeJSON(w, http.StatusNotFound, Fail("Assessment id is required"))
		return
	}

	switch action {
	case "":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		a, err := h.assessments.Assessment(id)
		if err != nil {
			writeError(w, h.logger, "get_assessment", err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(a))
	case "submit":
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		var req submitRequest
		if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("Invalid request body"))
			return
		}
		res, err := h.submitter.Submit(r.Context(), service.SubmitAssessmentRequest{
			AssessmentID:   id,
			SubjectID:      req.SubjectID,
			ContactAddress: req.ContactAddress,
			Responses:      req.Responses,
		})
		if err != nil {
			writeError(w, h.logger, "submit_assessment", err)
			return
		}
		writeJSON(w, http.StatusOK, Ok(res))
	default:
		writeJSON(w, http.StatusNotFound, Fail("Not found"))
	}
}
