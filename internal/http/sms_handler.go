package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"wisefido-crisis/internal/domain"

	"go.uber.org/zap"
)

// MessagingService 短信网关能力
type MessagingService interface {
	Send(ctx context.Context, to, body string, crisisFlag bool) (*domain.Message, error)
	ReceiveInbound(ctx context.Context, from, to, body string) error
	ReceiveStatusUpdate(ctx context.Context, externalID, status string, ts time.Time) (*domain.Message, error)
	GetHistory(ctx context.Context, address string) ([]*domain.Message, error)
}

// SMSHandler 运营商 webhook 与短信管理接口
type SMSHandler struct {
	gateway MessagingService
	logger  *zap.Logger
}

func NewSMSHandler(gateway MessagingService, logger *zap.Logger) *SMSHandler {
	return &SMSHandler{gateway: gateway, logger: logger}
}

type incomingRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Incoming POST /sms/api/v1/webhook/incoming
func (h *SMSHandler) Incoming(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req incomingRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("Invalid request body"))
		return
	}
	if strings.TrimSpace(req.From) == "" || strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, Fail("Missing required fields: from, to, message"))
		return
	}
	if err := h.gateway.ReceiveInbound(r.Context(), req.From, req.To, req.Message); err != nil {
		writeError(w, h.logger, "receive_inbound", err)
		return
	}
	writeJSON(w, http.StatusOK, OkMessage("Message processed successfully"))
}

type statusRequest struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Status POST /sms/api/v1/webhook/status
// 未知 messageId 返回 200 并忽略，避免运营商反复重投
func (h *SMSHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req statusRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("Invalid request body"))
		return
	}
	if strings.TrimSpace(req.MessageID) == "" || strings.TrimSpace(req.Status) == "" {
		writeJSON(w, http.StatusBadRequest, Fail("Missing required fields: messageId, status"))
		return
	}

	_, err := h.gateway.ReceiveStatusUpdate(r.Context(), req.MessageID, req.Status, parseTimestamp(req.Timestamp))
	if errors.Is(err, domain.ErrNotFound) {
		h.logger.Warn("Status update for unknown message ignored",
			zap.String("external_id", req.MessageID),
			zap.String("status", req.Status),
		)
		writeJSON(w, http.StatusOK, OkMessage("Status update ignored"))
		return
	}
	if err != nil {
		writeError(w, h.logger, "receive_status_update", err)
		return
	}
	writeJSON(w, http.StatusOK, OkMessage("Status updated successfully"))
}

// parseTimestamp 支持 RFC3339 与 unix 秒；无法解析时返回零值（由网关取当前时间）
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if secs := parseInt(s, -1); secs > 0 {
		return time.Unix(int64(secs), 0).UTC()
	}
	return time.Time{}
}

type sendRequest struct {
	To             string `json:"to"`
	Message        string `json:"message"`
	CrisisDetected bool   `json:"crisisDetected"`
}

// Send POST /sms/api/v1/send
func (h *SMSHandler) Send(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req sendRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("Invalid request body"))
		return
	}
	if strings.TrimSpace(req.To) == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, Fail("Missing required fields: to, message"))
		return
	}
	msg, err := h.gateway.Send(r.Context(), req.To, req.Message, req.CrisisDetected)
	if err != nil {
		writeError(w, h.logger, "send", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(msg))
}

// History GET /sms/api/v1/history?phoneNumber=
func (h *SMSHandler) History(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	phone := strings.TrimSpace(r.URL.Query().Get("phoneNumber"))
	if phone == "" {
		writeJSON(w, http.StatusBadRequest, Fail("Phone number is required"))
		return
	}
	history, err := h.gateway.GetHistory(r.Context(), phone)
	if err != nil {
		writeError(w, h.logger, "get_history", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(history))
}

var unsafeFileChars = regexp.MustCompile(`[^0-9A-Za-z_-]+`)

// ExportHistory GET /sms/api/v1/history/export?phoneNumber=
func (h *SMSHandler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	phone := strings.TrimSpace(r.URL.Query().Get("phoneNumber"))
	if phone == "" {
		writeJSON(w, http.StatusBadRequest, Fail("Phone number is required"))
		return
	}
	history, err := h.gateway.GetHistory(r.Context(), phone)
	if err != nil {
		writeError(w, h.logger, "export_history", err)
		return
	}
	data, err := GenerateMessageHistoryExport(history)
	if err != nil {
		writeError(w, h.logger, "export_history", err)
		return
	}

	name := unsafeFileChars.ReplaceAllString(phone, "")
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=sms-history-%s.xlsx", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
