package httpapi

import (
	"errors"
	"net/http"

	"wisefido-crisis/internal/domain"

	"go.uber.org/zap"
)

// Result 统一响应体：成功时带 data 或 message，失败时带 error
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Ok(data any) Result {
	return Result{Success: true, Data: data}
}

func OkMessage(message string) Result {
	return Result{Success: true, Message: message}
}

func Fail(message string) Result {
	return Result{Success: false, Error: message}
}

const internalErrorMessage = "Internal server error"

// writeError 错误分类映射到 HTTP 状态码；非预期错误只记录日志，对外统一返回通用信息
func writeError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrIncompleteResponse):
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Fail(err.Error()))
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, Fail(err.Error()))
	default:
		logger.Error("Request failed", zap.String("op", op), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(internalErrorMessage))
	}
}
