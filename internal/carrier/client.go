package carrier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wisefido-crisis/internal/metrics"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Carrier 短信运营商能力
type Carrier interface {
	// Send 提交一条短信，返回运营商消息 ID；拒绝时返回 *Error
	Send(ctx context.Context, to, body string) (string, error)
	// FetchStatus 查询运营商侧状态（原始状态字符串）
	FetchStatus(ctx context.Context, externalID string) (string, error)
}

// Error 运营商拒绝（4xx/5xx 或业务错误码）
type Error struct {
	StatusCode  int
	Code        int
	Description string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("carrier rejected request (http %d, code %d): %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("carrier rejected request (http %d): %s", e.StatusCode, e.Description)
}

// sendRequest POST /messages 请求体
type sendRequest struct {
	Originator string   `json:"originator"`
	Recipients []string `json:"recipients"`
	Body       string   `json:"body"`
}

type recipientStatus struct {
	Recipient      any    `json:"recipient"`
	Status         string `json:"status"`
	StatusDatetime string `json:"statusDatetime,omitempty"`
}

// messageResponse 运营商消息对象
type messageResponse struct {
	ID         string `json:"id"`
	Recipients struct {
		TotalCount int               `json:"totalCount"`
		Items      []recipientStatus `json:"items"`
	} `json:"recipients"`
}

type errorResponse struct {
	Errors []struct {
		Code        int    `json:"code"`
		Description string `json:"description"`
		Parameter   string `json:"parameter,omitempty"`
	} `json:"errors"`
}

// Client 基于 REST 的短信运营商客户端
type Client struct {
	httpClient *resty.Client
	originator string
	logger     *zap.Logger
}

var _ Carrier = (*Client)(nil)

// NewClient 创建运营商客户端
// 发送只尝试一次（不重试）：重复提交会造成重复短信
func NewClient(baseURL, accessKey, originator string, timeout time.Duration, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "AccessKey "+accessKey)

	return &Client{
		httpClient: client,
		originator: originator,
		logger:     logger,
	}
}

// Send 提交短信
func (c *Client) Send(ctx context.Context, to, body string) (string, error) {
	start := time.Now()
	var (
		result  messageResponse
		failure errorResponse
	)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(sendRequest{Originator: c.originator, Recipients: []string{to}, Body: body}).
		SetResult(&result).
		SetError(&failure).
		Post("/messages")
	if err != nil {
		observe("send", "error", start)
		c.logger.Warn("Carrier send failed",
			zap.String("to", to),
			zap.Error(err),
		)
		return "", fmt.Errorf("carrier send: %w", err)
	}
	if resp.IsError() {
		observe("send", "rejected", start)
		cerr := toError(resp.StatusCode(), failure)
		c.logger.Warn("Carrier rejected message",
			zap.String("to", to),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("description", cerr.Description),
		)
		return "", cerr
	}
	if result.ID == "" {
		observe("send", "rejected", start)
		return "", &Error{StatusCode: resp.StatusCode(), Description: "response carried no message id"}
	}
	observe("send", "accepted", start)

	c.logger.Debug("Carrier accepted message",
		zap.String("to", to),
		zap.String("external_id", result.ID),
	)
	return result.ID, nil
}

// FetchStatus 查询消息状态；多收件人时取第一个收件人的状态
func (c *Client) FetchStatus(ctx context.Context, externalID string) (string, error) {
	start := time.Now()
	var (
		result  messageResponse
		failure errorResponse
	)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetPathParam("id", externalID).
		SetResult(&result).
		SetError(&failure).
		Get("/messages/{id}")
	if err != nil {
		observe("fetch_status", "error", start)
		return "", fmt.Errorf("carrier fetch status: %w", err)
	}
	if resp.IsError() {
		observe("fetch_status", "rejected", start)
		return "", toError(resp.StatusCode(), failure)
	}
	observe("fetch_status", "ok", start)
	if len(result.Recipients.Items) == 0 {
		return "", &Error{StatusCode: resp.StatusCode(), Description: "response carried no recipient status"}
	}
	return result.Recipients.Items[0].Status, nil
}

func toError(statusCode int, failure errorResponse) *Error {
	e := &Error{StatusCode: statusCode, Description: "request rejected"}
	if len(failure.Errors) > 0 {
		e.Code = failure.Errors[0].Code
		e.Description = failure.Errors[0].Description
	}
	return e
}

func observe(op, result string, start time.Time) {
	metrics.CarrierRequestDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

// IsRejection 是否为运营商明确拒绝（区别于网络错误/超时）
func IsRejection(err error) bool {
	var cerr *Error
	return errors.As(err, &cerr)
}
