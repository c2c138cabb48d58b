package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wisefido-crisis/internal/domain"

	"github.com/lib/pq"
)

// PostgresMessagesRepository 短信记录 Repository 实现
type PostgresMessagesRepository struct {
	db *sql.DB
}

// NewPostgresMessagesRepository 创建短信记录 Repository
func NewPostgresMessagesRepository(db *sql.DB) *PostgresMessagesRepository {
	return &PostgresMessagesRepository{db: db}
}

// 确保实现了接口
var _ MessagesRepository = (*PostgresMessagesRepository)(nil)

const messageColumns = `
		id::text,
		direction,
		counterparty_address,
		local_address,
		body,
		crisis_flag,
		status,
		COALESCE(failure_reason, '') AS failure_reason,
		COALESCE(external_message_id, '') AS external_message_id,
		created_at,
		updated_at,
		delivered_at`

// CreateMessage 写入新消息
func (r *PostgresMessagesRepository) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("%w: message id is required", domain.ErrValidation)
	}

	query := `
		INSERT INTO sms_messages (
			id, direction, counterparty_address, local_address, body, crisis_flag,
			status, failure_reason, external_message_id, created_at, updated_at, delivered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		msg.ID,
		string(msg.Direction),
		msg.CounterpartyAddress,
		msg.LocalAddress,
		msg.Body,
		msg.CrisisFlag,
		string(msg.Status),
		nullString(msg.FailureReason),
		nullString(msg.ExternalMessageID),
		msg.CreatedAt,
		msg.UpdatedAt,
		nullTime(msg.DeliveredAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: message %s: %v", domain.ErrConflict, msg.ID, err)
		}
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetMessage 按内部 ID 查询
func (r *PostgresMessagesRepository) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM sms_messages
		WHERE id = $1::uuid
	`
	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: message %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// GetMessageByExternalID 按运营商消息 ID 查询
func (r *PostgresMessagesRepository) GetMessageByExternalID(ctx context.Context, externalID string) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM sms_messages
		WHERE external_message_id = $1
	`
	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: external message id %s", domain.ErrNotFound, externalID)
		}
		return nil, fmt.Errorf("failed to get message by external id: %w", err)
	}
	return msg, nil
}

// ListMessagesByAddress 对端号码的消息历史（created_at 升序，相同时按插入顺序）
func (r *PostgresMessagesRepository) ListMessagesByAddress(ctx context.Context, address string) ([]*domain.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM sms_messages
		WHERE counterparty_address = $1
		ORDER BY created_at ASC, seq ASC
	`
	rows, err := r.db.QueryContext(ctx, query, address)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	out := []*domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return out, nil
}

// UpdateMessage 比较交换：仅当库中状态仍为 prev 时写入
func (r *PostgresMessagesRepository) UpdateMessage(ctx context.Context, msg *domain.Message, prev domain.MessageStatus) error {
	query := `
		UPDATE sms_messages
		SET status = $2,
		    failure_reason = $3,
		    external_message_id = $4,
		    updated_at = $5,
		    delivered_at = $6
		WHERE id = $1::uuid
		  AND status = $7
	`
	res, err := r.db.ExecContext(ctx, query,
		msg.ID,
		string(msg.Status),
		nullString(msg.FailureReason),
		nullString(msg.ExternalMessageID),
		msg.UpdatedAt,
		nullTime(msg.DeliveredAt),
		string(prev),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: external message id %s: %v", domain.ErrConflict, msg.ExternalMessageID, err)
		}
		return fmt.Errorf("failed to update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if n == 0 {
		// 区分“不存在”和“状态已变化”
		if _, getErr := r.GetMessage(ctx, msg.ID); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: message %s is no longer %s", domain.ErrConflict, msg.ID, prev)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		msg         domain.Message
		direction   string
		status      string
		deliveredAt sql.NullTime
	)
	if err := row.Scan(
		&msg.ID,
		&direction,
		&msg.CounterpartyAddress,
		&msg.LocalAddress,
		&msg.Body,
		&msg.CrisisFlag,
		&status,
		&msg.FailureReason,
		&msg.ExternalMessageID,
		&msg.CreatedAt,
		&msg.UpdatedAt,
		&deliveredAt,
	); err != nil {
		return nil, err
	}
	msg.Direction = domain.MessageDirection(direction)
	msg.Status = domain.MessageStatus(status)
	if deliveredAt.Valid {
		t := deliveredAt.Time
		msg.DeliveredAt = &t
	}
	return &msg, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// isUniqueViolation 23505 unique_violation
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
