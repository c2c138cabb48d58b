package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements 服务自带的表结构（幂等）
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sms_messages (
		id                   UUID PRIMARY KEY,
		direction            TEXT NOT NULL,
		counterparty_address TEXT NOT NULL,
		local_address        TEXT NOT NULL DEFAULT '',
		body                 TEXT NOT NULL,
		crisis_flag          BOOLEAN NOT NULL DEFAULT FALSE,
		status               TEXT NOT NULL,
		failure_reason       TEXT,
		external_message_id  TEXT UNIQUE,
		created_at           TIMESTAMPTZ NOT NULL,
		updated_at           TIMESTAMPTZ NOT NULL,
		delivered_at         TIMESTAMPTZ,
		seq                  BIGSERIAL
	)`,
	// seq 为插入序号，created_at 相同时按插入顺序排列
	`ALTER TABLE sms_messages ADD COLUMN IF NOT EXISTS seq BIGSERIAL`,
	`CREATE INDEX IF NOT EXISTS idx_sms_messages_counterparty_seq
		ON sms_messages (counterparty_address, created_at, seq)`,
	`CREATE TABLE IF NOT EXISTS risk_events (
		id                 UUID PRIMARY KEY,
		source_type        TEXT NOT NULL,
		subject_id         TEXT NOT NULL,
		contact_address    TEXT,
		raw_score          DOUBLE PRECISION NOT NULL DEFAULT 0,
		risk_level         TEXT NOT NULL,
		indicators_matched TEXT[] NOT NULL DEFAULT '{}',
		clamped            BOOLEAN NOT NULL DEFAULT FALSE,
		detected_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_risk_events_subject
		ON risk_events (subject_id, detected_at)`,
}

// EnsureSchema 创建所需的表和索引
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
