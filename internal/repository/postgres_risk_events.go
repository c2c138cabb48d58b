package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-crisis/internal/domain"

	"github.com/lib/pq"
)

// PostgresRiskEventsRepository 风险事件日志
type PostgresRiskEventsRepository struct {
	db *sql.DB
}

func NewPostgresRiskEventsRepository(db *sql.DB) *PostgresRiskEventsRepository {
	return &PostgresRiskEventsRepository{db: db}
}

var _ RiskEventsRepository = (*PostgresRiskEventsRepository)(nil)

func (r *PostgresRiskEventsRepository) CreateRiskEvent(ctx context.Context, event *domain.RiskEvent) error {
	if event == nil || event.ID == "" {
		return fmt.Errorf("%w: risk event id is required", domain.ErrValidation)
	}
	indicators := event.IndicatorsMatched
	if indicators == nil {
		indicators = []string{}
	}

	query := `
		INSERT INTO risk_events (
			id, source_type, subject_id, contact_address, raw_score,
			risk_level, indicators_matched, clamped, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		string(event.SourceType),
		event.SubjectID,
		nullString(event.ContactAddress),
		event.RawScore,
		event.RiskLevel.String(),
		pq.Array(indicators),
		event.Clamped,
		event.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create risk event: %w", err)
	}
	return nil
}

func (r *PostgresRiskEventsRepository) ListRiskEventsBySubject(ctx context.Context, subjectID string) ([]*domain.RiskEvent, error) {
	query := `
		SELECT
			id::text,
			source_type,
			subject_id,
			COALESCE(contact_address, '') AS contact_address,
			raw_score,
			risk_level,
			indicators_matched,
			clamped,
			detected_at
		FROM risk_events
		WHERE subject_id = $1
		ORDER BY detected_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk events: %w", err)
	}
	defer rows.Close()

	out := []*domain.RiskEvent{}
	for rows.Next() {
		var (
			ev         domain.RiskEvent
			source     string
			level      string
			indicators pq.StringArray
		)
		if err := rows.Scan(
			&ev.ID,
			&source,
			&ev.SubjectID,
			&ev.ContactAddress,
			&ev.RawScore,
			&level,
			&indicators,
			&ev.Clamped,
			&ev.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan risk event: %w", err)
		}
		ev.SourceType = domain.RiskSource(source)
		parsed, err := domain.ParseRiskLevel(level)
		if err != nil {
			return nil, fmt.Errorf("risk event %s: %w", ev.ID, err)
		}
		ev.RiskLevel = parsed
		ev.IndicatorsMatched = []string(indicators)
		if ev.IndicatorsMatched == nil {
			ev.IndicatorsMatched = []string{}
		}
		out = append(out, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate risk events: %w", err)
	}
	return out, nil
}
