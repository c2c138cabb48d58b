package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"wisefido-crisis/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockMessagesDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresMessagesRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresMessagesRepository(db)
}

var messageRowColumns = []string{
	"id", "direction", "counterparty_address", "local_address", "body", "crisis_flag",
	"status", "failure_reason", "external_message_id", "created_at", "updated_at", "delivered_at",
}

// ============================================
// 写入
// ============================================

func TestCreateMessage_Success(t *testing.T) {
	db, mock, repo := setupMockMessagesDB(t)
	defer db.Close()

	now := time.Now().UTC()
	msg := &domain.Message{
		ID:                  uuid.NewString(),
		Direction:           domain.DirectionOutbound,
		CounterpartyAddress: "+15551234567",
		LocalAddress:        "+15550000000",
		Body:                "hello",
		CrisisFlag:          true,
		Status:              domain.MessageQueued,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	mock.ExpectExec(`INSERT INTO sms_messages`).
		WithArgs(msg.ID, "outbound", "+15551234567", "+15550000000", "hello", true,
			"queued", nil, nil, now, now, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateMessage(context.Background(), msg))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessage_DuplicateIsConflict(t *testing.T) {
	db, mock, repo := setupMockMessagesDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO sms_messages`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})

	err := repo.CreateMessage(context.Background(), &domain.Message{ID: uuid.NewString(), Status: domain.MessageQueued})
	assert.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// 查询
// ============================================

func TestGetMessageByExternalID_Success(t *testing.T) {
	db, mock, repo := setupMockMessagesDB(t)
	defer db.Close()

	id := uuid.NewString()
	created := time.Now().Add(-time.Minute)
	delivered := time.Now()
	rows := sqlmock.NewRows(messageRowColumns).AddRow(
		id, "outbound", "+15551234567", "+15550000000", "hi", false,
		"delivered", "", "ext-1", created, delivered, delivered,
	)
	mock.ExpectQuery(`(?s)SELECT .* FROM sms_messages\s+WHERE external_message_id = \$1`).
		WithArgs("ext-1").
		WillReturnRows(rows)

	msg, err := repo.GetMessageByExternalID(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, domain.DirectionOutbound, msg.Direction)
	assert.Equal(t, domain.MessageDelivered, msg.Status)
	require.NotNil(t, msg.DeliveredAt)
	assert.True(t, delivered.Equal(*msg.DeliveredAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMessageByExternalID_NotFound(t *testing.T) {
	db, mock, repo := setupMockMessagesDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetMessageByExternalID(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListMessagesByAddress_EmptyIsNotNil(t *testing.T) {
	db, mock, repo := setupMockMessagesDB(t)
	defer db.Close()

	mock.ExpectQuery(`ORDER BY created_at ASC, seq ASC`).
		WithArgs("+15559999999").
		WillReturnRows(sqlmock.NewRows(messageRowColumns))

	list, err := repo.ListMessagesByAddress(context.Background(), "+15559999999")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// 比较交换更新
// ============================================

func TestUpdateMessage_CompareAndSet(t *testing.T) {
	db, mock, repo := setupMockMessagesDB(t)
	defer db.Close()

	now := time.Now()
	msg := &domain.Message{ID: uuid.NewString(), Status: domain.MessageSent, ExternalMessageID: "ext-9", UpdatedAt: now}

	mock.ExpectExec(`UPDATE sms_messages`).
		WithArgs(msg.ID, "sent", nil, "ext-9", now, nil, "queued").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateMessage(context.Background(), msg, domain.MessageQueued))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMessage_StaleStatusIsConflict(t *testing.T) {
	db, mock, repo := setupMockMessagesDB(t)
	defer db.Close()

	now := time.Now()
	msg := &domain.Message{ID: uuid.NewString(), Status: domain.MessageDelivered, UpdatedAt: now, DeliveredAt: &now}

	mock.ExpectExec(`UPDATE sms_messages`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`(?s)SELECT .* FROM sms_messages\s+WHERE id = \$1::uuid`).
		WithArgs(msg.ID).
		WillReturnRows(sqlmock.NewRows(messageRowColumns).AddRow(
			msg.ID, "outbound", "+1", "", "x", false, "failed", "rejected", "", now, now, nil,
		))

	err := repo.UpdateMessage(context.Background(), msg, domain.MessageSent)
	assert.ErrorIs(t, err, domain.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMessage_Missing(t *testing.T) {
	db, mock, repo := setupMockMessagesDB(t)
	defer db.Close()

	id := uuid.NewString()
	mock.ExpectExec(`UPDATE sms_messages`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT`).WithArgs(id).WillReturnError(sql.ErrNoRows)

	err := repo.UpdateMessage(context.Background(), &domain.Message{ID: id, Status: domain.MessageSent}, domain.MessageQueued)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range schemaStatements {
		mock.ExpectExec(`CREATE|ALTER`).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, EnsureSchema(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}
