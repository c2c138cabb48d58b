package repository

import (
	"context"
	"testing"
	"time"

	"wisefido-crisis/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryMessagesRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMessagesRepo()
	now := time.Now()

	m1 := &domain.Message{ID: "m1", CounterpartyAddress: "+1", Status: domain.MessageQueued, CreatedAt: now}
	m2 := &domain.Message{ID: "m2", CounterpartyAddress: "+1", Status: domain.MessageQueued, CreatedAt: now}
	m0 := &domain.Message{ID: "m0", CounterpartyAddress: "+1", Status: domain.MessageDelivered, CreatedAt: now.Add(-time.Second)}
	require.NoError(t, repo.CreateMessage(ctx, m1))
	require.NoError(t, repo.CreateMessage(ctx, m2))
	require.NoError(t, repo.CreateMessage(ctx, m0))
	assert.ErrorIs(t, repo.CreateMessage(ctx, m1), domain.ErrConflict)

	list, err := repo.ListMessagesByAddress(ctx, "+1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"m0", "m1", "m2"}, []string{list[0].ID, list[1].ID, list[2].ID})

	empty, err := repo.ListMessagesByAddress(ctx, "+2")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	sent := *m1
	sent.Status = domain.MessageSent
	sent.ExternalMessageID = "ext-1"
	require.NoError(t, repo.UpdateMessage(ctx, &sent, domain.MessageQueued))
	// 同一前置状态再次写入：比较失败
	assert.ErrorIs(t, repo.UpdateMessage(ctx, &sent, domain.MessageQueued), domain.ErrConflict)

	got, err := repo.GetMessageByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.ID)
	assert.Equal(t, domain.MessageSent, got.Status)

	_, err = repo.GetMessageByExternalID(ctx, "ext-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateMessage(ctx, &domain.Message{ID: "nope"}, domain.MessageQueued), domain.ErrNotFound)
}

func TestMemoryRiskEventsRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRiskEventsRepo()

	require.NoError(t, repo.CreateRiskEvent(ctx, &domain.RiskEvent{ID: "e1", SubjectID: "s", RiskLevel: domain.RiskHigh}))
	require.NoError(t, repo.CreateRiskEvent(ctx, &domain.RiskEvent{ID: "e2", SubjectID: "other"}))
	assert.ErrorIs(t, repo.CreateRiskEvent(ctx, &domain.RiskEvent{}), domain.ErrValidation)

	list, err := repo.ListRiskEventsBySubject(ctx, "s")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "e1", list[0].ID)
	assert.Equal(t, []string{}, list[0].IndicatorsMatched)
}
