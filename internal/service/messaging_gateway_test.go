package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"wisefido-crisis/internal/carrier"
	"wisefido-crisis/internal/catalog"
	"wisefido-crisis/internal/domain"
	"wisefido-crisis/internal/escalation"
	"wisefido-crisis/internal/notifier"
	"wisefido-crisis/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCarrier 可编排的运营商
type fakeCarrier struct {
	mu       sync.Mutex
	seq      int
	sent     []string // 收件人
	rejectTo map[string]error
	statuses map[string]string
}

func newFakeCarrier() *fakeCarrier {
	return &fakeCarrier{rejectTo: map[string]error{}, statuses: map[string]string{}}
}

func (c *fakeCarrier) Send(_ context.Context, to, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.rejectTo[to]; ok {
		return "", err
	}
	c.seq++
	c.sent = append(c.sent, to)
	return fmt.Sprintf("ext-%d", c.seq), nil
}

func (c *fakeCarrier) FetchStatus(_ context.Context, externalID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.statuses[externalID]
	if !ok {
		return "", &carrier.Error{StatusCode: http.StatusNotFound, Description: "message not found"}
	}
	return s, nil
}

type recordingEscalator struct {
	mu     sync.Mutex
	events []domain.RiskEvent
}

func (e *recordingEscalator) Escalate(_ context.Context, event domain.RiskEvent) (*domain.EscalationRun, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return &domain.EscalationRun{ID: "run-1", Event: event, State: domain.StateDispatched}, nil
}

type recordingObserver struct {
	mu        sync.Mutex
	delivered []string
}

func (o *recordingObserver) OnMessageDelivered(_ context.Context, msg *domain.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered = append(o.delivered, msg.ID)
}

func newTestGateway(c carrier.Carrier) (*MessagingGateway, *repository.MemoryMessagesRepo) {
	repo := repository.NewMemoryMessagesRepo()
	return NewMessagingGateway(repo, c, nil, zap.NewNop()), repo
}

// seedMessage 直接写入指定状态的出站消息
func seedMessage(t *testing.T, repo *repository.MemoryMessagesRepo, status domain.MessageStatus, externalID string) *domain.Message {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := &domain.Message{
		ID:                  "msg-" + externalID,
		Direction:           domain.DirectionOutbound,
		CounterpartyAddress: "+15551234567",
		Body:                "hello",
		Status:              status,
		ExternalMessageID:   externalID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	require.NoError(t, repo.CreateMessage(context.Background(), msg))
	return msg
}

func TestGateway_SendAccepted(t *testing.T) {
	ctx := context.Background()
	c := newFakeCarrier()
	g, repo := newTestGateway(c)

	msg, err := g.Send(ctx, "+15551234567", "hello", true)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageSent, msg.Status)
	assert.Equal(t, "ext-1", msg.ExternalMessageID)
	assert.True(t, msg.CrisisFlag)

	stored, err := repo.GetMessageByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, msg.ID, stored.ID)
	assert.Equal(t, domain.MessageSent, stored.Status)
}

func TestGateway_SendValidation(t *testing.T) {
	g, _ := newTestGateway(newFakeCarrier())

	_, err := g.Send(context.Background(), "", "hello", false)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	_, err = g.Send(context.Background(), "+1555", "  ", false)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

// 运营商拒绝：消息记录为 failed，调用本身不报错
func TestGateway_SendCarrierRejectionRecordsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"code": 9, "description": "no (correct) recipients found"}},
		})
	}))
	defer srv.Close()

	ctx := context.Background()
	g, repo := newTestGateway(carrier.NewClient(srv.URL, "key", "+15550000000", time.Second, zap.NewNop()))

	msg, err := g.Send(ctx, "+15551234567", "hello", true)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageFailed, msg.Status)
	assert.Equal(t, "no (correct) recipients found", msg.FailureReason)
	assert.Empty(t, msg.ExternalMessageID)

	history, err := repo.ListMessagesByAddress(ctx, "+15551234567")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.MessageFailed, history[0].Status)
}

func TestGateway_SendCarrierTimeoutRecordsFailed(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	g, _ := newTestGateway(carrier.NewClient(srv.URL, "key", "+15550000000", 50*time.Millisecond, zap.NewNop()))

	msg, err := g.Send(context.Background(), "+15551234567", "hello", true)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageFailed, msg.Status)
	assert.Equal(t, "carrier timeout", msg.FailureReason)
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]domain.MessageStatus{
		"delivered":       domain.MessageDelivered,
		"DELIVERED":       domain.MessageDelivered,
		"sent":            domain.MessageSent,
		"buffered":        domain.MessageSent,
		"accepted":        domain.MessageSent,
		"scheduled":       domain.MessageSent,
		"failed":          domain.MessageFailed,
		"delivery_failed": domain.MessageFailed,
		"expired":         domain.MessageFailed,
		"undelivered":     domain.MessageFailed,
		"rejected":        domain.MessageFailed,
	}
	for raw, want := range cases {
		got, err := NormalizeStatus(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := NormalizeStatus("teleported")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestGateway_StatusUpdateForwardOnlyMatrix(t *testing.T) {
	states := []domain.MessageStatus{domain.MessageSent, domain.MessageDelivered, domain.MessageFailed}
	for _, current := range states {
		for _, incoming := range states {
			t.Run(string(current)+"->"+string(incoming), func(t *testing.T) {
				ctx := context.Background()
				g, repo := newTestGateway(newFakeCarrier())
				seedMessage(t, repo, current, "ext-m")

				got, err := g.ReceiveStatusUpdate(ctx, "ext-m", string(incoming), time.Time{})
				require.NoError(t, err)

				want := current
				if current.CanTransitionTo(incoming) {
					want = incoming
				}
				assert.Equal(t, want, got.Status)

				stored, err := repo.GetMessage(ctx, "msg-ext-m")
				require.NoError(t, err)
				assert.Equal(t, want, stored.Status)
			})
		}
	}
}

func TestGateway_StatusUpdateIdempotent(t *testing.T) {
	ctx := context.Background()
	g, repo := newTestGateway(newFakeCarrier())
	obs := &recordingObserver{}
	g.SetDeliveryObserver(obs)
	seedMessage(t, repo, domain.MessageSent, "ext-1")

	ts := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	first, err := g.ReceiveStatusUpdate(ctx, "ext-1", "delivered", ts)
	require.NoError(t, err)
	require.NotNil(t, first.DeliveredAt)
	assert.Equal(t, ts, *first.DeliveredAt)

	second, err := g.ReceiveStatusUpdate(ctx, "ext-1", "delivered", ts.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, domain.MessageDelivered, second.Status)
	assert.Equal(t, ts, *second.DeliveredAt)

	// 乱序到达的 sent 不回退
	third, err := g.ReceiveStatusUpdate(ctx, "ext-1", "sent", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageDelivered, third.Status)

	assert.Len(t, obs.delivered, 1)
}

func TestGateway_StatusUpdateErrors(t *testing.T) {
	ctx := context.Background()
	g, repo := newTestGateway(newFakeCarrier())
	seedMessage(t, repo, domain.MessageSent, "ext-1")

	_, err := g.ReceiveStatusUpdate(ctx, "ext-unknown", "delivered", time.Time{})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = g.ReceiveStatusUpdate(ctx, "ext-1", "teleported", time.Time{})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = g.ReceiveStatusUpdate(ctx, "", "delivered", time.Time{})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	failed, err := g.ReceiveStatusUpdate(ctx, "ext-1", "expired", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageFailed, failed.Status)
	assert.Equal(t, "carrier reported expired", failed.FailureReason)
}

func TestGateway_ConcurrentStatusUpdatesNotifyOnce(t *testing.T) {
	ctx := context.Background()
	g, repo := newTestGateway(newFakeCarrier())
	obs := &recordingObserver{}
	g.SetDeliveryObserver(obs)
	seedMessage(t, repo, domain.MessageSent, "ext-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.ReceiveStatusUpdate(ctx, "ext-1", "delivered", time.Time{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, obs.delivered, 1)
}

func TestGateway_RefreshStatus(t *testing.T) {
	ctx := context.Background()
	c := newFakeCarrier()
	g, repo := newTestGateway(c)
	obs := &recordingObserver{}
	g.SetDeliveryObserver(obs)

	msg, err := g.Send(ctx, "+1555", "hello", false)
	require.NoError(t, err)

	c.statuses[msg.ExternalMessageID] = "delivered"
	refreshed, err := g.RefreshStatus(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageDelivered, refreshed.Status)
	assert.Equal(t, []string{msg.ID}, obs.delivered)

	// 终态不再查询运营商
	delete(c.statuses, msg.ExternalMessageID)
	again, err := g.RefreshStatus(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageDelivered, again.Status)

	// 尚无 external id
	queued := seedMessage(t, repo, domain.MessageQueued, "")
	got, err := g.RefreshStatus(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageQueued, got.Status)

	_, err = g.RefreshStatus(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGateway_ReceiveInbound(t *testing.T) {
	ctx := context.Background()
	g, repo := newTestGateway(newFakeCarrier())
	esc := &recordingEscalator{}
	g.SetEscalator(esc)

	require.NoError(t, g.ReceiveInbound(ctx, "+15551234567", "+15550000000", "see you tomorrow"))
	assert.Empty(t, esc.events)

	require.NoError(t, g.ReceiveInbound(ctx, "+15551234567", "+15550000000", "I feel HOPELESS and want to END MY LIFE"))
	require.Len(t, esc.events, 1)
	ev := esc.events[0]
	assert.Equal(t, domain.SourceMessage, ev.SourceType)
	assert.Equal(t, "+15551234567", ev.SubjectID)
	assert.Equal(t, "+15551234567", ev.ContactAddress)
	assert.Equal(t, domain.RiskCrisis, ev.RiskLevel)
	assert.Equal(t, []string{"severe_depression", "suicide"}, ev.IndicatorsMatched)

	history, err := repo.ListMessagesByAddress(ctx, "+15551234567")
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, m := range history {
		assert.Equal(t, domain.DirectionInbound, m.Direction)
		assert.Equal(t, domain.MessageDelivered, m.Status)
		assert.NotNil(t, m.DeliveredAt)
	}
	assert.False(t, history[0].CrisisFlag)
	assert.True(t, history[1].CrisisFlag)

	err = g.ReceiveInbound(ctx, "", "+15550000000", "hi")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestGateway_GetHistory(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGateway(newFakeCarrier())

	empty, err := g.GetHistory(ctx, "+19990000000")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = g.GetHistory(ctx, "")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

type countingNotifier struct {
	mu         sync.Mutex
	responders int
	sessions   int
	timeouts   int
}

func (n *countingNotifier) AlertSession(context.Context, notifier.SessionAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessions++
	return nil
}

func (n *countingNotifier) NotifyResponders(context.Context, notifier.ResponderAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.responders++
	return nil
}

func (n *countingNotifier) SignalTimeout(context.Context, notifier.TimeoutSignal) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.timeouts++
	return nil
}

// 入站危机短信 -> 即时回复 + 资源短信 + 响应人通知 -> 送达回执确认升级
func TestEndToEnd_InboundCrisisMessage(t *testing.T) {
	ctx := context.Background()
	c := newFakeCarrier()
	g, _ := newTestGateway(c)
	sinks := &countingNotifier{}
	engine := escalation.NewEngine(escalation.Deps{
		Messenger:  g,
		Refresher:  g,
		Resources:  catalog.NewDefault(),
		RiskEvents: repository.NewMemoryRiskEventsRepo(),
		Sessions:   sinks,
		Responders: sinks,
		Operators:  sinks,
	}, escalation.DefaultPolicy(), zap.NewNop())
	g.SetEscalator(engine)
	g.SetDeliveryObserver(engine)

	const subject = "+15557654321"
	require.NoError(t, g.ReceiveInbound(ctx, subject, "+15550000000", "I want to kill myself"))

	history, err := g.GetHistory(ctx, subject)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.DirectionInbound, history[0].Direction)
	assert.Equal(t, escalation.AutoReplyText, history[1].Body)
	assert.Contains(t, history[2].Body, "988")
	for _, m := range history[1:] {
		assert.Equal(t, domain.DirectionOutbound, m.Direction)
		assert.Equal(t, domain.MessageSent, m.Status)
		assert.True(t, m.CrisisFlag)
	}
	assert.Equal(t, 1, sinks.responders)
	assert.Zero(t, sinks.sessions)

	// 资源短信送达 -> 升级确认，超时扫描不再发信号
	_, err = g.ReceiveStatusUpdate(ctx, history[2].ExternalMessageID, "delivered", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, engine.Sweep(ctx, time.Now().Add(time.Hour)))
	assert.Zero(t, sinks.timeouts)
}

// 运营商 webhook 请求已取消，危机消息仍然得到回复
func TestReceiveInbound_CancelledRequestStillEscalates(t *testing.T) {
	c := newFakeCarrier()
	g, _ := newTestGateway(c)
	sinks := &countingNotifier{}
	engine := escalation.NewEngine(escalation.Deps{
		Messenger:  g,
		Refresher:  g,
		Resources:  catalog.NewDefault(),
		RiskEvents: repository.NewMemoryRiskEventsRepo(),
		Sessions:   sinks,
		Responders: sinks,
		Operators:  sinks,
	}, escalation.DefaultPolicy(), zap.NewNop())
	g.SetEscalator(engine)
	g.SetDeliveryObserver(engine)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	const subject = "+15557654321"
	require.NoError(t, g.ReceiveInbound(ctx, subject, "+15550000000", "I want to end it all"))

	history, err := g.GetHistory(context.Background(), subject)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, escalation.AutoReplyText, history[1].Body)
	assert.Equal(t, domain.MessageSent, history[1].Status)
	assert.Equal(t, domain.MessageSent, history[2].Status)
}
