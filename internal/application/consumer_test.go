package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/command"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/infrastructure/memory"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/messaging"
)

type consumerFixture struct {
	users    *flakyUsers
	dedup    DedupStore
	attempts AttemptTracker
	hook     *recordingHook
	consumer *CommandConsumer
	delays   []time.Duration
}

func newConsumerFixture(t *testing.T) *consumerFixture {
	t.Helper()
	f := &consumerFixture{
		users:    &flakyUsers{UserRepository: memory.NewUserRepository()},
		dedup:    memory.NewDedupStore(time.Hour),
		attempts: memory.NewAttemptTracker(),
		hook:     &recordingHook{},
	}
	f.build(DefaultConsumerConfig())
	return f
}

func (f *consumerFixture) build(cfg ConsumerConfig) {
	f.consumer = NewCommandConsumer(f.users, plainHasher{}, f.dedup, f.attempts, nullLogger(), cfg, f.hook)
	f.consumer.sleep = func(_ context.Context, d time.Duration) error {
		f.delays = append(f.delays, d)
		return nil
	}
}

func TestConsumer_HandlerForEveryCommandType(t *testing.T) {
	f := newConsumerFixture(t)
	for _, typ := range command.Types() {
		_, ok := f.consumer.handlers[typ]
		assert.True(t, ok, "no handler for %s", typ)
	}
}

func TestConsumer_CreateUser(t *testing.T) {
	f := newConsumerFixture(t)
	ctx := context.Background()

	d, env := commandDelivery(t, command.CreateUser{Name: "Ana", Email: "Ana@X.com", Password: "p1"})
	assert.Equal(t, OutcomeAcked, f.consumer.Handle(ctx, d))
	assert.Equal(t, "ack", d.settledAs)

	u, err := f.users.GetByEmail(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.Name)
	assert.Equal(t, env.ID, u.SourceCommandID)
	assert.Equal(t, "hashed:p1", u.PasswordHash)
	assert.True(t, u.IsActive())
	assert.Equal(t, []string{"ana@x.com"}, f.hook.calls())

	seen, err := f.dedup.Seen(ctx, env.ID)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestConsumer_RedeliveryAfterApplyIsAckedWithoutApply(t *testing.T) {
	f := newConsumerFixture(t)
	ctx := context.Background()

	d, _ := commandDelivery(t, command.CreateUser{Name: "Ana", Email: "ana@x.com", Password: "p1"})
	require.Equal(t, OutcomeAcked, f.consumer.Handle(ctx, d))

	again := d.redeliver()
	assert.Equal(t, OutcomeAcked, f.consumer.Handle(ctx, again))
	assert.Equal(t, "ack", again.settledAs)
	assert.Equal(t, 1, f.users.Count())
	assert.Len(t, f.hook.calls(), 1)
}

func TestConsumer_RedeliveryWithLostDedupIsIdempotent(t *testing.T) {
	f := newConsumerFixture(t)
	ctx := context.Background()

	d, _ := commandDelivery(t, command.CreateUser{Name: "Ana", Email: "ana@x.com", Password: "p1"})
	require.Equal(t, OutcomeAcked, f.consumer.Handle(ctx, d))

	// dedup record gone: the repository's own uniqueness has to catch it
	f.dedup = memory.NewDedupStore(time.Hour)
	f.build(DefaultConsumerConfig())

	again := d.redeliver()
	assert.Equal(t, OutcomeAcked, f.consumer.Handle(ctx, again))
	assert.Equal(t, 1, f.users.Count())
	assert.Len(t, f.hook.calls(), 1)
}

func TestConsumer_DuplicateEmailFromOtherCommandIsDeadLettered(t *testing.T) {
	f := newConsumerFixture(t)
	ctx := context.Background()

	first, firstEnv := commandDelivery(t, command.CreateUser{Name: "Ana", Email: "ana@x.com", Password: "p1"})
	require.Equal(t, OutcomeAcked, f.consumer.Handle(ctx, first))

	second, _ := commandDelivery(t, command.CreateUser{Name: "Impostor", Email: "ANA@x.com", Password: "p2"})
	assert.Equal(t, OutcomeDeadLetter, f.consumer.Handle(ctx, second))
	assert.Equal(t, "dead", second.settledAs)
	assert.Contains(t, second.reason, "conflicts")

	u, err := f.users.GetByEmail(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.Name)
	assert.Equal(t, firstEnv.ID, u.SourceCommandID)
	assert.Equal(t, 1, f.users.Count())
}

func TestConsumer_ValidationFailureIsDeadLettered(t *testing.T) {
	tests := []struct {
		name string
		cmd  command.Command
	}{
		{"bad email", command.CreateUser{Name: "Ana", Email: "nope", Password: "p1"}},
		{"empty name", command.CreateUser{Name: "", Email: "ana@x.com", Password: "p1"}},
		{"empty password", command.CreateUser{Name: "Ana", Email: "ana@x.com", Password: ""}},
		{"empty user id", command.DeactivateUser{UserID: ""}},
		{"unknown user", command.DeactivateUser{UserID: "b7e4c0f0-0000-4000-8000-000000000000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newConsumerFixture(t)
			d, _ := commandDelivery(t, tt.cmd)
			assert.Equal(t, OutcomeDeadLetter, f.consumer.Handle(context.Background(), d))
			assert.Equal(t, "dead", d.settledAs)
			assert.Contains(t, d.reason, "invalid")
			assert.Zero(t, f.users.Count())
			assert.Empty(t, f.delays)
		})
	}
}

func TestConsumer_UndecodableMessageIsDeadLettered(t *testing.T) {
	bodies := map[string]string{
		"not json":        `{{{`,
		"unknown type":    `{"command_id":"c1","command_type":"DropTables","payload":{},"created_at":"2026-01-01T00:00:00Z"}`,
		"missing field":   `{"command_id":"c1","command_type":"CreateUser","payload":{"name":"Ana"},"created_at":"2026-01-01T00:00:00Z"}`,
		"missing id":      `{"command_type":"CreateUser","payload":{"name":"Ana","email":"a@x.com","password":"p"},"created_at":"2026-01-01T00:00:00Z"}`,
		"extra field":     `{"command_id":"c1","command_type":"DeactivateUser","payload":{"user_id":"u","admin":true},"created_at":"2026-01-01T00:00:00Z"}`,
		"missing created": `{"command_id":"c1","command_type":"DeactivateUser","payload":{"user_id":"u"}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			f := newConsumerFixture(t)
			d := &fakeDelivery{msg: messaging.Message{ID: "m1", Body: []byte(body)}}
			assert.Equal(t, OutcomeDeadLetter, f.consumer.Handle(context.Background(), d))
			assert.Contains(t, d.reason, "decode command")
		})
	}
}

func TestConsumer_TransientFailureRetriesThenSucceeds(t *testing.T) {
	f := newConsumerFixture(t)
	f.users.failures = 2
	ctx := context.Background()

	d, env := commandDelivery(t, command.CreateUser{Name: "Ana", Email: "ana@x.com", Password: "p1"})
	assert.Equal(t, OutcomeRetry, f.consumer.Handle(ctx, d))
	assert.Equal(t, "retry", d.settledAs)

	d = d.redeliver()
	assert.Equal(t, OutcomeRetry, f.consumer.Handle(ctx, d))

	d = d.redeliver()
	assert.Equal(t, OutcomeAcked, f.consumer.Handle(ctx, d))
	assert.Equal(t, 1, f.users.Count())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.delays)

	// the counter was reset on success
	n, err := f.attempts.Increment(ctx, env.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConsumer_TransientFailureDeadLettersAtMaxAttempts(t *testing.T) {
	f := newConsumerFixture(t)
	f.users.failures = -1
	f.build(ConsumerConfig{MaxAttempts: 3, BaseRetryDelay: 10 * time.Millisecond, MaxRetryDelay: time.Second})
	ctx := context.Background()

	d, _ := commandDelivery(t, command.CreateUser{Name: "Ana", Email: "ana@x.com", Password: "p1"})
	var outcomes []Outcome
	for i := 0; i < 3; i++ {
		outcomes = append(outcomes, f.consumer.Handle(ctx, d))
		d = d.redeliver()
	}
	assert.Equal(t, []Outcome{OutcomeRetry, OutcomeRetry, OutcomeDeadLetter}, outcomes)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, f.delays)
	assert.Zero(t, f.users.Count())
}

func TestConsumer_DedupLookupFailureRetries(t *testing.T) {
	f := newConsumerFixture(t)
	f.dedup = brokenDedup{}
	f.build(DefaultConsumerConfig())

	d, _ := commandDelivery(t, command.CreateUser{Name: "Ana", Email: "ana@x.com", Password: "p1"})
	assert.Equal(t, OutcomeRetry, f.consumer.Handle(context.Background(), d))
	assert.Zero(t, f.users.Count())
}

func TestConsumer_AttemptTrackerDownEscalatesRedelivered(t *testing.T) {
	f := newConsumerFixture(t)
	f.users.failures = -1
	f.attempts = brokenAttempts{}
	f.build(DefaultConsumerConfig())
	ctx := context.Background()

	d, _ := commandDelivery(t, command.CreateUser{Name: "Ana", Email: "ana@x.com", Password: "p1"})
	assert.Equal(t, OutcomeRetry, f.consumer.Handle(ctx, d))
	assert.Equal(t, OutcomeDeadLetter, f.consumer.Handle(ctx, d.redeliver()))
}

func TestConsumer_HookFailureDoesNotAffectOutcome(t *testing.T) {
	f := newConsumerFixture(t)
	f.hook.err = errBoom

	d, _ := commandDelivery(t, command.CreateUser{Name: "Ana", Email: "ana@x.com", Password: "p1"})
	assert.Equal(t, OutcomeAcked, f.consumer.Handle(context.Background(), d))
	assert.Equal(t, 1, f.users.Count())
}

func TestConsumer_DeactivateUser(t *testing.T) {
	f := newConsumerFixture(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	f.consumer.Now = func() time.Time { return now }
	ctx := context.Background()

	create, _ := commandDelivery(t, command.CreateUser{Name: "Ana", Email: "ana@x.com", Password: "p1"})
	require.Equal(t, OutcomeAcked, f.consumer.Handle(ctx, create))
	u, err := f.users.GetByEmail(ctx, "ana@x.com")
	require.NoError(t, err)

	d, _ := commandDelivery(t, command.DeactivateUser{UserID: u.ID})
	assert.Equal(t, OutcomeAcked, f.consumer.Handle(ctx, d))

	got, err := f.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeactivatedAt)
	assert.True(t, got.DeactivatedAt.Equal(now))
}

func TestConsumer_RetryDelay(t *testing.T) {
	c := &CommandConsumer{Config: ConsumerConfig{BaseRetryDelay: time.Second, MaxRetryDelay: 5 * time.Second}}
	assert.Equal(t, time.Second, c.retryDelay(1))
	assert.Equal(t, 2*time.Second, c.retryDelay(2))
	assert.Equal(t, 4*time.Second, c.retryDelay(3))
	assert.Equal(t, 5*time.Second, c.retryDelay(4))
	assert.Equal(t, 5*time.Second, c.retryDelay(30))
}
