package application

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/command"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/entity"
	repo "github.com/oksasatya/go-cqrs-bounded-contexts/internal/domain/repository"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/infrastructure/memory"
	"github.com/oksasatya/go-cqrs-bounded-contexts/internal/messaging"
)

var errBoom = errors.New("connection reset")

func nullLogger() *logrus.Logger {
	l, _ := test.NewNullLogger()
	return l
}

// plainHasher keeps tests fast; it is not a real hash.
type plainHasher struct{}

func (plainHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }
func (plainHasher) Verify(hash, plain string) bool  { return hash == "hashed:"+plain }

type seqMinter struct {
	mu sync.Mutex
	n  int
}

func (m *seqMinter) Mint(userID string, _, _ time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return userID + "-tok-" + strconv.Itoa(m.n), nil
}

// flakyUsers fails Create or Deactivate until failures runs out.
type flakyUsers struct {
	*memory.UserRepository
	mu       sync.Mutex
	failures int
}

func (f *flakyUsers) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures != 0 {
		f.failures--
		return errBoom
	}
	return nil
}

func (f *flakyUsers) Create(ctx context.Context, u *entity.User) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.UserRepository.Create(ctx, u)
}

func (f *flakyUsers) Deactivate(ctx context.Context, id string, at time.Time) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.UserRepository.Deactivate(ctx, id, at)
}

var _ repo.UserRepository = (*flakyUsers)(nil)

type brokenDedup struct{}

func (brokenDedup) Seen(context.Context, string) (bool, error) { return false, errBoom }
func (brokenDedup) MarkApplied(context.Context, string) error  { return errBoom }

type brokenAttempts struct{}

func (brokenAttempts) Increment(context.Context, string) (int, error) { return 0, errBoom }
func (brokenAttempts) Reset(context.Context, string) error            { return errBoom }

type recordingHook struct {
	mu    sync.Mutex
	users []string
	err   error
}

func (h *recordingHook) UserCreated(_ context.Context, u *entity.User) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.users = append(h.users, u.Email)
	return h.err
}

func (h *recordingHook) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.users...)
}

// fakeDelivery records how the consumer settled it.
type fakeDelivery struct {
	msg         messaging.Message
	redelivered bool

	settledAs string
	reason    string
}

func (d *fakeDelivery) Message() messaging.Message { return d.msg }
func (d *fakeDelivery) Redelivered() bool          { return d.redelivered }
func (d *fakeDelivery) Ack() error                 { d.settledAs = "ack"; return nil }
func (d *fakeDelivery) Retry() error               { d.settledAs = "retry"; return nil }
func (d *fakeDelivery) DeadLetter(_ context.Context, reason string) error {
	d.settledAs = "dead"
	d.reason = reason
	return nil
}

func envelopeDelivery(t *testing.T, env command.Envelope) *fakeDelivery {
	t.Helper()
	body, err := command.Encode(env)
	require.NoError(t, err)
	return &fakeDelivery{msg: messaging.Message{ID: env.ID, Type: string(env.Type), Body: body}}
}

func commandDelivery(t *testing.T, cmd command.Command) (*fakeDelivery, command.Envelope) {
	t.Helper()
	env := command.NewEnvelope(cmd, time.Now())
	return envelopeDelivery(t, env), env
}

// redeliver returns a fresh delivery of the same message flagged redelivered.
func (d *fakeDelivery) redeliver() *fakeDelivery {
	return &fakeDelivery{msg: d.msg, redelivered: true}
}
