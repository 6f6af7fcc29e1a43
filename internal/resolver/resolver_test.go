package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSession struct {
	mu    sync.Mutex
	token string
}

func (s *fakeSession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSession) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

type CheckerMock struct {
	mock.Mock
}

func (m *CheckerMock) CheckSubscription(ctx context.Context, token string) (models.Status, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(models.Status), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var (
	periodEnd  = time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	subscriber = models.Status{Subscribed: true, Role: models.RoleSubscriber, SubscriptionEnd: &periodEnd, PriceID: "price_123"}
	admin      = models.Status{Subscribed: true, IsAdmin: true, Role: models.RoleAdmin}
)

func newResolver(checker Checker, session Session, clock Clock, opts Options) *Resolver {
	return New(newNoopLogger(), checker, session, clock, opts)
}

func TestCheckEntitlement_Unauthenticated(t *testing.T) {
	checker := new(CheckerMock)
	r := newResolver(checker, &fakeSession{}, newFakeClock(), Options{})

	status := r.CheckEntitlement(context.Background(), false)

	assert.Equal(t, models.Unauthenticated(), status)
	assert.False(t, r.State().IsLoading)
	checker.AssertNotCalled(t, "CheckSubscription", mock.Anything, mock.Anything)
}

func TestCheckEntitlement_LogoutClearsCache(t *testing.T) {
	checker := new(CheckerMock)
	session := &fakeSession{token: "t1"}
	r := newResolver(checker, session, newFakeClock(), Options{})
	checker.On("CheckSubscription", mock.Anything, "t1").Return(subscriber, nil).Twice()

	require.Equal(t, subscriber, r.CheckEntitlement(context.Background(), false))

	session.Set("")
	assert.Equal(t, models.Unauthenticated(), r.CheckEntitlement(context.Background(), false))
	assert.False(t, r.HasPremiumAccess())

	// Кеш сброшен: повторный вход идёт в сеть даже в пределах TTL.
	session.Set("t1")
	assert.Equal(t, subscriber, r.CheckEntitlement(context.Background(), false))
	checker.AssertNumberOfCalls(t, "CheckSubscription", 2)
}

func TestCheckEntitlement_TTL(t *testing.T) {
	checker := new(CheckerMock)
	clock := newFakeClock()
	r := newResolver(checker, &fakeSession{token: "t1"}, clock, Options{})
	checker.On("CheckSubscription", mock.Anything, "t1").Return(subscriber, nil)

	first := r.CheckEntitlement(context.Background(), false)
	for range 5 {
		clock.Advance(900 * time.Millisecond)
		assert.Equal(t, first, r.CheckEntitlement(context.Background(), false))
	}
	checker.AssertNumberOfCalls(t, "CheckSubscription", 1)

	clock.Advance(500 * time.Millisecond)
	r.CheckEntitlement(context.Background(), false)
	checker.AssertNumberOfCalls(t, "CheckSubscription", 2)
}

func TestCheckEntitlement_ForceBypassesTTL(t *testing.T) {
	checker := new(CheckerMock)
	r := newResolver(checker, &fakeSession{token: "t1"}, newFakeClock(), Options{})
	checker.On("CheckSubscription", mock.Anything, "t1").Return(models.Unauthenticated(), nil).Once()
	checker.On("CheckSubscription", mock.Anything, "t1").Return(subscriber, nil).Once()

	assert.False(t, r.CheckEntitlement(context.Background(), false).Subscribed)
	assert.True(t, r.CheckEntitlement(context.Background(), true).Subscribed)
	checker.AssertExpectations(t)
}

type blockingChecker struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	status  models.Status
}

func (b *blockingChecker) CheckSubscription(ctx context.Context, _ string) (models.Status, error) {
	b.calls.Add(1)
	close(b.started)
	select {
	case <-b.release:
		return b.status, nil
	case <-ctx.Done():
		return models.Status{}, ctx.Err()
	}
}

func TestCheckEntitlement_InFlightGuard(t *testing.T) {
	checker := &blockingChecker{started: make(chan struct{}), release: make(chan struct{}), status: admin}
	r := newResolver(checker, &fakeSession{token: "t1"}, newFakeClock(), Options{})

	done := make(chan models.Status, 1)
	go func() { done <- r.CheckEntitlement(context.Background(), true) }()
	<-checker.started

	assert.True(t, r.State().IsLoading)
	// Вторая проверка, даже принудительная, не стартует.
	assert.Equal(t, models.Unauthenticated(), r.CheckEntitlement(context.Background(), true))

	close(checker.release)
	assert.Equal(t, admin, <-done)
	assert.Equal(t, int32(1), checker.calls.Load())
	assert.False(t, r.State().IsLoading)
	assert.True(t, r.HasPremiumAccess())
}

// tokenChecker задерживает ответ для токена blockOn до закрытия release.
type tokenChecker struct {
	blockOn  string
	started  chan struct{}
	release  chan struct{}
	statuses map[string]models.Status
}

func (c *tokenChecker) CheckSubscription(_ context.Context, token string) (models.Status, error) {
	if token == c.blockOn {
		close(c.started)
		<-c.release
	}
	return c.statuses[token], nil
}

func TestCheckEntitlement_LogoutDuringCheckDropsResult(t *testing.T) {
	checker := &tokenChecker{
		blockOn:  "tok-a",
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		statuses: map[string]models.Status{"tok-a": subscriber},
	}
	session := &fakeSession{token: "tok-a"}
	var (
		mu      sync.Mutex
		changes []models.Status
	)
	r := newResolver(checker, session, newFakeClock(), Options{
		OnChange: func(s models.Status) {
			mu.Lock()
			defer mu.Unlock()
			changes = append(changes, s)
		},
	})

	done := make(chan models.Status, 1)
	go func() { done <- r.CheckEntitlement(context.Background(), false) }()
	<-checker.started

	session.Set("")
	assert.Equal(t, models.Unauthenticated(), r.CheckEntitlement(context.Background(), false))

	close(checker.release)
	assert.Equal(t, models.Unauthenticated(), <-done)

	assert.Equal(t, State{Status: models.Unauthenticated()}, r.State())
	assert.False(t, r.HasPremiumAccess())
	mu.Lock()
	assert.Empty(t, changes)
	mu.Unlock()
}

func TestCheckEntitlement_SwitchUserDropsStaleResult(t *testing.T) {
	checker := &tokenChecker{
		blockOn:  "tok-a",
		started:  make(chan struct{}),
		release:  make(chan struct{}),
		statuses: map[string]models.Status{"tok-a": subscriber, "tok-b": models.Unauthenticated()},
	}
	session := &fakeSession{token: "tok-a"}
	r := newResolver(checker, session, newFakeClock(), Options{})

	done := make(chan models.Status, 1)
	go func() { done <- r.CheckEntitlement(context.Background(), false) }()
	<-checker.started

	// Новая сессия не ждёт проверку прежней и получает свой статус.
	session.Set("tok-b")
	assert.Equal(t, models.Unauthenticated(), r.CheckEntitlement(context.Background(), false))

	close(checker.release)
	<-done

	assert.Equal(t, models.Unauthenticated(), r.CheckEntitlement(context.Background(), false))
	assert.False(t, r.HasPremiumAccess())
}

func TestCheckEntitlement_TokenChangeResetsCache(t *testing.T) {
	checker := new(CheckerMock)
	session := &fakeSession{token: "tok-a"}
	r := newResolver(checker, session, newFakeClock(), Options{})
	checker.On("CheckSubscription", mock.Anything, "tok-a").Return(subscriber, nil).Once()
	checker.On("CheckSubscription", mock.Anything, "tok-b").Return(admin, nil).Once()

	require.Equal(t, subscriber, r.CheckEntitlement(context.Background(), false))
	session.Set("tok-b")
	assert.Equal(t, admin, r.CheckEntitlement(context.Background(), false))
	checker.AssertExpectations(t)
}

func TestCheckEntitlement_FailOpen(t *testing.T) {
	t.Run("keeps last known status", func(t *testing.T) {
		checker := new(CheckerMock)
		clock := newFakeClock()
		r := newResolver(checker, &fakeSession{token: "t1"}, clock, Options{})
		checker.On("CheckSubscription", mock.Anything, "t1").Return(subscriber, nil).Once()
		checker.On("CheckSubscription", mock.Anything, "t1").Return(models.Status{}, errors.New("stripe down")).Once()

		require.Equal(t, subscriber, r.CheckEntitlement(context.Background(), false))
		clock.Advance(DefaultTTL)

		assert.Equal(t, subscriber, r.CheckEntitlement(context.Background(), false))
		assert.Equal(t, State{Status: subscriber}, r.State())
		assert.True(t, r.HasPremiumAccess())

		// Время проверки обновлено и после ошибки: сразу повторять запрос не нужно.
		r.CheckEntitlement(context.Background(), false)
		checker.AssertNumberOfCalls(t, "CheckSubscription", 2)
	})

	t.Run("no prior status", func(t *testing.T) {
		checker := new(CheckerMock)
		r := newResolver(checker, &fakeSession{token: "t1"}, newFakeClock(), Options{})
		checker.On("CheckSubscription", mock.Anything, "t1").Return(models.Status{}, errors.New("unauthorized")).Once()

		assert.Equal(t, models.Unauthenticated(), r.CheckEntitlement(context.Background(), false))
		assert.Equal(t, State{Status: models.Unauthenticated()}, r.State())
	})

	t.Run("timeout is a failure", func(t *testing.T) {
		checker := &blockingChecker{started: make(chan struct{}), release: make(chan struct{})}
		r := newResolver(checker, &fakeSession{token: "t1"}, newFakeClock(), Options{Timeout: 20 * time.Millisecond})

		assert.Equal(t, models.Unauthenticated(), r.CheckEntitlement(context.Background(), false))
		assert.False(t, r.State().IsLoading)
	})
}

func TestCheckEntitlement_OnChange(t *testing.T) {
	checker := new(CheckerMock)
	session := &fakeSession{token: "t1"}
	var changes []models.Status
	r := newResolver(checker, session, newFakeClock(), Options{
		OnChange: func(s models.Status) { changes = append(changes, s) },
	})
	checker.On("CheckSubscription", mock.Anything, "t1").Return(subscriber, nil)

	r.CheckEntitlement(context.Background(), true)
	r.CheckEntitlement(context.Background(), true)
	session.Set("")
	r.CheckEntitlement(context.Background(), false)
	r.CheckEntitlement(context.Background(), false)

	assert.Equal(t, []models.Status{subscriber, models.Unauthenticated()}, changes)
}

func TestRun(t *testing.T) {
	checker := new(CheckerMock)
	session := &fakeSession{token: "t1"}
	var calls atomic.Int32
	checker.On("CheckSubscription", mock.Anything, "t1").
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(subscriber, nil)

	r := newResolver(checker, session, newFakeClock(), Options{RefreshInterval: time.Hour})
	authChanges := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		r.Run(ctx, authChanges)
		close(stopped)
	}()

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond, "check on start")

	// Смена сессии проверяется принудительно, несмотря на TTL.
	authChanges <- struct{}{}
	assert.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond, "check on auth change")

	session.Set("")
	authChanges <- struct{}{}
	assert.Eventually(t, func() bool { return !r.HasPremiumAccess() }, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped
	assert.Equal(t, int32(2), calls.Load())
}

func TestRun_PeriodicRefresh(t *testing.T) {
	checker := new(CheckerMock)
	var calls atomic.Int32
	checker.On("CheckSubscription", mock.Anything, "t1").
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(subscriber, nil)

	r := newResolver(checker, &fakeSession{token: "t1"}, newFakeClock(), Options{RefreshInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, nil)

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestRun_NoRefreshWhileLoggedOut(t *testing.T) {
	checker := new(CheckerMock)
	r := newResolver(checker, &fakeSession{}, newFakeClock(), Options{RefreshInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r.Run(ctx, nil)

	checker.AssertNotCalled(t, "CheckSubscription", mock.Anything, mock.Anything)
}

func TestNew_Defaults(t *testing.T) {
	r := New(newNoopLogger(), new(CheckerMock), &fakeSession{}, nil, Options{})

	assert.Equal(t, DefaultTTL, r.ttl)
	assert.Equal(t, DefaultTimeout, r.timeout)
	assert.Equal(t, DefaultRefreshInterval, r.interval)
	assert.IsType(t, SystemClock{}, r.clock)
	assert.Equal(t, State{Status: models.Unauthenticated()}, r.State())
}

func TestSameStatus(t *testing.T) {
	end1 := periodEnd
	end2 := periodEnd.In(time.FixedZone("UTC+3", 3*3600))
	a := models.Status{Subscribed: true, SubscriptionEnd: &end1}
	b := models.Status{Subscribed: true, SubscriptionEnd: &end2}

	assert.True(t, sameStatus(a, b))
	assert.False(t, sameStatus(a, models.Status{Subscribed: true}))
	assert.True(t, sameStatus(models.Unauthenticated(), models.Unauthenticated()))
	assert.False(t, sameStatus(subscriber, admin))
}
