// Package resolver решает на стороне клиента, есть ли у текущего пользователя
// премиум-доступ.
//
// Resolver держит один кеш статуса на процесс: повторные вызовы в пределах TTL
// не уходят в сеть, одновременно выполняется не больше одной проверки, а при
// ошибке бэкенда сохраняется последний известный статус.
package resolver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

const (
	DefaultTTL             = 5 * time.Second
	DefaultTimeout         = 10 * time.Second
	DefaultRefreshInterval = 5 * time.Minute
)

// Clock источник текущего времени.
type Clock interface {
	Now() time.Time
}

// SystemClock часы операционной системы.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Session текущая сессия. Пустой токен означает, что пользователь не вошёл.
type Session interface {
	Token() string
}

// Checker вызывает проверку подписки на бэкенде.
type Checker interface {
	CheckSubscription(ctx context.Context, token string) (models.Status, error)
}

// State статус и признак незавершённой проверки.
type State struct {
	Status    models.Status
	IsLoading bool
}

// Options параметры Resolver. Нулевые значения заменяются значениями по умолчанию.
type Options struct {
	TTL             time.Duration
	Timeout         time.Duration
	RefreshInterval time.Duration
	// OnChange вызывается после смены статуса, вне блокировки.
	OnChange func(models.Status)
}

// Resolver кеширующий клиент проверки доступа.
type Resolver struct {
	log      *slog.Logger
	checker  Checker
	session  Session
	clock    Clock
	ttl      time.Duration
	timeout  time.Duration
	interval time.Duration
	onChange func(models.Status)

	mu        sync.Mutex
	status    models.Status
	lastCheck time.Time
	inFlight  bool
	// token сессии, к которой относится status.
	token string
	// generation растёт при каждом выходе или смене сессии. Ответ проверки,
	// начатой в другом поколении, отбрасывается.
	generation uint64
}

// New создаёт Resolver. Статус до первой проверки равен models.Unauthenticated().
func New(log *slog.Logger, checker Checker, session Session, clock Clock, opts Options) *Resolver {
	if clock == nil {
		clock = SystemClock{}
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	return &Resolver{
		log:      log,
		checker:  checker,
		session:  session,
		clock:    clock,
		ttl:      opts.TTL,
		timeout:  opts.Timeout,
		interval: opts.RefreshInterval,
		onChange: opts.OnChange,
		status:   models.Unauthenticated(),
	}
}

// CheckEntitlement возвращает статус доступа текущей сессии.
//
// Без сессии кеш сбрасывается и возвращается статус обычного пользователя.
// Смена токена сбрасывает кеш так же. Без force свежий (моложе TTL) результат
// возвращается без обращения к бэкенду. Если проверка уже идёт, возвращается
// текущий статус. Ошибка бэкенда не меняет статус, но время проверки всё равно
// обновляется. Ответ, пришедший после выхода или смены сессии, отбрасывается.
func (r *Resolver) CheckEntitlement(ctx context.Context, force bool) models.Status {
	const op = "resolver.CheckEntitlement"
	log := r.log.With(slog.String("op", op))

	token := r.session.Token()

	r.mu.Lock()
	if token != r.token {
		prev := r.reset(token)
		r.mu.Unlock()
		r.notify(prev, models.Unauthenticated())
		if token == "" {
			return models.Unauthenticated()
		}
		r.mu.Lock()
	}
	if token == "" {
		status := r.status
		r.mu.Unlock()
		return status
	}
	if !force && !r.lastCheck.IsZero() && r.clock.Now().Sub(r.lastCheck) < r.ttl {
		status := r.status
		r.mu.Unlock()
		return status
	}
	if r.inFlight {
		status := r.status
		r.mu.Unlock()
		log.Debug("check already in flight")
		return status
	}
	r.inFlight = true
	gen := r.generation
	r.mu.Unlock()

	checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
	fresh, err := r.checker.CheckSubscription(checkCtx, token)
	cancel()

	r.mu.Lock()
	if gen != r.generation {
		status := r.status
		r.mu.Unlock()
		log.Debug("session changed during check, result dropped")
		return status
	}
	r.inFlight = false
	r.lastCheck = r.clock.Now()
	if err != nil {
		status := r.status
		r.mu.Unlock()
		log.Warn("entitlement check failed, keeping last known status", sl.Err(err))
		return status
	}
	prev := r.status
	r.status = fresh
	r.mu.Unlock()

	r.notify(prev, fresh)
	return fresh
}

// reset сбрасывает кеш под новую сессию и возвращает прежний статус. Вызывается под mu.
func (r *Resolver) reset(token string) models.Status {
	prev := r.status
	r.status = models.Unauthenticated()
	r.lastCheck = time.Time{}
	r.inFlight = false
	r.token = token
	r.generation++
	return prev
}

// State текущий статус без обращения к бэкенду.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{Status: r.status, IsLoading: r.inFlight}
}

// HasPremiumAccess admin или оплаченная подписка по последнему известному статусу.
func (r *Resolver) HasPremiumAccess() bool {
	return r.State().Status.HasPremiumAccess()
}

// Run проверяет доступ при старте, при каждой смене сессии (с force)
// и раз в RefreshInterval, пока пользователь вошёл. Возвращается при отмене ctx.
func (r *Resolver) Run(ctx context.Context, authChanges <-chan struct{}) {
	r.CheckEntitlement(ctx, false)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-authChanges:
			if !ok {
				authChanges = nil
				continue
			}
			r.CheckEntitlement(ctx, true)
		case <-ticker.C:
			if r.session.Token() == "" {
				continue
			}
			r.CheckEntitlement(ctx, true)
		}
	}
}

func (r *Resolver) notify(prev, next models.Status) {
	if r.onChange == nil || sameStatus(prev, next) {
		return
	}
	r.onChange(next)
}

func sameStatus(a, b models.Status) bool {
	if a.Subscribed != b.Subscribed || a.IsAdmin != b.IsAdmin || a.Role != b.Role || a.PriceID != b.PriceID {
		return false
	}
	if a.SubscriptionEnd == nil || b.SubscriptionEnd == nil {
		return a.SubscriptionEnd == b.SubscriptionEnd
	}
	return a.SubscriptionEnd.Equal(*b.SubscriptionEnd)
}
