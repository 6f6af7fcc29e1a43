package models

import (
	"errors"
	"time"
)

// ErrStaleSubscription состояние подписки старше уже сохранённого.
var ErrStaleSubscription = errors.New("subscription state is older than stored")

// Статусы подписки. lapsed ставит сверка, когда период истёк, а активной подписки у провайдера нет.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusLapsed   = "lapsed"
)

// SubscriptionRecord локальная проекция подписки платёжного провайдера.
// Ключ идемпотентности: StripeSubscriptionID.
type SubscriptionRecord struct {
	ID                   int64
	UserUID              string
	StripeCustomerID     string
	StripeSubscriptionID string
	Status               string
	PriceID              string
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CancelAtPeriodEnd    bool
	StateAt              time.Time // момент, на который провайдер сообщил это состояние
	UpdatedAt            time.Time
}

// IsActive сообщает, даёт ли статус подписки доступ. Провайдер опрашивается
// только по статусу active, поэтому trialing и past_due доступа не дают.
func (s SubscriptionRecord) IsActive() bool {
	return IsActiveStatus(s.Status)
}

func IsActiveStatus(status string) bool {
	return status == SubscriptionStatusActive
}
