package models

import "time"

// Status вычисляемый статус доступа пользователя. Не хранится в базе,
// кешируется на короткое время клиентом и в снимке Redis.
type Status struct {
	Subscribed      bool       `json:"subscribed"`
	IsAdmin         bool       `json:"isAdmin"`
	Role            Role       `json:"role,omitempty"`
	SubscriptionEnd *time.Time `json:"subscription_end,omitempty"`
	PriceID         string     `json:"price_id,omitempty"`
}

// HasPremiumAccess admin или оплаченная подписка.
func (s Status) HasPremiumAccess() bool {
	return s.IsAdmin || s.Subscribed
}

// Unauthenticated статус пользователя без сессии или без подтверждённого доступа.
func Unauthenticated() Status {
	return Status{Subscribed: false, IsAdmin: false, Role: RoleUser}
}
