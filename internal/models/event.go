package models

import "time"

// Имена событий аналитики.
const (
	EventEntitlementChecked = "entitlement_checked"
	EventCheckoutStarted    = "checkout_started"
	EventPortalOpened       = "portal_opened"
	EventPaywallHit         = "paywall_hit"
)

// Event событие аналитики. Доставляется по принципу best effort.
type Event struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	UserUID    string         `json:"user_uid,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
