package models

// Role именованная роль пользователя.
type Role string

const (
	// RoleAdmin внутренний доступ, выдаётся вручную.
	RoleAdmin Role = "admin"
	// RoleSubscriber оплаченный доступ, синхронизируется с платёжным провайдером.
	RoleSubscriber Role = "subscriber"
	// RoleUser роль по умолчанию, без премиум-доступа.
	RoleUser Role = "user"
)

// PremiumRoles роли, дающие премиум-доступ без обращения к платёжному провайдеру.
var PremiumRoles = []Role{RoleAdmin, RoleSubscriber}

// Valid сообщает, известна ли роль.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSubscriber, RoleUser:
		return true
	}
	return false
}
