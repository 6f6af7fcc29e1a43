// Package models содержит доменные типы сервиса доступа: пользователя,
// роли, проекцию подписки и вычисляемый статус доступа.
package models

import "time"

// User пользователь провайдера аутентификации. Учётные данные хранятся у провайдера,
// здесь только идентификатор и почта.
type User struct {
	UUID      string    // Уникальный идентификатор пользователя
	Email     string    // Электронная почта, по ней ищется клиент платёжного провайдера
	CreatedAt time.Time // Дата появления пользователя в проекции
}
