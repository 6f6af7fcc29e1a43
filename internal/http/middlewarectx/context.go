// Package middlewarectx содержит HTTP middleware: аутентификацию по bearer-токену,
// проверку премиум-доступа и ограничение частоты запросов.
package middlewarectx

import (
	"context"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// User ключ аутентифицированного пользователя в контексте.
const User Key = "user"

// WithUser кладёт пользователя в контекст.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, User, u)
}

// UserFromContext достаёт пользователя, положенного Authenticate.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(User).(*models.User)
	return u, ok && u != nil
}
