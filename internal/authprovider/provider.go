// Package authprovider проверяет bearer-токены и сопоставляет их с пользователями.
//
// Проверка подписи выполняется локально. Чтение проекции пользователя может
// падать из-за сброса соединения, поэтому оно повторяется ограниченное число раз.
// Отказ в аутентификации никогда не повторяется.
package authprovider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/entitlement-service/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/retry"
	"github.com/magabrotheeeer/entitlement-service/internal/lib/sl"
	"github.com/magabrotheeeer/entitlement-service/internal/metrics"
	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/storage/repository"
)

var (
	// ErrUnauthorized токен отсутствует, подделан, истёк или не содержит почты.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable провайдер недоступен после всех повторов.
	ErrUnavailable = errors.New("auth provider unavailable")
)

// UserStore проекция пользователей провайдера.
type UserStore interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	UpsertUser(ctx context.Context, user models.User) error
}

// Provider аутентифицирует вызывающего по bearer-токену.
type Provider struct {
	log    *slog.Logger
	maker  jwt.Maker
	users  UserStore
	policy retry.Policy
}

// New создаёт провайдера.
func New(log *slog.Logger, maker jwt.Maker, users UserStore, policy retry.Policy) *Provider {
	return &Provider{log: log, maker: maker, users: users, policy: policy}
}

// Authenticate возвращает пользователя, которому принадлежит токен.
func (p *Provider) Authenticate(ctx context.Context, token string) (*models.User, error) {
	const op = "authprovider.Authenticate"
	if token == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}
	claims, err := p.maker.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%s: %w: token has no email", op, ErrUnauthorized)
	}

	var user *models.User
	attempt := 0
	err = retry.Do(ctx, p.policy, retry.IsTransient, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.AuthRetriesTotal.Inc()
			p.log.Warn("retrying user lookup", slog.Int("attempt", attempt))
		}
		u, err := p.lookup(ctx, claims)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		p.log.Error("user lookup failed", slog.Int("attempts", attempt), sl.Err(err))
		if retry.IsTransient(err) {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// lookup читает пользователя из проекции и создаёт его при первом обращении.
func (p *Provider) lookup(ctx context.Context, claims *jwt.CustomClaims) (*models.User, error) {
	u, err := p.users.GetUser(ctx, claims.UserUID())
	switch {
	case err == nil:
		if u.Email != claims.Email {
			u.Email = claims.Email
			if err := p.users.UpsertUser(ctx, *u); err != nil {
				return nil, err
			}
		}
		return u, nil
	case errors.Is(err, repository.ErrUserNotFound):
		u = &models.User{UUID: claims.UserUID(), Email: claims.Email}
		if err := p.users.UpsertUser(ctx, *u); err != nil {
			return nil, err
		}
		return u, nil
	default:
		return nil, err
	}
}
