package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"

	query := `SELECT uid, email, created_at
			  FROM users
			  WHERE uid = $1`
	u := &models.User{}
	if err := s.DB.QueryRowContext(ctx, query, userUID).Scan(&u.UUID, &u.Email, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UpsertUser добавляет пользователя провайдера в проекцию или обновляет его почту.
func (s *Storage) UpsertUser(ctx context.Context, user models.User) error {
	const op = "storage.UpsertUser"

	query := `INSERT INTO users (uid, email)
			  VALUES ($1, $2)
			  ON CONFLICT (uid) DO UPDATE SET email = EXCLUDED.email`
	if _, err := s.DB.ExecContext(ctx, query, user.UUID, user.Email); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
