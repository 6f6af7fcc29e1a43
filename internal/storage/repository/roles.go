package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// ListPremiumRoles возвращает роли пользователя из набора admin/subscriber.
func (s *Storage) ListPremiumRoles(ctx context.Context, userUID string) ([]models.Role, error) {
	const op = "storage.ListPremiumRoles"

	query := `SELECT role
			  FROM user_roles
			  WHERE user_uid = $1 AND role IN ($2, $3)
			  ORDER BY role`
	rows, err := s.DB.QueryContext(ctx, query, userUID, string(models.RoleAdmin), string(models.RoleSubscriber))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var roles []models.Role
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		roles = append(roles, models.Role(role))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return roles, nil
}

// UpsertRole выдаёт роль пользователю. Повторная выдача ничего не меняет.
func (s *Storage) UpsertRole(ctx context.Context, userUID string, role models.Role) error {
	const op = "storage.UpsertRole"

	query := `INSERT INTO user_roles (user_uid, role)
			  VALUES ($1, $2)
			  ON CONFLICT (user_uid, role) DO NOTHING`
	if _, err := s.DB.ExecContext(ctx, query, userUID, string(role)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteRole отзывает роль и возвращает число удалённых строк (0, если роли не было).
func (s *Storage) DeleteRole(ctx context.Context, userUID string, role models.Role) (int64, error) {
	const op = "storage.DeleteRole"

	res, err := s.DB.ExecContext(ctx, `DELETE FROM user_roles WHERE user_uid = $1 AND role = $2`, userUID, string(role))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
