package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/salonhq/booking-api/internal/model"
	"github.com/salonhq/booking-api/internal/repository"
)

func (r *serviceRepository) Get(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	var service model.Service
	err := r.db.GetContext(ctx, &service, `
		SELECT id, category_id, name, description, duration, price, status,
			   created_at, updated_at
		FROM services
		WHERE id = $1 AND status != 'deleted'`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &service, nil
}

func (r *serviceRepository) List(ctx context.Context) ([]*model.Service, error) {
	var services []*model.Service
	err := r.db.SelectContext(ctx, &services, `
		SELECT id, category_id, name, description, duration, price, status,
			   created_at, updated_at
		FROM services
		WHERE status != 'deleted'
		ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}

func (r *serviceRepository) ListCategories(ctx context.Context) ([]*model.Category, error) {
	var categories []*model.Category
	err := r.db.SelectContext(ctx, &categories, `
		SELECT id, name, description, status, created_at, updated_at
		FROM categories
		WHERE status != 'deleted'
		ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}
