package storage

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/groombook/libs/db"
	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
	"github.com/shopspring/decimal"
)

// CatalogRepository reads the reference data owned by the business side.
type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) GetService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	var (
		s     model.Service
		price string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, duration, price::text, is_active
		FROM services
		WHERE id = $1 AND business_id = $2
	`, serviceID, businessID).Scan(&s.ID, &s.BusinessID, &s.Name, &s.Duration, &price, &s.IsActive)
	if db.IsNotFound(err) {
		return model.Service{}, ErrNotFound
	}
	if err != nil {
		return model.Service{}, err
	}
	if s.Price, err = decimal.NewFromString(price); err != nil {
		return model.Service{}, fmt.Errorf("service price %q: %w", price, err)
	}
	return s, nil
}

func (r *CatalogRepository) GetPet(ctx context.Context, petID string) (model.Pet, error) {
	var p model.Pet
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, customer_id::text, name FROM pets WHERE id = $1
	`, petID).Scan(&p.ID, &p.CustomerID, &p.Name)
	if db.IsNotFound(err) {
		return model.Pet{}, ErrNotFound
	}
	return p, err
}

// BusinessHours returns the opening window for a weekday. A missing row is
// reported as closed.
func (r *CatalogRepository) BusinessHours(ctx context.Context, businessID string, dayOfWeek int) (model.Hours, error) {
	h := model.Hours{DayOfWeek: dayOfWeek}
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(to_char(open_time, 'HH24:MI'), ''), COALESCE(to_char(close_time, 'HH24:MI'), ''), is_closed
		FROM business_hours
		WHERE business_id = $1 AND day_of_week = $2
	`, businessID, dayOfWeek).Scan(&h.OpenTime, &h.CloseTime, &h.IsClosed)
	if db.IsNotFound(err) {
		h.IsClosed = true
		return h, nil
	}
	return h, err
}

// BusinessOwner returns the user id that receives the business's notifications.
func (r *CatalogRepository) BusinessOwner(ctx context.Context, businessID string) (string, error) {
	var owner string
	err := r.pool.QueryRow(ctx, `SELECT owner_id::text FROM businesses WHERE id = $1`, businessID).Scan(&owner)
	if db.IsNotFound(err) {
		return "", ErrNotFound
	}
	return owner, err
}
