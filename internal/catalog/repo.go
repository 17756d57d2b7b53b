package catalog

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-laundry-orders/internal/apperr"
)

type Repository interface {
	Get(ctx context.Context, id string) (Service, error)
	ListActive(ctx context.Context) ([]Service, error)
	Upsert(ctx context.Context, s *Service) error
}

type Repo struct{ DB *pgxpool.Pool }

const serviceColumns = `id, name, COALESCE(description,''), category, base_price, price_per_kg,
	price_per_unit, price_type, turnaround_hours, is_active, created_at, updated_at`

func scanService(row pgx.Row) (Service, error) {
	var s Service
	var category, priceType string
	err := row.Scan(&s.ID, &s.Name, &s.Description, &category, &s.BasePrice, &s.PricePerKg,
		&s.PricePerUnit, &priceType, &s.TurnaroundHours, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	s.Category = Category(category)
	s.PriceType = PriceType(priceType)
	return s, err
}

func (r *Repo) Get(ctx context.Context, id string) (Service, error) {
	s, err := scanService(r.DB.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Service{}, apperr.NotFound("service", id)
	}
	return s, err
}

func (r *Repo) ListActive(ctx context.Context) ([]Service, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+serviceColumns+` FROM services
	                              WHERE is_active ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) Upsert(ctx context.Context, s *Service) error {
	now := time.Now().UTC()
	if s.ID == "" {
		s.ID = uuid.NewString()
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	_, err := r.DB.Exec(ctx, `
		INSERT INTO services(id, name, description, category, base_price, price_per_kg, price_per_unit,
		                     price_type, turnaround_hours, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET name=$2, description=$3, category=$4, base_price=$5,
			price_per_kg=$6, price_per_unit=$7, price_type=$8, turnaround_hours=$9,
			is_active=$10, updated_at=$12`,
		s.ID, s.Name, s.Description, string(s.Category), s.BasePrice, s.PricePerKg, s.PricePerUnit,
		string(s.PriceType), s.TurnaroundHours, s.IsActive, s.CreatedAt, s.UpdatedAt)
	return err
}

// MemoryRepo is used when no database is configured and in tests.
type MemoryRepo struct {
	mu sync.RWMutex
	m  map[string]Service
}

func NewMemoryRepo(seed ...Service) *MemoryRepo {
	r := &MemoryRepo{m: make(map[string]Service)}
	for _, s := range seed {
		r.m[s.ID] = s
	}
	return r
}

func (r *MemoryRepo) Get(_ context.Context, id string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.m[id]
	if !ok {
		return Service{}, apperr.NotFound("service", id)
	}
	return s, nil
}

func (r *MemoryRepo) ListActive(context.Context) ([]Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Service, 0, len(r.m))
	for _, s := range r.m {
		if s.IsActive {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *MemoryRepo) Upsert(_ context.Context, s *Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if s.ID == "" {
		s.ID = uuid.NewString()
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	r.m[s.ID] = *s
	return nil
}
