// Package ledger is the read model over delivered orders that can be settled.
package ledger

import (
	"context"
	"fmt"
	"time"

	"cuadre-backend/internal/models"

	"gorm.io/gorm"
)

// Filter narrows the ledger. Zero values mean "no filter".
type Filter struct {
	Scope   *models.Scope
	From    time.Time
	To      time.Time
	Settled *bool
	IDs     []uint
}

// Apply adds the filter to q. Dates are compared on UTC midnights.
func (f Filter) Apply(q *gorm.DB) *gorm.DB {
	if f.Scope != nil {
		q = q.Where(f.Scope.Column()+" = ?", f.Scope.ID)
	}
	if !f.From.IsZero() {
		q = q.Where("delivery_date >= ?", day(f.From))
	}
	if !f.To.IsZero() {
		q = q.Where("delivery_date <= ?", day(f.To))
	}
	if f.Settled != nil {
		q = q.Where("settled = ?", *f.Settled)
	}
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	return q
}

type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger { return &Ledger{db: db} }

func (l *Ledger) Find(ctx context.Context, f Filter) ([]models.Order, error) {
	var orders []models.Order
	q := f.Apply(l.db.WithContext(ctx).Model(&models.Order{}))
	if err := q.Order("delivery_date asc, id asc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("ledger find: %w", err)
	}
	return orders, nil
}

func (l *Ledger) Get(ctx context.Context, id uint) (models.Order, error) {
	var o models.Order
	err := l.db.WithContext(ctx).First(&o, "id = ?", id).Error
	return o, err
}

// Create stores a delivered order. Settlement columns always start clean.
func (l *Ledger) Create(ctx context.Context, o *models.Order) error {
	o.ID = 0
	o.Settled = false
	o.SettledAt = nil
	o.SettledBy = nil
	o.BatchID = nil
	o.Version = 1
	o.DeliveryDate = day(o.DeliveryDate)
	return l.db.WithContext(ctx).Create(o).Error
}

// CreateMany inserts orders in a single transaction; one bad row rejects the file.
func (l *Ledger) CreateMany(ctx context.Context, orders []models.Order) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range orders {
			if err := New(tx).Create(ctx, &orders[i]); err != nil {
				return fmt.Errorf("row %d (%s): %w", i+1, orders[i].Code, err)
			}
		}
		return nil
	})
}

func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
