package order

import (
	"context"
	"errors"
	"time"

	"go_certbot/internal/model"

	"gorm.io/gorm"
)

// Precondition is the persisted state a conditional write requires
type Precondition struct {
	Statuses      []model.OrderStatus
	Step          model.Step // flag that must still be set, optional
	UserID        int        // owner filter, optional
	EmptyDomain   bool
	UpdatedBefore time.Time // optional
}

func (p Precondition) apply(q *gorm.DB, id int) *gorm.DB {
	q = q.Where("id = ?", id)
	if len(p.Statuses) > 0 {
		q = q.Where("status IN ?", p.Statuses)
	}
	if p.Step != "" {
		q = q.Where(p.Step.Column()+" = ?", true)
	}
	if p.UserID > 0 {
		q = q.Where("user_id = ?", p.UserID)
	}
	if p.EmptyDomain {
		q = q.Where("domain = ?", "")
	}
	if !p.UpdatedBefore.IsZero() {
		q = q.Where("updated_at < ?", p.UpdatedBefore)
	}
	return q
}

// Store persists orders. All writes are conditional single-row statements.
type Store struct {
	db *gorm.DB
}

// NewStore creates a store bound to db
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a store whose statements join tx
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// Get loads an order by id
func (s *Store) Get(ctx context.Context, id int) (*model.Order, error) {
	var o model.Order
	err := s.db.WithContext(ctx).First(&o, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetForUser loads an order owned by userID
func (s *Store) GetForUser(ctx context.Context, userID, id int) (*model.Order, error) {
	var o model.Order
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// FindOpenByDomain returns the user's non-issued order for domain, or nil
func (s *Store) FindOpenByDomain(ctx context.Context, userID int, domain string, excludeID int) (*model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND domain = ? AND status <> ? AND id <> ?", userID, domain, model.OrderStatusIssued, excludeID).
		Order("id DESC").
		Limit(1).
		Find(&orders).Error
	if err != nil || len(orders) == 0 {
		return nil, err
	}
	return &orders[0], nil
}

// FindBlankCreated returns the user's latest created order without a domain, or nil
func (s *Store) FindBlankCreated(ctx context.Context, userID int) (*model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND domain = ?", userID, model.OrderStatusCreated, "").
		Order("id DESC").
		Limit(1).
		Find(&orders).Error
	if err != nil || len(orders) == 0 {
		return nil, err
	}
	return &orders[0], nil
}

// LatestByDomain returns the user's most recent order for domain, or nil
func (s *Store) LatestByDomain(ctx context.Context, userID int, domain string) (*model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND domain = ?", userID, domain).
		Order("id DESC").
		Limit(1).
		Find(&orders).Error
	if err != nil || len(orders) == 0 {
		return nil, err
	}
	return &orders[0], nil
}

// ListByUser returns the user's orders, newest first
func (s *Store) ListByUser(ctx context.Context, userID, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// Create inserts a new order
func (s *Store) Create(ctx context.Context, o *model.Order) error {
	if o.TxtValues == nil {
		o.TxtValues = []string{}
	}
	return s.db.WithContext(ctx).Create(o).Error
}

// Transition applies updates only while pre holds. ok is false when no row
// matched, meaning another writer got there first or the order is gone.
func (s *Store) Transition(ctx context.Context, id int, pre Precondition, updates map[string]interface{}) (ok bool, err error) {
	q := pre.apply(s.db.WithContext(ctx).Model(&model.Order{}), id)
	result := q.Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetLastError writes last_error alone. updated_at is left untouched so the
// failed-order TTL keeps counting from the last transition.
func (s *Store) SetLastError(ctx context.Context, id int, msg string) error {
	return s.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		UpdateColumn("last_error", msg).Error
}

// Delete removes the order only while pre holds
func (s *Store) Delete(ctx context.Context, id int, pre Precondition) (ok bool, err error) {
	q := pre.apply(s.db.WithContext(ctx), id)
	result := q.Delete(&model.Order{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListReady returns orders whose step flag is set in the step's required status
func (s *Store) ListReady(ctx context.Context, step model.Step, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Where("status = ? AND "+step.Column()+" = ?", step.RequiredStatus(), true).
		Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// ListExpiredFailed returns failed orders last updated before cutoff
func (s *Store) ListExpiredFailed(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.OrderStatusFailed, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
