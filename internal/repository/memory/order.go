package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
)

type orderRepository struct {
	s  *Store
	tx *txn
}

func (t *txn) lockOrder(ctx context.Context, id int32) (domain.Order, error) {
	if err := t.lock(ctx, rowKey{kindOrder, id}); err != nil {
		return domain.Order{}, err
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	o, ok := lookup(t.s.orders, t.orders, id)
	if !ok {
		return domain.Order{}, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	return o, nil
}

func (r *orderRepository) CreateOpen(ctx context.Context, o *domain.Order) error {
	return r.s.write(r.tx, func(t *txn) error {
		id := r.s.orderSeq.Add(1)
		if err := t.lock(ctx, rowKey{kindOrder, id}); err != nil {
			return err
		}
		created := *o
		created.ID = id
		created.RentalDurationHours = 0
		created.TotalCost = decimal.Zero
		created.OrderCode = nil
		created.ReturnTime = nil
		t.orders[id] = &created
		*o = created
		return nil
	})
}

func (r *orderRepository) GetByID(ctx context.Context, id int32) (*domain.Order, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := lookup(r.s.orders, r.tx.stagedOrders(), id)
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	return &o, nil
}

func (r *orderRepository) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Order, error) {
	var out domain.Order
	err := r.s.write(r.tx, func(t *txn) error {
		o, err := t.lockOrder(ctx, id)
		out = o
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *orderRepository) find(match func(o domain.Order) bool) []domain.Order {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Order
	for _, o := range r.s.orderView(r.tx) {
		if match(o) {
			out = append(out, o)
		}
	}
	return out
}

func (r *orderRepository) GetByCode(ctx context.Context, code string) (*domain.Order, error) {
	found := r.find(func(o domain.Order) bool { return o.OrderCode != nil && *o.OrderCode == code })
	if len(found) == 0 {
		return nil, fmt.Errorf("order %s: %w", code, domain.ErrNotFound)
	}
	return &found[0], nil
}

func (r *orderRepository) FindOpenByDevice(ctx context.Context, deviceID int32) (*domain.Order, error) {
	found := r.find(func(o domain.Order) bool { return o.DeviceID == deviceID && o.IsOpen() })
	if len(found) == 0 {
		return nil, fmt.Errorf("open order for device %d: %w", deviceID, domain.ErrNotFound)
	}
	return &found[0], nil
}

func (r *orderRepository) Close(ctx context.Context, id int32, c domain.OrderClosure) error {
	return r.s.write(r.tx, func(t *txn) error {
		o, err := t.lockOrder(ctx, id)
		if err != nil {
			return err
		}
		if o.ReturnTime != nil {
			return fmt.Errorf("order %d already closed: %w", id, domain.ErrConflict)
		}
		code := c.OrderCode
		returned := c.ReturnTime
		o.RentalDurationHours = c.DurationHours
		o.TotalCost = c.TotalCost
		o.OrderCode = &code
		o.ReturnTime = &returned
		t.orders[id] = &o
		return nil
	})
}

func newestFirst(orders []domain.Order) []domain.Order {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].RentalStartTime.Equal(orders[j].RentalStartTime) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].RentalStartTime.After(orders[j].RentalStartTime)
	})
	return orders
}

func (r *orderRepository) ListByUser(ctx context.Context, userID int32) ([]domain.Order, error) {
	return newestFirst(r.find(func(o domain.Order) bool { return o.UserID == userID })), nil
}

func (r *orderRepository) ListOpenByUser(ctx context.Context, userID int32) ([]domain.Order, error) {
	return newestFirst(r.find(func(o domain.Order) bool { return o.UserID == userID && o.IsOpen() })), nil
}

func (r *orderRepository) Search(ctx context.Context, userID int32, keyword string) ([]domain.Order, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return r.ListByUser(ctx, userID)
	}
	needle := strings.ToLower(keyword)
	return newestFirst(r.find(func(o domain.Order) bool {
		if o.UserID != userID {
			return false
		}
		if o.OrderCode != nil && strings.Contains(strings.ToLower(*o.OrderCode), needle) {
			return true
		}
		if strings.Contains(strings.ToLower(o.Brand), needle) {
			return true
		}
		return fmt.Sprint(o.DeviceID) == keyword || o.TotalCost.StringFixed(2) == keyword
	})), nil
}

func (r *orderRepository) DeleteClosed(ctx context.Context, id, userID int32) error {
	return r.s.write(r.tx, func(t *txn) error {
		o, err := t.lockOrder(ctx, id)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
		}
		if o.ReturnTime == nil {
			return fmt.Errorf("order %d is still open: %w", id, domain.ErrConflict)
		}
		t.orders[id] = nil
		return nil
	})
}

func (r *orderRepository) DeleteClosedByUser(ctx context.Context, userID int32) (int64, error) {
	closed := r.find(func(o domain.Order) bool { return o.UserID == userID && !o.IsOpen() })
	var n int64
	err := r.s.write(r.tx, func(t *txn) error {
		for _, o := range closed {
			if _, err := t.lockOrder(ctx, o.ID); err != nil {
				return err
			}
			t.orders[o.ID] = nil
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
