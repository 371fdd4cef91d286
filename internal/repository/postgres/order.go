package postgres

import (
	"context"
	"fmt"
	"strings"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository"
)

const orderColumns = `id, user_id, device_id, brand, rental_start_time, rental_duration_hours, total_cost, order_code, return_time, deposit`

type orderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) repository.OrderRepository {
	return &orderRepository{db: db}
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	if err := row.Scan(&o.ID, &o.UserID, &o.DeviceID, &o.Brand, &o.RentalStartTime, &o.RentalDurationHours, &o.TotalCost, &o.OrderCode, &o.ReturnTime, &o.Deposit); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepository) CreateOpen(ctx context.Context, o *domain.Order) error {
	query := `INSERT INTO orders (user_id, device_id, brand, rental_start_time, deposit)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id`
	logger.DatabaseCall("create order", query, "user_id", o.UserID, "device_id", o.DeviceID)
	err := r.db.QueryRowContext(ctx, query, o.UserID, o.DeviceID, o.Brand, o.RentalStartTime, o.Deposit).Scan(&o.ID)
	return mapError("create order", err)
}

func (r *orderRepository) GetByID(ctx context.Context, id int32) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError("get order", err)
	}
	return o, nil
}

func (r *orderRepository) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	logger.DatabaseCall("lock order", query, "order_id", id)
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError("lock order", err)
	}
	return o, nil
}

func (r *orderRepository) GetByCode(ctx context.Context, code string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_code = $1`
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		return nil, mapError("get order by code", err)
	}
	return o, nil
}

func (r *orderRepository) FindOpenByDevice(ctx context.Context, deviceID int32) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE device_id = $1 AND return_time IS NULL`
	o, err := scanOrder(r.db.QueryRowContext(ctx, query, deviceID))
	if err != nil {
		return nil, mapError("find open order", err)
	}
	return o, nil
}

func (r *orderRepository) Close(ctx context.Context, id int32, c domain.OrderClosure) error {
	query := `UPDATE orders SET rental_duration_hours = $1, total_cost = $2, order_code = $3, return_time = $4
	          WHERE id = $5 AND return_time IS NULL`
	res, err := r.db.ExecContext(ctx, query, c.DurationHours, c.TotalCost, c.OrderCode, c.ReturnTime, id)
	if err != nil {
		return mapError("close order", err)
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("close order", n, err, "order_id", id)
	if err != nil {
		return mapError("close order", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("order %d already closed: %w", id, domain.ErrConflict)
}

func (r *orderRepository) ListByUser(ctx context.Context, userID int32) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY rental_start_time DESC, id DESC`
	return r.list(ctx, "list orders", query, userID)
}

func (r *orderRepository) ListOpenByUser(ctx context.Context, userID int32) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 AND return_time IS NULL ORDER BY rental_start_time DESC, id DESC`
	return r.list(ctx, "list open orders", query, userID)
}

func (r *orderRepository) Search(ctx context.Context, userID int32, keyword string) ([]domain.Order, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return r.ListByUser(ctx, userID)
	}
	query := `SELECT ` + orderColumns + ` FROM orders
	          WHERE user_id = $1
	            AND (order_code ILIKE $2 OR brand ILIKE $2 OR CAST(device_id AS TEXT) = $3 OR CAST(total_cost AS TEXT) = $3)
	          ORDER BY rental_start_time DESC, id DESC`
	return r.list(ctx, "search orders", query, userID, "%"+keyword+"%", keyword)
}

func (r *orderRepository) DeleteClosed(ctx context.Context, id, userID int32) error {
	query := `DELETE FROM orders WHERE id = $1 AND user_id = $2 AND return_time IS NOT NULL`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return mapError("delete order", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError("delete order", err)
	}
	if n > 0 {
		return nil
	}
	o, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if o.UserID != userID {
		return fmt.Errorf("order %d: %w", id, domain.ErrNotFound)
	}
	return fmt.Errorf("order %d is still open: %w", id, domain.ErrConflict)
}

func (r *orderRepository) DeleteClosedByUser(ctx context.Context, userID int32) (int64, error) {
	query := `DELETE FROM orders WHERE user_id = $1 AND return_time IS NOT NULL`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, mapError("delete closed orders", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("delete closed orders", err)
	}
	return n, nil
}

func (r *orderRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return orders, nil
}
