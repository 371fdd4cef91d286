package postgres

import (
	"context"
	"fmt"
	"time"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository"
)

const deviceColumns = `id, brand, status, battery_level, price_per_hour, created_on, updated_on`

type deviceRepository struct {
	db DBTX
}

func NewDeviceRepository(db DBTX) repository.DeviceRepository {
	return &deviceRepository{db: db}
}

func scanDevice(row rowScanner) (*domain.Device, error) {
	d := &domain.Device{}
	if err := row.Scan(&d.ID, &d.Brand, &d.Status, &d.BatteryLevel, &d.PricePerHour, &d.CreatedOn, &d.UpdatedOn); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *deviceRepository) Create(ctx context.Context, d *domain.Device) error {
	query := `INSERT INTO devices (brand, status, battery_level, price_per_hour, created_on, updated_on)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	now := time.Now()
	d.CreatedOn = now
	d.UpdatedOn = now
	err := r.db.QueryRowContext(ctx, query, d.Brand, d.Status, d.BatteryLevel, d.PricePerHour, d.CreatedOn, d.UpdatedOn).Scan(&d.ID)
	return mapError("create device", err)
}

func (r *deviceRepository) GetByID(ctx context.Context, id int32) (*domain.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError("get device", err)
	}
	return d, nil
}

func (r *deviceRepository) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1 FOR UPDATE`
	logger.DatabaseCall("lock device", query, "device_id", id)
	d, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError("lock device", err)
	}
	return d, nil
}

func (r *deviceRepository) ListByStatus(ctx context.Context, status domain.DeviceStatus) ([]domain.Device, error) {
	return r.Filter(ctx, domain.DeviceFilter{Status: &status})
}

func (r *deviceRepository) Filter(ctx context.Context, f domain.DeviceFilter) ([]domain.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE 1=1`
	args := []any{}
	argIdx := 1
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *f.Status)
		argIdx++
	}
	if f.Brand != "" {
		query += fmt.Sprintf(" AND brand ILIKE $%d", argIdx)
		args = append(args, "%"+f.Brand+"%")
		argIdx++
	}
	if f.MinPrice != nil {
		query += fmt.Sprintf(" AND price_per_hour >= $%d", argIdx)
		args = append(args, *f.MinPrice)
		argIdx++
	}
	if f.MaxPrice != nil {
		query += fmt.Sprintf(" AND price_per_hour <= $%d", argIdx)
		args = append(args, *f.MaxPrice)
		argIdx++
	}
	if f.MinBattery != nil {
		query += fmt.Sprintf(" AND battery_level >= $%d", argIdx)
		args = append(args, *f.MinBattery)
		argIdx++
	}
	if f.MaxBattery != nil {
		query += fmt.Sprintf(" AND battery_level <= $%d", argIdx)
		args = append(args, *f.MaxBattery)
	}
	query += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("list devices", err)
	}
	defer rows.Close()

	var devices []domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, mapError("scan device", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list devices", err)
	}
	return devices, nil
}

func (r *deviceRepository) UpdateStatus(ctx context.Context, id int32, expected *domain.DeviceStatus, next domain.DeviceStatus) error {
	query := `UPDATE devices SET status = $1, updated_on = $2 WHERE id = $3`
	args := []any{next, time.Now(), id}
	if expected != nil {
		query += ` AND status = $4`
		args = append(args, *expected)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError("update device status", err)
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("update device status", n, err, "device_id", id, "status", next)
	if err != nil {
		return mapError("update device status", err)
	}
	if n > 0 {
		return nil
	}
	if expected == nil {
		return fmt.Errorf("update device status %d: %w", id, domain.ErrNotFound)
	}
	// tell a missing row apart from a lost compare-and-set
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("device %d is not %s: %w", id, *expected, domain.ErrConflict)
}

func (r *deviceRepository) UpdateBattery(ctx context.Context, id int32, level int) error {
	if level < domain.BatteryMin || level > domain.BatteryMax {
		return fmt.Errorf("battery level %d out of range: %w", level, domain.ErrInvalidArgument)
	}
	query := `UPDATE devices SET battery_level = $1, updated_on = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, level, time.Now(), id)
	if err != nil {
		return mapError("update battery", err)
	}
	return requireRow(res, "update battery", id)
}

func (r *deviceRepository) Update(ctx context.Context, d *domain.Device) error {
	query := `UPDATE devices SET status = $1, battery_level = $2, price_per_hour = $3, updated_on = $4 WHERE id = $5`
	d.UpdatedOn = time.Now()
	res, err := r.db.ExecContext(ctx, query, d.Status, d.BatteryLevel, d.PricePerHour, d.UpdatedOn, d.ID)
	if err != nil {
		return mapError("update device", err)
	}
	return requireRow(res, "update device", d.ID)
}

func (r *deviceRepository) Delete(ctx context.Context, id int32) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return mapDeleteError("delete device", err)
	}
	return requireRow(res, "delete device", id)
}
