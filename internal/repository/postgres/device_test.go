package postgres_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/repository/postgres"
)

var deviceCols = []string{"id", "brand", "status", "battery_level", "price_per_hour", "created_on", "updated_on"}

func TestDeviceRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewDeviceRepository(db)
	ctx := context.Background()

	d := &domain.Device{
		Brand:        "Anker",
		Status:       domain.DeviceStatusAvailable,
		BatteryLevel: 90,
		PricePerHour: decimal.RequireFromString("2.50"),
	}
	mock.ExpectQuery("INSERT INTO devices").
		WithArgs(d.Brand, domain.DeviceStatusAvailable, 90, d.PricePerHour, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))

	err = repo.Create(ctx, d)
	assert.NoError(t, err)
	assert.Equal(t, int32(4), d.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepository_GetByIDForUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewDeviceRepository(db)
	ctx := context.Background()
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM devices WHERE id = \\$1 FOR UPDATE").
			WithArgs(int32(1)).
			WillReturnRows(sqlmock.NewRows(deviceCols).AddRow(1, "Anker", "IN_USE", 42, "2.00", now, now))

		d, err := repo.GetByIDForUpdate(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.DeviceStatusInUse, d.Status)
		assert.Equal(t, 42, d.BatteryLevel)
		assert.True(t, d.PricePerHour.Equal(decimal.NewFromInt(2)))
	})

	t.Run("Not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM devices WHERE id = \\$1 FOR UPDATE").
			WithArgs(int32(2)).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByIDForUpdate(ctx, 2)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepository_Filter(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewDeviceRepository(db)
	ctx := context.Background()
	now := time.Now()

	status := domain.DeviceStatusAvailable
	minBattery := 30
	maxPrice := decimal.NewFromInt(3)
	mock.ExpectQuery("SELECT (.+) FROM devices WHERE 1=1 AND status = \\$1 AND brand ILIKE \\$2 AND price_per_hour <= \\$3 AND battery_level >= \\$4 ORDER BY id").
		WithArgs(domain.DeviceStatusAvailable, "%ank%", maxPrice, minBattery).
		WillReturnRows(sqlmock.NewRows(deviceCols).
			AddRow(1, "Anker", "AVAILABLE", 80, "2.00", now, now).
			AddRow(3, "Anker Pro", "AVAILABLE", 35, "3.00", now, now))

	devices, err := repo.Filter(ctx, domain.DeviceFilter{
		Status:     &status,
		Brand:      "ank",
		MaxPrice:   &maxPrice,
		MinBattery: &minBattery,
	})
	require.NoError(t, err)
	assert.Len(t, devices, 2)
	assert.Equal(t, "Anker Pro", devices[1].Brand)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepository_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewDeviceRepository(db)
	ctx := context.Background()
	now := time.Now()
	expected := domain.DeviceStatusAvailable

	t.Run("Compare and set wins", func(t *testing.T) {
		mock.ExpectExec("UPDATE devices SET status = \\$1, updated_on = \\$2 WHERE id = \\$3 AND status = \\$4").
			WithArgs(domain.DeviceStatusInUse, sqlmock.AnyArg(), int32(1), domain.DeviceStatusAvailable).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.UpdateStatus(ctx, 1, &expected, domain.DeviceStatusInUse))
	})

	t.Run("Compare and set loses", func(t *testing.T) {
		mock.ExpectExec("UPDATE devices SET status").
			WithArgs(domain.DeviceStatusInUse, sqlmock.AnyArg(), int32(1), domain.DeviceStatusAvailable).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT (.+) FROM devices WHERE id = \\$1").
			WithArgs(int32(1)).
			WillReturnRows(sqlmock.NewRows(deviceCols).AddRow(1, "Anker", "IN_USE", 42, "2.00", now, now))

		err := repo.UpdateStatus(ctx, 1, &expected, domain.DeviceStatusInUse)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("Unconditional on missing row", func(t *testing.T) {
		mock.ExpectExec("UPDATE devices SET status").
			WithArgs(domain.DeviceStatusAvailable, sqlmock.AnyArg(), int32(9)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateStatus(ctx, 9, nil, domain.DeviceStatusAvailable)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepository_UpdateBattery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewDeviceRepository(db)
	ctx := context.Background()

	mock.ExpectExec("UPDATE devices SET battery_level").
		WithArgs(37, sqlmock.AnyArg(), int32(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.UpdateBattery(ctx, 1, 37))

	// rejected before reaching the database
	assert.ErrorIs(t, repo.UpdateBattery(ctx, 1, -1), domain.ErrInvalidArgument)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeviceRepository_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("error opening mock database: %v", err)
	}
	defer db.Close()

	repo := postgres.NewDeviceRepository(db)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM devices WHERE id = \\$1").
			WithArgs(int32(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, repo.Delete(ctx, 3))
	})

	t.Run("Referenced by orders", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM devices WHERE id = \\$1").
			WithArgs(int32(4)).
			WillReturnError(&pqForeignKeyViolation)
		assert.ErrorIs(t, repo.Delete(ctx, 4), domain.ErrConflict)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
