package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/events"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository"
	"powerbank-rental-backend/internal/utils"
)

type rentalService struct {
	tx        repository.TxManager
	store     repository.Stores
	clock     utils.Clock
	codes     *utils.OrderCodeGenerator
	publisher events.Publisher
	retry     RetryPolicy
}

func NewRentalService(
	tx repository.TxManager,
	store repository.Stores,
	clock utils.Clock,
	publisher events.Publisher,
	retry RetryPolicy,
) RentalService {
	return &rentalService{
		tx:        tx,
		store:     store,
		clock:     clock,
		codes:     utils.NewOrderCodeGenerator(clock),
		publisher: publisher,
		retry:     retry,
	}
}

func (s *rentalService) publish(ctx context.Context, e events.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "type", e.Type, "key", e.Key, "error", err)
	}
}

func (s *rentalService) CreateRental(ctx context.Context, userID, deviceID int32, brand string) (*domain.Order, error) {
	logger.EnterMethod("rentalService.CreateRental", "userID", userID, "deviceID", deviceID)

	var order *domain.Order
	err := withRetry(ctx, "create rental", s.retry, func() error {
		order = nil
		return s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
			user, err := st.Accounts.GetByIDForUpdate(ctx, userID)
			if err != nil {
				return err
			}
			required, err := utils.Deposit(user.Membership)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", domain.ErrInvalidArgument, user.Membership, err)
			}
			if !utils.SufficientFunds(user.Balance, required) {
				return fmt.Errorf("balance %s below deposit %s: %w", user.Balance.StringFixed(2), required.StringFixed(2), domain.ErrInsufficientBalance)
			}

			device, err := st.Devices.GetByIDForUpdate(ctx, deviceID)
			if err != nil {
				return err
			}
			if device.Status != domain.DeviceStatusAvailable {
				return fmt.Errorf("device %d is %s: %w", deviceID, device.Status, domain.ErrConflict)
			}

			if utils.RequiresDeposit(user.Membership) {
				if err := st.Accounts.AdjustBalance(ctx, userID, required.Neg()); err != nil {
					return err
				}
			}

			o := &domain.Order{
				UserID:          userID,
				DeviceID:        deviceID,
				Brand:           brand,
				RentalStartTime: s.clock.Now(),
				Deposit:         required,
			}
			if o.Brand == "" {
				o.Brand = device.Brand
			}
			if err := st.Orders.CreateOpen(ctx, o); err != nil {
				return err
			}

			expected := domain.DeviceStatusAvailable
			if err := st.Devices.UpdateStatus(ctx, deviceID, &expected, domain.DeviceStatusInUse); err != nil {
				return err
			}
			order = o
			return nil
		})
	})
	if err != nil {
		logger.ExitMethodWithError("rentalService.CreateRental", err, "userID", userID, "deviceID", deviceID)
		return nil, err
	}

	s.publish(ctx, events.New(events.RentalOpened, events.DeviceKey(deviceID), order))
	logger.ExitMethod("rentalService.CreateRental", "orderID", order.ID, "deposit", order.Deposit.StringFixed(2))
	return order, nil
}

func validateReturn(req ReturnRequest) error {
	if req.Hours < 0 {
		return fmt.Errorf("negative rental hours %d: %w", req.Hours, domain.ErrInvalidArgument)
	}
	if req.TotalCost.IsNegative() {
		return fmt.Errorf("negative total cost %s: %w", req.TotalCost, domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(req.OrderCode) == "" {
		return fmt.Errorf("order code is required: %w", domain.ErrInvalidArgument)
	}
	return nil
}

func (s *rentalService) ReturnRental(ctx context.Context, req ReturnRequest) (*ReturnReceipt, error) {
	logger.EnterMethod("rentalService.ReturnRental", "orderID", req.OrderID, "deviceID", req.DeviceID, "hours", req.Hours)
	if err := validateReturn(req); err != nil {
		logger.ExitMethodWithError("rentalService.ReturnRental", err, "orderID", req.OrderID)
		return nil, err
	}

	var receipt *ReturnReceipt
	var recovered bool
	err := withRetry(ctx, "return rental", s.retry, func() error {
		receipt = nil
		recovered = false
		return s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
			order, err := st.Orders.GetByIDForUpdate(ctx, req.OrderID)
			if err != nil {
				return err
			}
			if req.UserID != 0 && order.UserID != req.UserID {
				return fmt.Errorf("order %d: %w", req.OrderID, domain.ErrNotFound)
			}
			if !order.IsOpen() {
				return fmt.Errorf("order %d already closed: %w", order.ID, domain.ErrConflict)
			}
			if order.DeviceID != req.DeviceID {
				return fmt.Errorf("order %d is for device %d, not %d: %w", order.ID, order.DeviceID, req.DeviceID, domain.ErrConflict)
			}

			user, err := st.Accounts.GetByIDForUpdate(ctx, order.UserID)
			if err != nil {
				return err
			}
			device, err := st.Devices.GetByIDForUpdate(ctx, order.DeviceID)
			if err != nil {
				return err
			}
			treasury, err := st.Accounts.GetTreasury(ctx, true)
			if err != nil {
				return err
			}

			actual := utils.ActualCost(req.TotalCost, user.Membership)
			balance := utils.ReturnBalance(user.Balance, order.Deposit, actual)
			if err := st.Accounts.UpdateBalance(ctx, user.ID, balance); err != nil {
				return err
			}
			if err := st.Accounts.AdjustBalance(ctx, treasury.ID, actual); err != nil {
				return err
			}

			closure := domain.OrderClosure{
				DurationHours: req.Hours,
				TotalCost:     actual,
				OrderCode:     req.OrderCode,
				ReturnTime:    s.clock.Now(),
			}
			if err := st.Orders.Close(ctx, order.ID, closure); err != nil {
				return err
			}
			// A returned device is usable again even if the battery job
			// parked it while rented.
			if err := st.Devices.UpdateStatus(ctx, device.ID, nil, domain.DeviceStatusAvailable); err != nil {
				return err
			}
			recovered = device.Status == domain.DeviceStatusUnavailable

			closed := *order
			closed.RentalDurationHours = closure.DurationHours
			closed.TotalCost = closure.TotalCost
			closed.OrderCode = &closure.OrderCode
			closed.ReturnTime = &closure.ReturnTime
			receipt = &ReturnReceipt{Order: closed, ActualCost: actual, Balance: balance}
			return nil
		})
	})
	if err != nil {
		logger.ExitMethodWithError("rentalService.ReturnRental", err, "orderID", req.OrderID)
		return nil, err
	}

	if recovered {
		logger.WarnContext(ctx, "Device returned while marked unavailable", "deviceID", req.DeviceID, "orderID", req.OrderID)
	}
	s.publish(ctx, events.New(events.RentalClosed, events.DeviceKey(req.DeviceID), receipt))
	logger.ExitMethod("rentalService.ReturnRental", "orderID", req.OrderID, "actualCost", receipt.ActualCost.StringFixed(2))
	return receipt, nil
}

// meter prices an open order up to now with the device's current rate.
func (s *rentalService) meter(ctx context.Context, order *domain.Order) (int64, decimal.Decimal, error) {
	device, err := s.store.Devices.GetByID(ctx, order.DeviceID)
	if err != nil {
		return 0, decimal.Zero, err
	}
	hours := utils.MeteredHours(order.RentalStartTime, s.clock.Now())
	return hours, utils.MeteredCost(hours, device.PricePerHour), nil
}

func (s *rentalService) ReturnDevice(ctx context.Context, userID, deviceID int32) (*ReturnReceipt, error) {
	order, err := s.store.Orders.FindOpenByDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("open order for device %d: %w", deviceID, domain.ErrNotFound)
	}
	hours, total, err := s.meter(ctx, order)
	if err != nil {
		return nil, err
	}
	return s.ReturnRental(ctx, ReturnRequest{
		UserID:    userID,
		OrderID:   order.ID,
		DeviceID:  deviceID,
		Hours:     hours,
		TotalCost: total,
		OrderCode: s.codes.Generate(userID),
	})
}

func (s *rentalService) QuoteReturn(ctx context.Context, userID, orderID int32) (*ReturnQuote, error) {
	order, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsOpen() {
		return nil, fmt.Errorf("order %d already closed: %w", orderID, domain.ErrConflict)
	}
	user, err := s.store.Accounts.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	hours, total, err := s.meter(ctx, order)
	if err != nil {
		return nil, err
	}
	return &ReturnQuote{
		OrderID:    order.ID,
		Hours:      hours,
		TotalCost:  total,
		ActualCost: utils.ActualCost(total, user.Membership),
		Deposit:    order.Deposit,
		QuotedAt:   s.clock.Now(),
	}, nil
}

func (s *rentalService) ownedOrder(ctx context.Context, userID, orderID int32) (*domain.Order, error) {
	order, err := s.store.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
	}
	return order, nil
}

func (s *rentalService) ListCurrentRentals(ctx context.Context, userID int32) ([]domain.Order, error) {
	return s.store.Orders.ListOpenByUser(ctx, userID)
}

func (s *rentalService) ListOrderHistory(ctx context.Context, userID int32) ([]domain.Order, error) {
	return s.store.Orders.ListByUser(ctx, userID)
}

func (s *rentalService) SearchOrders(ctx context.Context, userID int32, keyword string) ([]domain.Order, error) {
	return s.store.Orders.Search(ctx, userID, keyword)
}

func (s *rentalService) GetOrderByCode(ctx context.Context, userID int32, code string) (*domain.Order, error) {
	order, err := s.store.Orders.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("order %s: %w", code, domain.ErrNotFound)
	}
	return order, nil
}

func (s *rentalService) DeleteOrder(ctx context.Context, userID, orderID int32) error {
	err := s.store.Orders.DeleteClosed(ctx, orderID, userID)
	if errors.Is(err, domain.ErrConflict) {
		logger.InfoContext(ctx, "Refusing to delete open order", "orderID", orderID, "userID", userID)
	}
	return err
}
