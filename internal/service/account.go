package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/events"
	"powerbank-rental-backend/internal/logger"
	"powerbank-rental-backend/internal/repository"
	"powerbank-rental-backend/internal/security"
	"powerbank-rental-backend/internal/utils"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 20
	passwordMinLen = 6
	passwordMaxLen = 20
	phoneLen       = 11
)

type accountService struct {
	tx         repository.TxManager
	store      repository.Stores
	tokens     security.TokenManager
	clock      utils.Clock
	publisher  events.Publisher
	retry      RetryPolicy
	bcryptCost int
}

func NewAccountService(
	tx repository.TxManager,
	store repository.Stores,
	tokens security.TokenManager,
	clock utils.Clock,
	publisher events.Publisher,
	retry RetryPolicy,
) AccountService {
	return &accountService{
		tx:         tx,
		store:      store,
		tokens:     tokens,
		clock:      clock,
		publisher:  publisher,
		retry:      retry,
		bcryptCost: bcrypt.DefaultCost,
	}
}

func validateUsername(username string) error {
	if n := utf8.RuneCountInString(username); n < usernameMinLen || n > usernameMaxLen {
		return fmt.Errorf("username must be %d-%d characters: %w", usernameMinLen, usernameMaxLen, domain.ErrInvalidArgument)
	}
	return nil
}

func validatePhone(phone string) error {
	if len(phone) != phoneLen || strings.IndexFunc(phone, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return fmt.Errorf("phone must be %d digits: %w", phoneLen, domain.ErrInvalidArgument)
	}
	return nil
}

func validateRegistration(req RegisterRequest) error {
	if err := validateUsername(req.Username); err != nil {
		return err
	}
	if err := validatePhone(req.Phone); err != nil {
		return err
	}
	if n := len(req.Password); n < passwordMinLen || n > passwordMaxLen {
		return fmt.Errorf("password must be %d-%d characters: %w", passwordMinLen, passwordMaxLen, domain.ErrInvalidArgument)
	}
	if req.Password != req.ConfirmPassword {
		return fmt.Errorf("passwords do not match: %w", domain.ErrInvalidArgument)
	}
	return nil
}

func (s *accountService) Register(ctx context.Context, req RegisterRequest) (*domain.Account, error) {
	logger.EnterMethod("accountService.Register", "username", req.Username)
	req.Username = strings.TrimSpace(req.Username)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := validateRegistration(req); err != nil {
		logger.ExitMethodWithError("accountService.Register", err, "username", req.Username)
		return nil, err
	}

	if _, err := s.store.Accounts.GetByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("username %q is taken: %w", req.Username, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &domain.Account{
		Username:     req.Username,
		Phone:        req.Phone,
		PasswordHash: string(hash),
		Membership:   domain.MembershipCommon,
		Balance:      decimal.Zero,
	}
	if err := s.store.Accounts.Create(ctx, account); err != nil {
		logger.ExitMethodWithError("accountService.Register", err, "username", req.Username)
		return nil, err
	}
	logger.ExitMethod("accountService.Register", "accountID", account.ID)
	return account, nil
}

func (s *accountService) Login(ctx context.Context, username, password string) (string, *domain.Account, error) {
	account, err := s.store.Accounts.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	token, err := s.tokens.GenerateAccessToken(account.ID, account.Username, account.Membership)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	logger.InfoContext(ctx, "User logged in", "accountID", account.ID, "membership", account.Membership)
	return token, account, nil
}

func (s *accountService) GetAccount(ctx context.Context, userID int32) (*domain.Account, error) {
	return s.store.Accounts.GetByID(ctx, userID)
}

func (s *accountService) Recharge(ctx context.Context, userID int32, amount decimal.Decimal) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("recharge amount must be positive: %w", domain.ErrInvalidArgument)
	}
	var account *domain.Account
	err := withRetry(ctx, "recharge", s.retry, func() error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
			a, err := st.Accounts.GetByIDForUpdate(ctx, userID)
			if err != nil {
				return err
			}
			if a.IsTreasury() {
				return fmt.Errorf("treasury balance cannot be recharged: %w", domain.ErrForbidden)
			}
			a.Balance = a.Balance.Add(amount)
			if err := st.Accounts.UpdateBalance(ctx, a.ID, a.Balance); err != nil {
				return err
			}
			account = a
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Balance recharged", "accountID", userID, "amount", amount.StringFixed(2))
	return account, nil
}

func (s *accountService) ListPlans() []utils.MembershipPlan {
	return utils.MembershipPlans()
}

// UpgradeMembership charges the plan fee to the treasury and sets the tier
// with an expiry counted from now.
func (s *accountService) UpgradeMembership(ctx context.Context, userID int32, planCode string) (*domain.Account, error) {
	logger.EnterMethod("accountService.UpgradeMembership", "userID", userID, "plan", planCode)
	plan, err := utils.FindMembershipPlan(planCode)
	if err != nil {
		return nil, err
	}

	var account *domain.Account
	err = withRetry(ctx, "upgrade membership", s.retry, func() error {
		return s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
			a, err := st.Accounts.GetByIDForUpdate(ctx, userID)
			if err != nil {
				return err
			}
			if a.IsTreasury() {
				return fmt.Errorf("treasury account cannot change tier: %w", domain.ErrForbidden)
			}
			if !utils.SufficientFunds(a.Balance, plan.Fee) {
				return fmt.Errorf("balance %s below plan fee %s: %w", a.Balance.StringFixed(2), plan.Fee.StringFixed(2), domain.ErrInsufficientBalance)
			}
			treasury, err := st.Accounts.GetTreasury(ctx, true)
			if err != nil {
				return err
			}

			if err := st.Accounts.AdjustBalance(ctx, a.ID, plan.Fee.Neg()); err != nil {
				return err
			}
			if err := st.Accounts.AdjustBalance(ctx, treasury.ID, plan.Fee); err != nil {
				return err
			}
			expiry := s.clock.Now().AddDate(0, plan.Months, 0)
			if err := st.Accounts.UpdateMembership(ctx, a.ID, plan.Membership, &expiry); err != nil {
				return err
			}

			a.Balance = a.Balance.Sub(plan.Fee)
			a.Membership = plan.Membership
			a.MembershipExpiry = &expiry
			account = a
			return nil
		})
	})
	if err != nil {
		logger.ExitMethodWithError("accountService.UpgradeMembership", err, "userID", userID, "plan", planCode)
		return nil, err
	}

	if err := s.publisher.Publish(ctx, events.New(events.MembershipUpgraded, events.AccountKey(userID), plan)); err != nil {
		logger.WarnContext(ctx, "Failed to publish event", "type", events.MembershipUpgraded, "error", err)
	}
	logger.ExitMethod("accountService.UpgradeMembership", "userID", userID, "membership", account.Membership)
	return account, nil
}

// ExpireMemberships drops lapsed VIP and SVIP accounts back to Common. A
// failing account is logged and skipped.
func (s *accountService) ExpireMemberships(ctx context.Context) (int, error) {
	now := s.clock.Now()
	lapsed, err := s.store.Accounts.ListExpiredMemberships(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range lapsed {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		id := candidate.ID
		changed := false
		err := s.tx.WithinTx(ctx, func(ctx context.Context, st repository.Stores) error {
			a, err := st.Accounts.GetByIDForUpdate(ctx, id)
			if err != nil {
				return err
			}
			// renewed since the listing
			if !a.Membership.IsPremium() || a.MembershipExpiry == nil || !a.MembershipExpiry.Before(now) {
				return nil
			}
			changed = true
			return st.Accounts.UpdateMembership(ctx, id, domain.MembershipCommon, nil)
		})
		if err != nil {
			logger.ErrorContext(ctx, "Failed to expire membership", "accountID", id, "error", err)
			continue
		}
		if changed {
			expired++
			if err := s.publisher.Publish(ctx, events.New(events.MembershipExpired, events.AccountKey(id), nil)); err != nil {
				logger.WarnContext(ctx, "Failed to publish event", "type", events.MembershipExpired, "error", err)
			}
		}
	}
	return expired, nil
}
