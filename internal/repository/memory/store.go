// Package memory is an in-process implementation of the repository
// contracts. It keeps the same locking and visibility rules as the Postgres
// store: writes are staged per transaction and published on commit, row locks
// are exclusive, reentrant within a transaction and bounded by a timeout.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"powerbank-rental-backend/internal/domain"
	"powerbank-rental-backend/internal/repository"
)

type rowKind int

const (
	kindDevice rowKind = iota
	kindAccount
	kindOrder
)

func (k rowKind) String() string {
	switch k {
	case kindDevice:
		return "device"
	case kindAccount:
		return "account"
	case kindOrder:
		return "order"
	}
	return "row"
}

type rowKey struct {
	kind rowKind
	id   int32
}

type lockTable struct {
	mu   sync.Mutex
	rows map[rowKey]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{rows: make(map[rowKey]chan struct{})}
}

func (l *lockTable) slot(k rowKey) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.rows[k]
	if !ok {
		ch = make(chan struct{}, 1)
		l.rows[k] = ch
	}
	return ch
}

func (l *lockTable) acquire(ctx context.Context, k rowKey, timeout time.Duration) error {
	ch := l.slot(k)
	select {
	case ch <- struct{}{}:
		return nil
	default:
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case ch <- struct{}{}:
		return nil
	case <-expired:
		return fmt.Errorf("%w: %s %d", domain.ErrLockTimeout, k.kind, k.id)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lockTable) release(k rowKey) {
	<-l.slot(k)
}

type Store struct {
	mu       sync.RWMutex
	devices  map[int32]domain.Device
	accounts map[int32]domain.Account
	orders   map[int32]domain.Order

	deviceSeq  atomic.Int32
	accountSeq atomic.Int32
	orderSeq   atomic.Int32

	locks       *lockTable
	lockTimeout time.Duration

	repository.DeviceRepository
	repository.AccountRepository
	repository.OrderRepository
}

func NewStore(lockTimeout time.Duration) *Store {
	s := &Store{
		devices:     make(map[int32]domain.Device),
		accounts:    make(map[int32]domain.Account),
		orders:      make(map[int32]domain.Order),
		locks:       newLockTable(),
		lockTimeout: lockTimeout,
	}
	s.DeviceRepository = &deviceRepository{s: s}
	s.AccountRepository = &accountRepository{s: s}
	s.OrderRepository = &orderRepository{s: s}
	return s
}

func (s *Store) Stores() repository.Stores {
	return repository.Stores{
		Devices:  s.DeviceRepository,
		Accounts: s.AccountRepository,
		Orders:   s.OrderRepository,
	}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st repository.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := s.begin()
	defer func() {
		if p := recover(); p != nil {
			t.rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, t.stores()); err != nil {
		t.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		t.rollback()
		return err
	}
	return t.commit()
}

// write runs fn in the caller's transaction, or in a fresh one committed
// immediately when the repository is not bound to a transaction.
func (s *Store) write(t *txn, fn func(t *txn) error) error {
	if t != nil {
		return fn(t)
	}
	t = s.begin()
	if err := fn(t); err != nil {
		t.rollback()
		return err
	}
	return t.commit()
}

type txn struct {
	s        *Store
	held     map[rowKey]struct{}
	order    []rowKey
	devices  map[int32]*domain.Device
	accounts map[int32]*domain.Account
	orders   map[int32]*domain.Order
	done     bool
}

func (s *Store) begin() *txn {
	return &txn{
		s:        s,
		held:     make(map[rowKey]struct{}),
		devices:  make(map[int32]*domain.Device),
		accounts: make(map[int32]*domain.Account),
		orders:   make(map[int32]*domain.Order),
	}
}

func (t *txn) stores() repository.Stores {
	return repository.Stores{
		Devices:  &deviceRepository{s: t.s, tx: t},
		Accounts: &accountRepository{s: t.s, tx: t},
		Orders:   &orderRepository{s: t.s, tx: t},
	}
}

func (t *txn) lock(ctx context.Context, k rowKey) error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", domain.ErrPersistence)
	}
	if _, ok := t.held[k]; ok {
		return nil
	}
	if err := t.s.locks.acquire(ctx, k, t.s.lockTimeout); err != nil {
		return err
	}
	t.held[k] = struct{}{}
	t.order = append(t.order, k)
	return nil
}

func (t *txn) releaseAll() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.s.locks.release(t.order[i])
	}
	t.held = nil
	t.order = nil
	t.done = true
}

func (t *txn) rollback() {
	if t.done {
		return
	}
	t.releaseAll()
}

func (t *txn) commit() error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", domain.ErrPersistence)
	}
	defer t.releaseAll()

	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := t.checkConstraints(); err != nil {
		return err
	}
	for id, d := range t.devices {
		if d == nil {
			delete(s.devices, id)
			continue
		}
		s.devices[id] = *d
	}
	for id, a := range t.accounts {
		if a == nil {
			delete(s.accounts, id)
			continue
		}
		s.accounts[id] = *a
	}
	for id, o := range t.orders {
		if o == nil {
			delete(s.orders, id)
			continue
		}
		s.orders[id] = *o
	}
	return nil
}

// checkConstraints mirrors the unique indexes and foreign keys of the SQL
// schema. Caller holds s.mu.
func (t *txn) checkConstraints() error {
	accounts := t.s.accountView(t)
	for id, staged := range t.accounts {
		if staged == nil {
			continue
		}
		for _, other := range accounts {
			if other.ID == id {
				continue
			}
			if other.Username == staged.Username || other.Phone == staged.Phone {
				return fmt.Errorf("%w: account %q already exists", domain.ErrConflict, staged.Username)
			}
			if staged.Membership == domain.MembershipAdmin && other.Membership == domain.MembershipAdmin {
				return fmt.Errorf("%w: treasury account already exists", domain.ErrConflict)
			}
		}
	}

	orders := t.s.orderView(t)
	for _, o := range orders {
		if d, ok := t.devices[o.DeviceID]; ok && d == nil {
			return fmt.Errorf("%w: device %d is referenced by order %d", domain.ErrConflict, o.DeviceID, o.ID)
		}
		if a, ok := t.accounts[o.UserID]; ok && a == nil {
			return fmt.Errorf("%w: account %d is referenced by order %d", domain.ErrConflict, o.UserID, o.ID)
		}
	}
	for id, staged := range t.orders {
		if staged == nil {
			continue
		}
		for _, other := range orders {
			if other.ID == id {
				continue
			}
			if staged.IsOpen() && other.IsOpen() && other.DeviceID == staged.DeviceID {
				return fmt.Errorf("%w: device %d already has an open order", domain.ErrConflict, staged.DeviceID)
			}
			if staged.OrderCode != nil && other.OrderCode != nil && *staged.OrderCode == *other.OrderCode {
				return fmt.Errorf("%w: order code %s already used", domain.ErrConflict, *staged.OrderCode)
			}
		}
	}
	return nil
}

// The view helpers merge committed rows with t's staged writes. t may be
// nil. Caller holds s.mu (read or write).

func (s *Store) deviceView(t *txn) []domain.Device {
	return mergeView(s.devices, t.stagedDevices())
}

func (s *Store) accountView(t *txn) []domain.Account {
	return mergeView(s.accounts, t.stagedAccounts())
}

func (s *Store) orderView(t *txn) []domain.Order {
	return mergeView(s.orders, t.stagedOrders())
}

func (t *txn) stagedDevices() map[int32]*domain.Device {
	if t == nil {
		return nil
	}
	return t.devices
}

func (t *txn) stagedAccounts() map[int32]*domain.Account {
	if t == nil {
		return nil
	}
	return t.accounts
}

func (t *txn) stagedOrders() map[int32]*domain.Order {
	if t == nil {
		return nil
	}
	return t.orders
}

type identified interface {
	domain.Device | domain.Account | domain.Order
}

func mergeView[T identified](committed map[int32]T, staged map[int32]*T) []T {
	out := make([]T, 0, len(committed)+len(staged))
	ids := make([]int32, 0, len(committed)+len(staged))
	for id := range committed {
		if _, overridden := staged[id]; !overridden {
			ids = append(ids, id)
		}
	}
	for id, v := range staged {
		if v != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if v, ok := staged[id]; ok {
			out = append(out, *v)
			continue
		}
		out = append(out, committed[id])
	}
	return out
}

func lookup[T identified](committed map[int32]T, staged map[int32]*T, id int32) (T, bool) {
	if v, ok := staged[id]; ok {
		if v == nil {
			var zero T
			return zero, false
		}
		return *v, true
	}
	v, ok := committed[id]
	return v, ok
}
