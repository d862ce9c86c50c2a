/**
 * @description
 * In-memory implementation of the `Repository` interface. It mirrors the
 * PostgreSQL implementation's semantics (atomic settlements, sentinel errors,
 * listing order) under a single mutex, so the service can run without a
 * database in development and the business logic can be tested without one.
 */

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Rouple12138/Web-service-CW2/internal/domain"
)

// MemoryRepository is a mutex-guarded in-memory ledger store.
type MemoryRepository struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*domain.User
	accounts map[uuid.UUID]*domain.Account
	orders   map[uuid.UUID]*domain.Order // keyed by payment id
	now      func() time.Time
}

// NewMemoryRepository instantiates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:    make(map[uuid.UUID]*domain.User),
		accounts: make(map[uuid.UUID]*domain.Account),
		orders:   make(map[uuid.UUID]*domain.Order),
		now:      time.Now,
	}
}

func (m *MemoryRepository) CreateUserWithAccount(_ context.Context, user *domain.User, account *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	normalized := strings.ToLower(strings.TrimSpace(user.Username))
	for _, existing := range m.users {
		if strings.ToLower(strings.TrimSpace(existing.Username)) == normalized {
			return ErrDuplicateIdentity
		}
	}

	now := m.now()
	user.Username = strings.TrimSpace(user.Username)
	user.CreatedAt = now
	account.Balance = 0
	account.CreatedAt = now

	userCopy := *user
	accountCopy := *account
	m.users[user.ID] = &userCopy
	m.accounts[account.ID] = &accountCopy
	return nil
}

func (m *MemoryRepository) FindUserByUsername(_ context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	normalized := strings.ToLower(strings.TrimSpace(username))
	for _, user := range m.users {
		if strings.ToLower(strings.TrimSpace(user.Username)) == normalized {
			userCopy := *user
			return &userCopy, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryRepository) FindAccountByID(_ context.Context, accountID uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accountLocked(accountID)
}

func (m *MemoryRepository) FindAccountByUserID(_ context.Context, userID uuid.UUID) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, account := range m.accounts {
		if account.UserID == userID {
			accountCopy := *account
			return &accountCopy, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *MemoryRepository) Deposit(_ context.Context, accountID uuid.UUID, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	account.Balance += amount
	return account.Balance, nil
}

func (m *MemoryRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[order.PaymentID]; exists {
		return ErrConflict
	}
	order.CreatedAt = m.now()
	orderCopy := *order
	m.orders[order.PaymentID] = &orderCopy
	return nil
}

func (m *MemoryRepository) FindOrderByPaymentID(_ context.Context, paymentID uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[paymentID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	orderCopy := *order
	return &orderCopy, nil
}

func (m *MemoryRepository) SettleOrderPayment(_ context.Context, paymentID uuid.UUID, payerAccountID uuid.UUID, paidAt time.Time) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[paymentID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if order.State != domain.OrderStateCreated {
		return nil, ErrInvalidOrderState
	}
	if order.PayeeAccountID == nil {
		return nil, ErrAccountNotFound
	}

	payer, err := m.accountLockedRef(payerAccountID)
	if err != nil {
		return nil, err
	}
	payee, err := m.accountLockedRef(*order.PayeeAccountID)
	if err != nil {
		return nil, err
	}
	if payer.Balance < order.Price {
		return nil, ErrInsufficientFunds
	}

	payer.Balance -= order.Price
	payee.Balance += order.Price
	order.State = domain.OrderStatePaid
	payerID := payerAccountID
	order.PayerAccountID = &payerID
	paid := paidAt
	order.PaidAt = &paid

	orderCopy := *order
	return &orderCopy, nil
}

func (m *MemoryRepository) SettleOrderRefund(_ context.Context, paymentID uuid.UUID, amount int64) (*domain.RefundResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[paymentID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if order.State != domain.OrderStatePaid {
		return nil, ErrInvalidOrderState
	}
	if order.PayerAccountID == nil || order.PayeeAccountID == nil {
		return nil, ErrAccountNotFound
	}

	payer, err := m.accountLockedRef(*order.PayerAccountID)
	if err != nil {
		return nil, err
	}
	payee, err := m.accountLockedRef(*order.PayeeAccountID)
	if err != nil {
		return nil, err
	}
	if payee.Balance < amount {
		return nil, ErrInsufficientFunds
	}

	payer.Balance += amount
	payee.Balance -= amount
	order.State = domain.OrderStateRefunded

	orderCopy := *order
	return &domain.RefundResult{
		Order:        &orderCopy,
		PayerBalance: payer.Balance,
		PayeeBalance: payee.Balance,
	}, nil
}

func (m *MemoryRepository) ListOrdersByPayer(_ context.Context, payerAccountID uuid.UUID, limit, offset int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var orders []domain.Order
	for _, order := range m.orders {
		if order.PayerAccountID != nil && *order.PayerAccountID == payerAccountID {
			orders = append(orders, *order)
		}
	}

	// paid_at descending, unpaid last, creation time as tie break.
	sort.Slice(orders, func(i, j int) bool {
		a, b := orders[i], orders[j]
		switch {
		case a.PaidAt != nil && b.PaidAt != nil && !a.PaidAt.Equal(*b.PaidAt):
			return a.PaidAt.After(*b.PaidAt)
		case a.PaidAt != nil && b.PaidAt == nil:
			return true
		case a.PaidAt == nil && b.PaidAt != nil:
			return false
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})

	if offset >= len(orders) {
		return nil, nil
	}
	orders = orders[offset:]
	if limit < len(orders) {
		orders = orders[:limit]
	}
	return orders, nil
}

func (m *MemoryRepository) accountLocked(accountID uuid.UUID) (*domain.Account, error) {
	account, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	accountCopy := *account
	return &accountCopy, nil
}

func (m *MemoryRepository) accountLockedRef(accountID uuid.UUID) (*domain.Account, error) {
	account, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return account, nil
}
