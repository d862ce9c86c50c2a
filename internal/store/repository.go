/**
 * @description
 * This file defines the `Repository` interface, the contract for all ledger
 * store operations the payment service needs. The interface decouples the
 * business logic from the concrete storage backend (PostgreSQL in production,
 * an in-memory implementation for development and tests).
 *
 * The settlement methods (SettleOrderPayment, SettleOrderRefund, Deposit) are
 * the only ways balances change. Each executes as a single atomic transaction:
 * it locks the rows it touches, validates preconditions against the locked
 * state, and commits every mutation together or none at all.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Rouple12138/Web-service-CW2/internal/domain"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrAccountNotFound   = errors.New("account not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidOrderState = errors.New("order is not in a state that allows this transition")
	ErrDuplicateIdentity = errors.New("identity already registered")
	ErrConflict          = errors.New("concurrent transaction conflict")
)

// Repository defines the set of methods for interacting with the ledger store.
type Repository interface {
	// Identity and account methods
	CreateUserWithAccount(ctx context.Context, user *domain.User, account *domain.Account) error
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	FindAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	// Deposit atomically credits an account and returns the new balance.
	Deposit(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error)

	// Order methods
	CreateOrder(ctx context.Context, order *domain.Order) error
	FindOrderByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.Order, error)
	// SettleOrderPayment executes the created -> paid transition: debit payer,
	// credit payee, stamp payer and paid_at on the order, all in one
	// transaction. Fails without side effects on any precondition violation.
	SettleOrderPayment(ctx context.Context, paymentID uuid.UUID, payerAccountID uuid.UUID, paidAt time.Time) (*domain.Order, error)
	// SettleOrderRefund executes the paid -> refunded transition for the given
	// refund amount and reports both parties' post-refund balances.
	SettleOrderRefund(ctx context.Context, paymentID uuid.UUID, amount int64) (*domain.RefundResult, error)
	// ListOrdersByPayer returns the payer's orders sorted by payment time
	// descending, unpaid orders last.
	ListOrdersByPayer(ctx context.Context, payerAccountID uuid.UUID, limit, offset int) ([]domain.Order, error)
}
