/**
 * @description
 * PostgreSQL implementation of the `Repository` interface. It contains all the
 * SQL for users, accounts, and orders, including the atomic settlement
 * transactions that move money between accounts.
 *
 * @notes
 * - Settlement transactions lock the order row and both account rows with
 *   `SELECT ... FOR UPDATE` before validating preconditions. Account rows are
 *   always locked in ascending UUID order so two settlements touching the same
 *   pair of accounts in opposite roles cannot deadlock.
 * - Balance checks run against the locked rows, and the `balance >= 0` CHECK
 *   constraint backs them up at the schema level.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 */

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rouple12138/Web-service-CW2/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// IsRetryableTxError reports whether err is a transient transaction failure
// (serialization failure or deadlock) that the caller may retry.
func IsRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// CreateUserWithAccount inserts the identity and its zero-balance account in
// one transaction. A duplicate username surfaces as ErrDuplicateIdentity.
func (r *PostgresRepository) CreateUserWithAccount(ctx context.Context, user *domain.User, account *domain.Account) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	userQuery := `
		INSERT INTO users (id, username, password_hash)
		VALUES ($1, btrim($2), $3)
		RETURNING created_at
	`
	if err := tx.QueryRow(ctx, userQuery, user.ID, user.Username, user.PasswordHash).Scan(&user.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateIdentity
		}
		return err
	}

	accountQuery := `
		INSERT INTO accounts (id, user_id, display_name, balance)
		VALUES ($1, $2, $3, 0)
		RETURNING created_at
	`
	if err := tx.QueryRow(ctx, accountQuery, account.ID, account.UserID, account.DisplayName).Scan(&account.CreatedAt); err != nil {
		return err
	}
	account.Balance = 0

	return tx.Commit(ctx)
}

// FindUserByUsername retrieves a user by their registration name.
func (r *PostgresRepository) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, username, password_hash, created_at FROM users WHERE lower(btrim(username)) = lower(btrim($1))`
	err := r.db.QueryRow(ctx, query, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindAccountByID retrieves an account by its identifier.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, user_id, display_name, balance, created_at FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, accountID).Scan(&account.ID, &account.UserID, &account.DisplayName, &account.Balance, &account.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindAccountByUserID retrieves the account owned by a user.
func (r *PostgresRepository) FindAccountByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, user_id, display_name, balance, created_at FROM accounts WHERE user_id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&account.ID, &account.UserID, &account.DisplayName, &account.Balance, &account.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Deposit atomically credits an account and returns the new balance.
func (r *PostgresRepository) Deposit(ctx context.Context, accountID uuid.UUID, amount int64) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var balance int64
	// Use FOR UPDATE to lock the row, preventing race conditions.
	err = tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", accountID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}

	err = tx.QueryRow(ctx, "UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2 RETURNING balance", amount, accountID).Scan(&balance)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return balance, nil
}

// CreateOrder inserts a new order in the created state.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (id, payment_id, stamp, merchant_order_id, price, payee_account_id, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	return r.db.QueryRow(ctx, query,
		order.ID,
		order.PaymentID,
		order.Stamp,
		order.MerchantRef,
		order.Price,
		order.PayeeAccountID,
		order.State,
	).Scan(&order.CreatedAt)
}

// FindOrderByPaymentID retrieves an order by its external payment handle.
func (r *PostgresRepository) FindOrderByPaymentID(ctx context.Context, paymentID uuid.UUID) (*domain.Order, error) {
	var order domain.Order
	query := `
		SELECT id, payment_id, stamp, merchant_order_id, price, payer_account_id, payee_account_id, state, created_at, paid_at
		FROM orders
		WHERE payment_id = $1
	`
	err := r.db.QueryRow(ctx, query, paymentID).Scan(
		&order.ID, &order.PaymentID, &order.Stamp, &order.MerchantRef, &order.Price,
		&order.PayerAccountID, &order.PayeeAccountID, &order.State, &order.CreatedAt, &order.PaidAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// SettleOrderPayment performs the created -> paid transition atomically.
func (r *PostgresRepository) SettleOrderPayment(ctx context.Context, paymentID uuid.UUID, payerAccountID uuid.UUID, paidAt time.Time) (*domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// 1. Lock the order row and validate the transition.
	var order domain.Order
	orderQuery := `
		SELECT id, payment_id, stamp, merchant_order_id, price, payer_account_id, payee_account_id, state, created_at, paid_at
		FROM orders
		WHERE payment_id = $1
		FOR UPDATE
	`
	err = tx.QueryRow(ctx, orderQuery, paymentID).Scan(
		&order.ID, &order.PaymentID, &order.Stamp, &order.MerchantRef, &order.Price,
		&order.PayerAccountID, &order.PayeeAccountID, &order.State, &order.CreatedAt, &order.PaidAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.State != domain.OrderStateCreated {
		return nil, ErrInvalidOrderState
	}
	if order.PayeeAccountID == nil {
		return nil, ErrAccountNotFound
	}
	payeeAccountID := *order.PayeeAccountID

	// 2. Lock both account rows in ascending UUID order and read balances.
	balances, err := lockAccountPair(ctx, tx, payerAccountID, payeeAccountID)
	if err != nil {
		return nil, err
	}
	if balances[payerAccountID] < order.Price {
		return nil, ErrInsufficientFunds
	}

	// 3. Move the money. When payer and payee are the same account the
	// transfer nets to zero but the transition is still recorded.
	if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance - $1, updated_at = NOW() WHERE id = $2", order.Price, payerAccountID); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2", order.Price, payeeAccountID); err != nil {
		return nil, err
	}

	// 4. Advance the order state.
	if _, err := tx.Exec(ctx,
		"UPDATE orders SET state = $1, payer_account_id = $2, paid_at = $3 WHERE id = $4",
		domain.OrderStatePaid, payerAccountID, paidAt, order.ID,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	order.State = domain.OrderStatePaid
	order.PayerAccountID = &payerAccountID
	order.PaidAt = &paidAt
	return &order, nil
}

// SettleOrderRefund performs the paid -> refunded transition atomically and
// returns both parties' post-refund balances.
func (r *PostgresRepository) SettleOrderRefund(ctx context.Context, paymentID uuid.UUID, amount int64) (*domain.RefundResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var order domain.Order
	orderQuery := `
		SELECT id, payment_id, stamp, merchant_order_id, price, payer_account_id, payee_account_id, state, created_at, paid_at
		FROM orders
		WHERE payment_id = $1
		FOR UPDATE
	`
	err = tx.QueryRow(ctx, orderQuery, paymentID).Scan(
		&order.ID, &order.PaymentID, &order.Stamp, &order.MerchantRef, &order.Price,
		&order.PayerAccountID, &order.PayeeAccountID, &order.State, &order.CreatedAt, &order.PaidAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.State != domain.OrderStatePaid {
		return nil, ErrInvalidOrderState
	}
	// The payee account is a weak reference; refunding requires it to still
	// exist because it is the current holder of the funds.
	if order.PayerAccountID == nil || order.PayeeAccountID == nil {
		return nil, ErrAccountNotFound
	}
	payerAccountID := *order.PayerAccountID
	payeeAccountID := *order.PayeeAccountID

	balances, err := lockAccountPair(ctx, tx, payerAccountID, payeeAccountID)
	if err != nil {
		return nil, err
	}
	if balances[payeeAccountID] < amount {
		return nil, ErrInsufficientFunds
	}

	var payerBalance, payeeBalance int64
	if err := tx.QueryRow(ctx, "UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2 RETURNING balance", amount, payerAccountID).Scan(&payerBalance); err != nil {
		return nil, err
	}
	if err := tx.QueryRow(ctx, "UPDATE accounts SET balance = balance - $1, updated_at = NOW() WHERE id = $2 RETURNING balance", amount, payeeAccountID).Scan(&payeeBalance); err != nil {
		return nil, err
	}
	if payerAccountID == payeeAccountID {
		// Second RETURNING carries the final value when both roles share one row.
		payerBalance = payeeBalance
	}

	if _, err := tx.Exec(ctx, "UPDATE orders SET state = $1 WHERE id = $2", domain.OrderStateRefunded, order.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	order.State = domain.OrderStateRefunded
	return &domain.RefundResult{
		Order:        &order,
		PayerBalance: payerBalance,
		PayeeBalance: payeeBalance,
	}, nil
}

// ListOrdersByPayer retrieves a payer's orders, most recently paid first with
// unpaid orders sorted last.
func (r *PostgresRepository) ListOrdersByPayer(ctx context.Context, payerAccountID uuid.UUID, limit, offset int) ([]domain.Order, error) {
	var orders []domain.Order
	query := `
		SELECT id, payment_id, stamp, merchant_order_id, price, payer_account_id, payee_account_id, state, created_at, paid_at
		FROM orders
		WHERE payer_account_id = $1
		ORDER BY paid_at DESC NULLS LAST, created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, payerAccountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var order domain.Order
		err := rows.Scan(
			&order.ID, &order.PaymentID, &order.Stamp, &order.MerchantRef, &order.Price,
			&order.PayerAccountID, &order.PayeeAccountID, &order.State, &order.CreatedAt, &order.PaidAt,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// lockAccountPair locks one or two account rows in ascending UUID order and
// returns their balances keyed by account id. A missing row maps to
// ErrAccountNotFound.
func lockAccountPair(ctx context.Context, tx pgx.Tx, a, b uuid.UUID) (map[uuid.UUID]int64, error) {
	ids := []uuid.UUID{a}
	if b != a {
		if bytes.Compare(b[:], a[:]) < 0 {
			ids = []uuid.UUID{b, a}
		} else {
			ids = append(ids, b)
		}
	}

	balances := make(map[uuid.UUID]int64, len(ids))
	for _, id := range ids {
		var balance int64
		err := tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", id).Scan(&balance)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil, ErrAccountNotFound
			}
			return nil, err
		}
		balances[id] = balance
	}
	return balances, nil
}
