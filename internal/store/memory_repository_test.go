package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Rouple12138/Web-service-CW2/internal/domain"
)

func seedAccount(t *testing.T, repo *MemoryRepository, name string, balance int64) *domain.Account {
	t.Helper()
	user := &domain.User{ID: uuid.New(), Username: name, PasswordHash: "x"}
	account := &domain.Account{ID: uuid.New(), UserID: user.ID, DisplayName: name}
	if err := repo.CreateUserWithAccount(context.Background(), user, account); err != nil {
		t.Fatalf("failed to seed account %s: %v", name, err)
	}
	if balance > 0 {
		if _, err := repo.Deposit(context.Background(), account.ID, balance); err != nil {
			t.Fatalf("failed to fund account %s: %v", name, err)
		}
	}
	return account
}

func seedOrder(t *testing.T, repo *MemoryRepository, payee *domain.Account, price int64) *domain.Order {
	t.Helper()
	payeeID := payee.ID
	order := &domain.Order{
		ID:             uuid.New(),
		PaymentID:      uuid.New(),
		Stamp:          uuid.New(),
		MerchantRef:    "ref-" + order8(payee.ID),
		Price:          price,
		PayeeAccountID: &payeeID,
		State:          domain.OrderStateCreated,
	}
	if err := repo.CreateOrder(context.Background(), order); err != nil {
		t.Fatalf("failed to seed order: %v", err)
	}
	return order
}

func order8(id uuid.UUID) string {
	return id.String()[:8]
}

func mustBalance(t *testing.T, repo *MemoryRepository, accountID uuid.UUID) int64 {
	t.Helper()
	account, err := repo.FindAccountByID(context.Background(), accountID)
	if err != nil {
		t.Fatalf("failed to read account balance: %v", err)
	}
	return account.Balance
}

func TestCreateUserWithAccountRejectsDuplicateName(t *testing.T) {
	repo := NewMemoryRepository()
	seedAccount(t, repo, "alice", 0)

	user := &domain.User{ID: uuid.New(), Username: "Alice", PasswordHash: "y"}
	account := &domain.Account{ID: uuid.New(), UserID: user.ID, DisplayName: "Alice"}
	err := repo.CreateUserWithAccount(context.Background(), user, account)
	if !errors.Is(err, ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity for case-variant duplicate, got %v", err)
	}
}

func TestSettleOrderPaymentMovesMoneyAtomically(t *testing.T) {
	repo := NewMemoryRepository()
	payer := seedAccount(t, repo, "payer", 10000)
	payee := seedAccount(t, repo, "payee", 10000)
	order := seedOrder(t, repo, payee, 1000)

	paidAt := time.Now()
	settled, err := repo.SettleOrderPayment(context.Background(), order.PaymentID, payer.ID, paidAt)
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}

	if settled.State != domain.OrderStatePaid {
		t.Errorf("order state = %s, want paid", settled.State)
	}
	if settled.PayerAccountID == nil || *settled.PayerAccountID != payer.ID {
		t.Errorf("payer account id not stamped on order")
	}
	if settled.PaidAt == nil || !settled.PaidAt.Equal(paidAt) {
		t.Errorf("paid_at not recorded")
	}
	if got := mustBalance(t, repo, payer.ID); got != 9000 {
		t.Errorf("payer balance = %d, want 9000", got)
	}
	if got := mustBalance(t, repo, payee.ID); got != 11000 {
		t.Errorf("payee balance = %d, want 11000", got)
	}
}

func TestSettleOrderPaymentInsufficientFundsLeavesStateUntouched(t *testing.T) {
	repo := NewMemoryRepository()
	payer := seedAccount(t, repo, "payer", 500)
	payee := seedAccount(t, repo, "payee", 0)
	order := seedOrder(t, repo, payee, 1000)

	_, err := repo.SettleOrderPayment(context.Background(), order.PaymentID, payer.ID, time.Now())
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	if got := mustBalance(t, repo, payer.ID); got != 500 {
		t.Errorf("payer balance changed on failed settlement: %d", got)
	}
	if got := mustBalance(t, repo, payee.ID); got != 0 {
		t.Errorf("payee balance changed on failed settlement: %d", got)
	}
	reread, err := repo.FindOrderByPaymentID(context.Background(), order.PaymentID)
	if err != nil {
		t.Fatalf("failed to re-read order: %v", err)
	}
	if reread.State != domain.OrderStateCreated {
		t.Errorf("order state = %s after failed settlement, want created", reread.State)
	}
}

func TestSettleOrderPaymentRejectsWrongState(t *testing.T) {
	repo := NewMemoryRepository()
	payer := seedAccount(t, repo, "payer", 10000)
	payee := seedAccount(t, repo, "payee", 0)
	order := seedOrder(t, repo, payee, 1000)

	if _, err := repo.SettleOrderPayment(context.Background(), order.PaymentID, payer.ID, time.Now()); err != nil {
		t.Fatalf("first settlement failed: %v", err)
	}
	_, err := repo.SettleOrderPayment(context.Background(), order.PaymentID, payer.ID, time.Now())
	if !errors.Is(err, ErrInvalidOrderState) {
		t.Fatalf("expected ErrInvalidOrderState on second pay, got %v", err)
	}
	if got := mustBalance(t, repo, payer.ID); got != 9000 {
		t.Errorf("payer balance = %d after rejected double pay, want 9000", got)
	}
}

func TestConcurrentPaymentSettlesExactlyOnce(t *testing.T) {
	repo := NewMemoryRepository()
	payer := seedAccount(t, repo, "payer", 10000)
	payee := seedAccount(t, repo, "payee", 0)
	order := seedOrder(t, repo, payee, 1000)

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.SettleOrderPayment(context.Background(), order.PaymentID, payer.ID, time.Now())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, ErrInvalidOrderState) {
			t.Errorf("unexpected concurrent settlement error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("order settled %d times, want exactly 1", successes)
	}
	if got := mustBalance(t, repo, payer.ID); got != 9000 {
		t.Errorf("payer balance = %d, want 9000", got)
	}
	if got := mustBalance(t, repo, payee.ID); got != 1000 {
		t.Errorf("payee balance = %d, want 1000", got)
	}
}

func TestSettleOrderRefundReturnsBothBalances(t *testing.T) {
	repo := NewMemoryRepository()
	payer := seedAccount(t, repo, "payer", 10000)
	payee := seedAccount(t, repo, "payee", 10000)
	order := seedOrder(t, repo, payee, 1000)

	if _, err := repo.SettleOrderPayment(context.Background(), order.PaymentID, payer.ID, time.Now()); err != nil {
		t.Fatalf("settlement failed: %v", err)
	}

	result, err := repo.SettleOrderRefund(context.Background(), order.PaymentID, 500)
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if result.Order.State != domain.OrderStateRefunded {
		t.Errorf("order state = %s, want refunded", result.Order.State)
	}
	if result.PayerBalance != 9500 {
		t.Errorf("payer balance = %d, want 9500", result.PayerBalance)
	}
	if result.PayeeBalance != 10500 {
		t.Errorf("payee balance = %d, want 10500", result.PayeeBalance)
	}

	// A partial refund is terminal.
	_, err = repo.SettleOrderRefund(context.Background(), order.PaymentID, 100)
	if !errors.Is(err, ErrInvalidOrderState) {
		t.Fatalf("expected ErrInvalidOrderState on second refund, got %v", err)
	}
}

func TestSettleOrderRefundRequiresPaidState(t *testing.T) {
	repo := NewMemoryRepository()
	payee := seedAccount(t, repo, "payee", 0)
	order := seedOrder(t, repo, payee, 1000)

	_, err := repo.SettleOrderRefund(context.Background(), order.PaymentID, 1000)
	if !errors.Is(err, ErrInvalidOrderState) {
		t.Fatalf("expected ErrInvalidOrderState for refund of unpaid order, got %v", err)
	}
}

func TestMoneyConservationAcrossSettlements(t *testing.T) {
	repo := NewMemoryRepository()
	payer := seedAccount(t, repo, "payer", 10000)
	payee := seedAccount(t, repo, "payee", 10000)

	for i := 0; i < 5; i++ {
		order := seedOrder(t, repo, payee, 700)
		if _, err := repo.SettleOrderPayment(context.Background(), order.PaymentID, payer.ID, time.Now()); err != nil {
			t.Fatalf("settlement %d failed: %v", i, err)
		}
		if i%2 == 0 {
			if _, err := repo.SettleOrderRefund(context.Background(), order.PaymentID, 300); err != nil {
				t.Fatalf("refund %d failed: %v", i, err)
			}
		}
	}

	total := mustBalance(t, repo, payer.ID) + mustBalance(t, repo, payee.ID)
	if total != 20000 {
		t.Fatalf("total money = %d, want 20000", total)
	}
}

func TestListOrdersByPayerOrderingAndPagination(t *testing.T) {
	repo := NewMemoryRepository()
	payer := seedAccount(t, repo, "payer", 100000)
	payee := seedAccount(t, repo, "payee", 0)

	base := time.Now()
	var paymentIDs []uuid.UUID
	for i := 0; i < 3; i++ {
		order := seedOrder(t, repo, payee, 100)
		if _, err := repo.SettleOrderPayment(context.Background(), order.PaymentID, payer.ID, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("settlement %d failed: %v", i, err)
		}
		paymentIDs = append(paymentIDs, order.PaymentID)
	}

	orders, err := repo.ListOrdersByPayer(context.Background(), payer.ID, 2, 0)
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("page size = %d, want 2", len(orders))
	}
	// Newest payment first.
	if orders[0].PaymentID != paymentIDs[2] || orders[1].PaymentID != paymentIDs[1] {
		t.Errorf("listing not in descending payment time order")
	}

	second, err := repo.ListOrdersByPayer(context.Background(), payer.ID, 2, 2)
	if err != nil {
		t.Fatalf("second page failed: %v", err)
	}
	if len(second) != 1 || second[0].PaymentID != paymentIDs[0] {
		t.Errorf("second page contents wrong")
	}

	empty, err := repo.ListOrdersByPayer(context.Background(), payer.ID, 2, 10)
	if err != nil {
		t.Fatalf("out-of-range page failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("out-of-range page returned %d orders, want 0", len(empty))
	}
}

func TestDepositUnknownAccount(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.Deposit(context.Background(), uuid.New(), 100)
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
