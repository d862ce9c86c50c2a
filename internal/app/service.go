/**
 * @description
 * This file contains the core business logic for the payment service. The
 * `Service` struct owns the order state machine (create -> pay -> refund),
 * account registration and authentication, deposits, and the paginated order
 * listing. It coordinates the ledger repository, the event producer, and the
 * metrics collectors.
 *
 * Key invariants enforced here and in the store layer:
 * - Prices and refund amounts are strictly positive; refunds never exceed the
 *   original price.
 * - Every settlement is a single atomic transaction; a failed precondition
 *   leaves all persisted state untouched.
 * - Transient transaction conflicts are retried a bounded number of times and
 *   then surfaced as a conflict error.
 *
 * @dependencies
 * - github.com/google/uuid: For payment and correlation identifiers.
 * - github.com/golang-jwt/jwt/v5: Session token issuance.
 * - golang.org/x/crypto/bcrypt: Password hashing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Rouple12138/Web-service-CW2/internal/domain"
	"github.com/Rouple12138/Web-service-CW2/internal/metrics"
	"github.com/Rouple12138/Web-service-CW2/internal/store"
	"github.com/Rouple12138/Web-service-CW2/pkg/rabbitmq"
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrRefundExceedsPrice  = errors.New("refund amount is greater than original order price")
	ErrInvalidRegistration = errors.New("name and password are required")
	ErrInvalidCredentials  = errors.New("invalid ID/password")
	ErrRateLimited         = errors.New("too many payment attempts; slow down")
)

// PaymentRateLimiter consumes one attempt from a fixed rate-limit window.
// Implementations must be safe to call with a nil receiver.
type PaymentRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Config carries the tunables the service needs from the environment.
type Config struct {
	JWTSecret             string
	TokenTTL              time.Duration
	EventExchange         string
	DefaultPageSize       int
	MaxPageSize           int
	SettleRetryAttempts   int
	PayRateLimitPerMinute int
}

// Service provides the core business logic for the payment service.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	metrics       *metrics.PaymentMetrics
	rateLimiter   PaymentRateLimiter
	cfg           Config
	now           func() time.Time
}

// NewService creates a new payment service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher, m *metrics.PaymentMetrics, cfg Config) *Service {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 10
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 1000
	}
	if cfg.SettleRetryAttempts <= 0 {
		cfg.SettleRetryAttempts = 3
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	return &Service{
		repo:          repo,
		eventProducer: producer,
		metrics:       m,
		cfg:           cfg,
		now:           time.Now,
	}
}

// SetPaymentRateLimiter wires an optional distributed limiter for pay attempts.
func (s *Service) SetPaymentRateLimiter(limiter PaymentRateLimiter) {
	s.rateLimiter = limiter
}

// Register creates a new identity with a zero-balance account.
func (s *Service) Register(ctx context.Context, name, password string) (*domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return nil, ErrInvalidRegistration
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Username:     name,
		PasswordHash: string(hash),
	}
	account := &domain.Account{
		ID:          uuid.New(),
		UserID:      user.ID,
		DisplayName: name,
	}

	if err := s.repo.CreateUserWithAccount(ctx, user, account); err != nil {
		s.recordFailure("register", err)
		return nil, err
	}
	log.Printf("level=info component=service op=register outcome=ok account_id=%s", account.ID)
	return account, nil
}

// Login verifies the credential and issues a signed session token whose
// subject is the internal user id.
func (s *Service) Login(ctx context.Context, id, password string) (string, error) {
	user, err := s.repo.FindUserByUsername(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   user.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ResolveAccount maps an authenticated user id to their ledger account.
func (s *Service) ResolveAccount(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	return s.repo.FindAccountByUserID(ctx, userID)
}

// GetBalance returns the current balance in cents for an account.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Deposit credits the caller's own account. Depositing to any other account
// is indistinguishable from the account not existing.
func (s *Service) Deposit(ctx context.Context, callerAccountID, targetAccountID uuid.UUID, amount int64) (int64, error) {
	if amount <= 0 {
		s.recordFailure("deposit", ErrInvalidAmount)
		return 0, ErrInvalidAmount
	}
	if callerAccountID != targetAccountID {
		s.recordFailure("deposit", store.ErrAccountNotFound)
		return 0, store.ErrAccountNotFound
	}

	var balance int64
	err := s.withSettleRetry(ctx, "deposit", func() error {
		var err error
		balance, err = s.repo.Deposit(ctx, targetAccountID, amount)
		return err
	})
	if err != nil {
		s.recordFailure("deposit", err)
		return 0, err
	}
	return balance, nil
}

// CreateOrder allocates a new order in the created state with fresh payment
// and correlation identifiers. No balance changes here.
func (s *Service) CreateOrder(ctx context.Context, payeeAccountID uuid.UUID, merchantRef string, price int64) (*domain.Order, error) {
	if price <= 0 {
		s.recordFailure("create_order", ErrInvalidAmount)
		return nil, ErrInvalidAmount
	}
	if _, err := s.repo.FindAccountByID(ctx, payeeAccountID); err != nil {
		s.recordFailure("create_order", err)
		return nil, err
	}

	payeeID := payeeAccountID
	order := &domain.Order{
		ID:             uuid.New(),
		PaymentID:      uuid.New(),
		Stamp:          uuid.New(),
		MerchantRef:    merchantRef,
		Price:          price,
		PayeeAccountID: &payeeID,
		State:          domain.OrderStateCreated,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		s.recordFailure("create_order", err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersCreated.Inc()
	}
	log.Printf("level=info component=service op=create_order outcome=ok payment_id=%s payee_account_id=%s amount=%d", order.PaymentID, payeeAccountID, price)
	return order, nil
}

// PayOrder executes the created -> paid transition on behalf of the payer.
func (s *Service) PayOrder(ctx context.Context, payerAccountID uuid.UUID, paymentID string) (*domain.Order, error) {
	id, err := uuid.Parse(strings.TrimSpace(paymentID))
	if err != nil {
		s.recordFailure("pay_order", store.ErrOrderNotFound)
		return nil, store.ErrOrderNotFound
	}

	if s.rateLimiter != nil && s.cfg.PayRateLimitPerMinute > 0 {
		count, _, limitErr := s.rateLimiter.ConsumeRateLimit(ctx, "pay_order", payerAccountID.String(), s.cfg.PayRateLimitPerMinute, time.Minute)
		if limitErr != nil {
			// Fail open: a broken limiter must not block settlement.
			log.Printf("level=warn component=service op=pay_order msg=\"rate limiter unavailable\" err=%v", limitErr)
		} else if count > s.cfg.PayRateLimitPerMinute {
			s.recordFailure("pay_order", ErrRateLimited)
			return nil, ErrRateLimited
		}
	}

	started := s.now()
	var order *domain.Order
	err = s.withSettleRetry(ctx, "pay_order", func() error {
		var err error
		order, err = s.repo.SettleOrderPayment(ctx, id, payerAccountID, s.now())
		return err
	})
	if err != nil {
		s.recordFailure("pay_order", err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersPaid.Inc()
		s.metrics.SettlementSeconds.WithLabelValues("pay_order").Observe(s.now().Sub(started).Seconds())
	}
	s.publishOrderEvent(ctx, "payment.order.paid", order, order.Price)
	log.Printf("level=info component=service op=pay_order outcome=ok payment_id=%s payer_account_id=%s amount=%d", order.PaymentID, payerAccountID, order.Price)
	return order, nil
}

// RefundOrder executes the paid -> refunded transition. A partial refund is
// still terminal; the order never returns to the paid state.
func (s *Service) RefundOrder(ctx context.Context, paymentID string, amount int64) (*domain.RefundResult, error) {
	id, err := uuid.Parse(strings.TrimSpace(paymentID))
	if err != nil {
		s.recordFailure("refund_order", store.ErrOrderNotFound)
		return nil, store.ErrOrderNotFound
	}

	// The price is immutable, so the amount ceiling can be validated against a
	// plain read before entering the settlement transaction.
	order, err := s.repo.FindOrderByPaymentID(ctx, id)
	if err != nil {
		s.recordFailure("refund_order", err)
		return nil, err
	}
	if amount <= 0 {
		s.recordFailure("refund_order", ErrInvalidAmount)
		return nil, ErrInvalidAmount
	}
	if amount > order.Price {
		s.recordFailure("refund_order", ErrRefundExceedsPrice)
		return nil, ErrRefundExceedsPrice
	}

	started := s.now()
	var result *domain.RefundResult
	err = s.withSettleRetry(ctx, "refund_order", func() error {
		var err error
		result, err = s.repo.SettleOrderRefund(ctx, id, amount)
		return err
	})
	if err != nil {
		s.recordFailure("refund_order", err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersRefunded.Inc()
		s.metrics.SettlementSeconds.WithLabelValues("refund_order").Observe(s.now().Sub(started).Seconds())
	}
	s.publishOrderEvent(ctx, "payment.order.refunded", result.Order, amount)
	log.Printf("level=info component=service op=refund_order outcome=ok payment_id=%s amount=%d", result.Order.PaymentID, amount)
	return result, nil
}

// ListOrders returns the caller's orders as payer, newest payment first.
func (s *Service) ListOrders(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]domain.OrderSummary, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.cfg.DefaultPageSize
	}
	if pageSize > s.cfg.MaxPageSize {
		pageSize = s.cfg.MaxPageSize
	}

	orders, err := s.repo.ListOrdersByPayer(ctx, accountID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.OrderSummary, 0, len(orders))
	for _, order := range orders {
		summaries = append(summaries, domain.SummarizeOrder(order))
	}
	return summaries, nil
}

// withSettleRetry retries transient transaction failures a bounded number of
// times, then reports a conflict to the caller.
func (s *Service) withSettleRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.cfg.SettleRetryAttempts; attempt++ {
		err = fn()
		if err == nil || !store.IsRetryableTxError(err) {
			return err
		}
		log.Printf("level=warn component=service op=%s msg=\"transaction conflict; retrying\" attempt=%d err=%v", op, attempt, err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: retries exhausted: %v", store.ErrConflict, err)
}

func (s *Service) publishOrderEvent(ctx context.Context, routingKey string, order *domain.Order, amount int64) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.OrderEvent{
		PaymentID:      order.PaymentID,
		Stamp:          order.Stamp,
		State:          string(order.State),
		Amount:         amount,
		PayerAccountID: order.PayerAccountID,
		PayeeAccountID: order.PayeeAccountID,
		Timestamp:      s.now(),
	}
	if err := s.eventProducer.Publish(ctx, s.cfg.EventExchange, routingKey, event); err != nil {
		log.Printf("level=warn component=service msg=\"order event publish failed\" routing_key=%s payment_id=%s err=%v", routingKey, order.PaymentID, err)
	}
}

func (s *Service) recordFailure(op string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.OperationFailures.WithLabelValues(op, failureReason(err)).Inc()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrRefundExceedsPrice):
		return "invalid_amount"
	case errors.Is(err, store.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, store.ErrInvalidOrderState):
		return "invalid_state"
	case errors.Is(err, store.ErrOrderNotFound), errors.Is(err, store.ErrAccountNotFound), errors.Is(err, store.ErrUserNotFound):
		return "not_found"
	case errors.Is(err, store.ErrDuplicateIdentity), errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal"
	}
}
