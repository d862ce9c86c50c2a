/**
 * @description
 * This file contains the HTTP handlers for the payment service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the business
 * logic layer.
 *
 * Error mapping follows the service's error taxonomy: malformed or
 * out-of-range amounts map to 400, unknown references to 404, wrong-state
 * transitions and conflicts to 409, and insufficient funds to 402.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Rouple12138/Web-service-CW2/internal/app"
	"github.com/Rouple12138/Web-service-CW2/internal/domain"
	"github.com/Rouple12138/Web-service-CW2/internal/store"
)

// PaymentHandlers holds the application service that handlers will use.
type PaymentHandlers struct {
	service *app.Service
}

// NewPaymentHandlers creates a new instance of PaymentHandlers.
func NewPaymentHandlers(service *app.Service) *PaymentHandlers {
	return &PaymentHandlers{service: service}
}

func (h *PaymentHandlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *PaymentHandlers) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}

// callerAccount resolves the authenticated user to their ledger account.
func (h *PaymentHandlers) callerAccount(w http.ResponseWriter, r *http.Request) (*domain.Account, bool) {
	userID, ok := GetAuthedUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get user ID from context")
		return nil, false
	}
	account, err := h.service.ResolveAccount(r.Context(), userID)
	if err != nil {
		log.Printf("level=warn component=api msg=\"account resolution failed\" user_id=%s err=%v", userID, err)
		h.writeError(w, http.StatusUnauthorized, "Account not found for authenticated user")
		return nil, false
	}
	return account, true
}

// RegisterHandler creates a new identity and its zero-balance account.
func (h *PaymentHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := h.service.Register(r.Context(), req.Name, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateIdentity) {
			h.writeError(w, http.StatusConflict, "Username has been taken.")
			return
		}
		if errors.Is(err, app.ErrInvalidRegistration) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("level=error component=api endpoint=register err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{
		"accountID": account.ID.String(),
		"name":      account.DisplayName,
	})
}

// LoginHandler verifies a credential and returns a session token.
func (h *PaymentHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	token, err := h.service.Login(r.Context(), req.ID, req.Password)
	if err != nil {
		if errors.Is(err, app.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, "Invalid ID/password.")
			return
		}
		log.Printf("level=error component=api endpoint=login err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// CreateOrderHandler allocates a new payable order for the caller as payee.
func (h *PaymentHandlers) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.callerAccount(w, r)
	if !ok {
		return
	}

	var req domain.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	price, err := domain.ParseAmount(req.Price)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Price must be a decimal with at most two fraction digits.")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), account.ID, req.MerchantOrderID, price)
	if err != nil {
		if errors.Is(err, app.ErrInvalidAmount) {
			h.writeError(w, http.StatusBadRequest, "Price must be positive.")
			return
		}
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found.")
			return
		}
		log.Printf("level=error component=api endpoint=create_order account_id=%s err=%v", account.ID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{
		"payment_id": order.PaymentID.String(),
		"stamp":      order.Stamp.String(),
	})
}

// PayOrderHandler settles an order with the caller as payer.
func (h *PaymentHandlers) PayOrderHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.callerAccount(w, r)
	if !ok {
		return
	}

	var req domain.PayOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.service.PayOrder(r.Context(), account.ID, req.PaymentID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "Order not found.")
		case errors.Is(err, store.ErrInvalidOrderState):
			h.writeError(w, http.StatusConflict, "Order has already been paid or refunded.")
		case errors.Is(err, store.ErrInsufficientFunds):
			h.writeError(w, http.StatusPaymentRequired, "Insufficient balance.")
		case errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Payee account not found.")
		case errors.Is(err, store.ErrConflict):
			h.writeError(w, http.StatusConflict, "Payment conflicted with a concurrent operation; try again.")
		case errors.Is(err, app.ErrRateLimited):
			h.writeError(w, http.StatusTooManyRequests, "Too many payment attempts; slow down.")
		default:
			log.Printf("level=error component=api endpoint=pay_order account_id=%s err=%v", account.ID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"stamp": order.Stamp.String()})
}

// RefundOrderHandler refunds a paid order, fully or partially.
func (h *PaymentHandlers) RefundOrderHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.callerAccount(w, r); !ok {
		return
	}

	var req domain.RefundOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amount, err := domain.ParseAmount(req.Price)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Refund amount must be a decimal with at most two fraction digits.")
		return
	}

	result, err := h.service.RefundOrder(r.Context(), req.PaymentID, amount)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "Order not found.")
		case errors.Is(err, app.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, "Refund amount must be positive.")
		case errors.Is(err, app.ErrRefundExceedsPrice):
			h.writeError(w, http.StatusBadRequest, "Refund amount is greater than original order price.")
		case errors.Is(err, store.ErrInvalidOrderState):
			h.writeError(w, http.StatusConflict, "Order is not in a refundable state.")
		case errors.Is(err, store.ErrInsufficientFunds):
			h.writeError(w, http.StatusPaymentRequired, "Insufficient balance for refund.")
		case errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Account involved in the order no longer exists.")
		case errors.Is(err, store.ErrConflict):
			h.writeError(w, http.StatusConflict, "Refund conflicted with a concurrent operation; try again.")
		default:
			log.Printf("level=error component=api endpoint=refund_order err=%v", err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"message":       "Refund successful",
		"payer_balance": domain.FormatAmount(result.PayerBalance),
		"payee_balance": domain.FormatAmount(result.PayeeBalance),
	})
}

// ListOrdersHandler returns the caller's orders as payer, paginated.
func (h *PaymentHandlers) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.callerAccount(w, r)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	summaries, err := h.service.ListOrders(r.Context(), account.ID, page, pageSize)
	if err != nil {
		log.Printf("level=error component=api endpoint=list_orders account_id=%s err=%v", account.ID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": summaries})
}

// GetBalanceHandler returns the balance of the account in the path.
func (h *PaymentHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.callerAccount(w, r); !ok {
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Account not found.")
		return
	}

	balance, err := h.service.GetBalance(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found.")
			return
		}
		log.Printf("level=error component=api endpoint=get_balance account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"balance": domain.FormatAmount(balance)})
}

// DepositHandler credits the caller's own account.
func (h *PaymentHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	account, ok := h.callerAccount(w, r)
	if !ok {
		return
	}

	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Account not found.")
		return
	}

	var req domain.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Amount must be a decimal with at most two fraction digits.")
		return
	}

	balance, err := h.service.Deposit(r.Context(), account.ID, accountID, amount)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, "Amount must be positive.")
		case errors.Is(err, store.ErrAccountNotFound):
			h.writeError(w, http.StatusNotFound, "Account not found.")
		case errors.Is(err, store.ErrConflict):
			h.writeError(w, http.StatusConflict, "Deposit conflicted with a concurrent operation; try again.")
		default:
			log.Printf("level=error component=api endpoint=deposit account_id=%s err=%v", accountID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"balance": domain.FormatAmount(balance)})
}
