/**
 * @description
 * Identity and account models for the payment service. A User is the
 * registered login identity; an Account is the balance-holding ledger entity
 * created alongside it. All balance mutation flows through the order
 * settlement and deposit operations in the store layer, never through direct
 * field assignment.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered identity. The password hash never leaves the service.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Account holds a user's balance in cents. Created once at registration with
// a zero balance and never deleted.
type Account struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Balance     int64     `json:"balance"` // in cents
	CreatedAt   time.Time `json:"created_at"`
}

// RegisterRequest is the DTO for the registration endpoint.
type RegisterRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest is the DTO for the authentication endpoint. "ID" is the
// username chosen at registration.
type LoginRequest struct {
	ID       string `json:"ID"`
	Password string `json:"password"`
}

// DepositRequest is the DTO for the deposit endpoint. Amount is a decimal
// string with two fraction digits.
type DepositRequest struct {
	Amount string `json:"amount"`
}
