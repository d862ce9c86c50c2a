/**
 * @description
 * Order lifecycle models. An Order is a payable unit with a fixed price and a
 * three-state lifecycle: created -> paid -> refunded. The payment id is the
 * external handle used to pay or refund; the stamp is a secondary correlation
 * identifier returned to callers.
 *
 * @notes
 * - PayerAccountID stays nil until the order is paid.
 * - PayeeAccountID is a weak reference: the order survives even if the payee
 *   account row disappears, so it is nullable on read.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderState enumerates the order lifecycle.
type OrderState string

const (
	OrderStateCreated  OrderState = "created"
	OrderStatePaid     OrderState = "paid"
	OrderStateRefunded OrderState = "refunded"
)

// Order maps directly to the `orders` table.
type Order struct {
	ID             uuid.UUID  `json:"id"`
	PaymentID      uuid.UUID  `json:"payment_id"`
	Stamp          uuid.UUID  `json:"stamp"`
	MerchantRef    string     `json:"merchant_order_id"`
	Price          int64      `json:"price"` // in cents, immutable after creation
	PayerAccountID *uuid.UUID `json:"payer_account_id,omitempty"`
	PayeeAccountID *uuid.UUID `json:"payee_account_id,omitempty"`
	State          OrderState `json:"state"`
	CreatedAt      time.Time  `json:"created_at"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
}

// RefundResult carries the post-refund balances of both parties, which the
// refund endpoint reports back to the caller.
type RefundResult struct {
	Order        *Order
	PayerBalance int64
	PayeeBalance int64
}

// CreateOrderRequest is the DTO for order creation. Price is a decimal string.
type CreateOrderRequest struct {
	MerchantOrderID string `json:"merchant_order_id"`
	Price           string `json:"price"`
}

// PayOrderRequest is the DTO for paying an order by its payment id.
type PayOrderRequest struct {
	PaymentID string `json:"payment_id"`
}

// RefundOrderRequest is the DTO for refunding a paid order. Price is the
// refund amount as a decimal string; it may be less than the order price.
type RefundOrderRequest struct {
	PaymentID string `json:"payment_id"`
	Price     string `json:"price"`
}

// OrderSummary is the listing projection returned by the order list endpoint.
type OrderSummary struct {
	MerchantOrderID string     `json:"merchant_order_id"`
	Price           string     `json:"price"`
	PaymentID       uuid.UUID  `json:"payment_id"`
	Stamp           uuid.UUID  `json:"stamp"`
	State           OrderState `json:"state"`
	OrderTime       time.Time  `json:"order_time"`
	PaymentTime     *time.Time `json:"payment_time,omitempty"`
}

// SummarizeOrder converts an order into its listing projection.
func SummarizeOrder(o Order) OrderSummary {
	return OrderSummary{
		MerchantOrderID: o.MerchantRef,
		Price:           FormatAmount(o.Price),
		PaymentID:       o.PaymentID,
		Stamp:           o.Stamp,
		State:           o.State,
		OrderTime:       o.CreatedAt,
		PaymentTime:     o.PaidAt,
	}
}
