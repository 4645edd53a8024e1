package flashsalev1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Идентификаторы передаются числами Struct (float64), поэтому значения
// выше 2^53 не поддерживаются.

type IssueCouponRequest struct {
	UserID   int64 `json:"userId"`
	CouponID int64 `json:"couponId"`
}

type IssueCouponResponse struct {
	State         string `json:"state"`
	Position      int64  `json:"position"`
	AlreadyQueued bool   `json:"alreadyQueued,omitempty"`
}

type IssueStatusRequest struct {
	UserID   int64 `json:"userId"`
	CouponID int64 `json:"couponId"`
}

type IssueStatusResponse struct {
	State    string `json:"state"`
	Position int64  `json:"position,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type OrderLine struct {
	ProductID      int64  `json:"productId"`
	ProductName    string `json:"productName,omitempty"`
	Quantity       int32  `json:"quantity"`
	UnitPriceMinor int64  `json:"unitPriceMinor"`
}

type OrderRequest struct {
	UserID       int64       `json:"userId"`
	Items        []OrderLine `json:"items"`
	UserCouponID *int64      `json:"userCouponId,omitempty"`
}

type PlaceOrderResponse struct {
	SagaID          string `json:"sagaId"`
	OrderID         string `json:"orderId"`
	Status          string `json:"status"`
	TotalMinor      int64  `json:"totalMinor"`
	DiscountMinor   int64  `json:"discountMinor"`
	DiscountedMinor int64  `json:"discountedMinor"`
}

type SubmitOrderResponse struct {
	SagaID string `json:"sagaId"`
}

type SagaStatusRequest struct {
	SagaID string `json:"sagaId"`
}

type JournalEntry struct {
	Type     string `json:"type"`
	Step     string `json:"step,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Occurred string `json:"occurred"`
}

type SagaStatusResponse struct {
	SagaID     string         `json:"sagaId"`
	OrderID    string         `json:"orderId,omitempty"`
	Phase      string         `json:"phase"`
	FailedStep string         `json:"failedStep,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Entries    []JournalEntry `json:"entries,omitempty"`
}

type TopProductsRequest struct {
	Limit int32 `json:"limit"`
}

type RankedProduct struct {
	ProductID int64 `json:"productId"`
	Sales     int64 `json:"sales"`
}

type TopProductsResponse struct {
	Products []RankedProduct `json:"products"`
}

type BalanceRequest struct {
	UserID int64 `json:"userId"`
}

type ChargeBalanceRequest struct {
	UserID      int64 `json:"userId"`
	AmountMinor int64 `json:"amountMinor"`
}

type BalanceResponse struct {
	UserID      int64  `json:"userId"`
	AmountMinor int64  `json:"amountMinor"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type UserCouponsRequest struct {
	UserID int64 `json:"userId"`
}

type UserCoupon struct {
	ID            int64  `json:"id"`
	CouponID      int64  `json:"couponId"`
	DiscountMinor int64  `json:"discountMinor"`
	Status        string `json:"status"`
	IssuedAt      string `json:"issuedAt"`
	UsedAt        string `json:"usedAt,omitempty"`
}

type UserCouponsResponse struct {
	Coupons []UserCoupon `json:"coupons"`
}

// Encode переводит типизированное сообщение в Struct.
func Encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("build struct: %w", err)
	}
	return out, nil
}

// Decode заполняет типизированное сообщение из Struct. Пустой Struct допустим.
func Decode(in *structpb.Struct, v any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	return nil
}
