package events

import "time"

// Типы сообщений transactional outbox. Совпадают с именами топиков Kafka.
const (
	OutboxOrderCompleted       = "order-completed"
	OutboxProductRanking       = "product-ranking"
	OutboxDataPlatformTransfer = "data-platform-transfer"
)

// Агрегаты outbox-сообщений.
const (
	AggregateOrder   = "order"
	AggregateProduct = "product"
)

// OrderCompletedPayload: содержимое сообщения order-completed.
type OrderCompletedPayload struct {
	SagaID          string    `json:"sagaId"`
	OrderID         string    `json:"orderId"`
	UserID          int64     `json:"userId"`
	TotalMinor      int64     `json:"totalMinor"`
	DiscountMinor   int64     `json:"discountMinor"`
	DiscountedMinor int64     `json:"discountedMinor"`
	UserCouponID    *int64    `json:"userCouponId,omitempty"`
	OrderedAt       time.Time `json:"orderedAt"`
}

// ProductRankingPayload: продажа одного товара для рейтинга.
type ProductRankingPayload struct {
	OrderID   string    `json:"orderId"`
	ProductID int64     `json:"productId"`
	Quantity  int32     `json:"quantity"`
	OrderedAt time.Time `json:"orderedAt"`
}

// DataPlatformItem: позиция заказа для аналитической платформы.
type DataPlatformItem struct {
	ProductID      int64  `json:"productId"`
	ProductName    string `json:"productName"`
	Quantity       int32  `json:"quantity"`
	UnitPriceMinor int64  `json:"unitPriceMinor"`
}

// DataPlatformPayload: заказ, передаваемый во внешнюю платформу данных.
type DataPlatformPayload struct {
	OrderID         string             `json:"orderId"`
	UserID          int64              `json:"userId"`
	Items           []DataPlatformItem `json:"items"`
	TotalMinor      int64              `json:"totalMinor"`
	DiscountedMinor int64              `json:"discountedMinor"`
	OrderedAt       time.Time          `json:"orderedAt"`
}
