package kafka

import (
	"fmt"
	"time"
)

// Топики и группы потребителей.
const (
	TopicCouponIssue          = "coupon-issue-events"
	TopicOrderCompleted       = "order-completed"
	TopicProductRanking       = "product-ranking"
	TopicDataPlatformTransfer = "data-platform-transfer"
	TopicDeadLetterQueue      = "flashsale.dlq"

	GroupCouponIssue    = "coupon-issue-group"
	GroupProductRanking = "product-ranking-group"
	GroupDataPlatform   = "data-platform-group"
)

// Заголовки для повторов и DLQ.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// CouponIssueMessage: заявка на выдачу, переданная асинхронному исполнителю.
type CouponIssueMessage struct {
	CouponID    int64     `json:"couponId"`
	UserID      int64     `json:"userId"`
	RequestedAt time.Time `json:"requestedAt"`
}

// DeadLetter: конверт сообщения, которое не удалось обработать.
type DeadLetter struct {
	OriginalTopic     string    `json:"originalTopic"`
	OriginalPartition int32     `json:"originalPartition"`
	OriginalOffset    int64     `json:"originalOffset"`
	OriginalKey       string    `json:"originalKey"`
	OriginalValue     string    `json:"originalValue"`
	ErrorMessage      string    `json:"errorMessage"`
	RetryCount        int       `json:"retryCount"`
	FailedAt          time.Time `json:"failedAt"`
}

// CouponIssueKey держит заявки одного пользователя на один купон в одной партиции.
func CouponIssueKey(couponID, userID int64) string {
	return fmt.Sprintf("coupon-%d-user-%d", couponID, userID)
}
