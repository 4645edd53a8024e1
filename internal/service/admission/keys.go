package admission

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	issuedSetTTL  = 30 * 24 * time.Hour
	queueTTL      = 25 * time.Hour
	resultTTL     = 30 * time.Minute
	couponInfoTTL = 24 * time.Hour

	queueKeyPrefix  = "coupon:queue:"
	queueSeqSpan    = 1000
	queueKeyPattern = queueKeyPrefix + "*"
)

// IssuedKey: множество пользователей, допущенных шлюзом к купону.
func IssuedKey(couponID int64) string {
	return fmt.Sprintf("coupon:issued:%d", couponID)
}

// QueueKey: очередь ожидания купона (sorted set, score = время постановки в мс и номер заявки).
func QueueKey(couponID int64) string {
	return queueKeyPrefix + strconv.FormatInt(couponID, 10)
}

// queueSeqKey: счётчик заявок купона; вне шаблона queueKeyPattern.
func queueSeqKey(couponID int64) string {
	return fmt.Sprintf("coupon:queue-seq:%d", couponID)
}

// ResultKey: терминальный результат заявки пользователя.
func ResultKey(couponID, userID int64) string {
	return fmt.Sprintf("coupon:result:%d:%d", couponID, userID)
}

// InfoKey: кеш метаданных купона.
func InfoKey(couponID int64) string {
	return fmt.Sprintf("coupon:info:%d", couponID)
}

func couponFromQueueKey(key string) (int64, bool) {
	raw, ok := strings.CutPrefix(key, queueKeyPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func member(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
