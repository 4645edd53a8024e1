package domain

import "time"

// CouponStatus описывает жизненный цикл купона.
type CouponStatus string

const (
	CouponStatusActive   CouponStatus = "ACTIVE"
	CouponStatusSoldOut  CouponStatus = "SOLD_OUT"
	CouponStatusExpired  CouponStatus = "EXPIRED"
	CouponStatusInactive CouponStatus = "INACTIVE"
)

// Coupon: лимитированный промо-купон. IssuedCount меняется только авторитетным путём выдачи.
type Coupon struct {
	ID            int64
	Name          string
	DiscountMinor int64
	MaxIssuance   int64
	IssuedCount   int64
	ValidFrom     time.Time
	ValidTo       time.Time
	Status        CouponStatus
}

// CanIssue проверяет, можно ли выдать ещё один экземпляр купона в момент now.
func (c Coupon) CanIssue(now time.Time) bool {
	if c.Status != CouponStatusActive {
		return false
	}
	if c.IssuedCount >= c.MaxIssuance {
		return false
	}
	if !c.ValidFrom.IsZero() && now.Before(c.ValidFrom) {
		return false
	}
	if !c.ValidTo.IsZero() && now.After(c.ValidTo) {
		return false
	}
	return true
}

// Remaining возвращает остаток купонов по авторитетному счётчику.
func (c Coupon) Remaining() int64 {
	if c.IssuedCount >= c.MaxIssuance {
		return 0
	}
	return c.MaxIssuance - c.IssuedCount
}

// UserCouponStatus описывает состояние выданного купона.
type UserCouponStatus string

const (
	UserCouponStatusAvailable UserCouponStatus = "AVAILABLE"
	UserCouponStatusUsed      UserCouponStatus = "USED"
	UserCouponStatusExpired   UserCouponStatus = "EXPIRED"
)

// UserCoupon: купон, выданный конкретному пользователю. Никогда не удаляется.
type UserCoupon struct {
	ID            int64
	UserID        int64
	CouponID      int64
	DiscountMinor int64
	Status        UserCouponStatus
	IssuedAt      time.Time
	UsedAt        *time.Time
}

// NewUserCoupon фиксирует скидку купона на момент выдачи.
func NewUserCoupon(userID int64, coupon Coupon, now time.Time) UserCoupon {
	return UserCoupon{
		UserID:        userID,
		CouponID:      coupon.ID,
		DiscountMinor: coupon.DiscountMinor,
		Status:        UserCouponStatusAvailable,
		IssuedAt:      now,
	}
}

// Use переводит купон в USED. UsedAt выставляется тогда и только тогда, когда статус USED.
func (uc *UserCoupon) Use(userID int64, now time.Time) error {
	if uc.UserID != userID {
		return ErrUserCouponOwnership
	}
	if uc.Status != UserCouponStatusAvailable {
		return ErrUserCouponNotAvailable
	}
	used := now
	uc.Status = UserCouponStatusUsed
	uc.UsedAt = &used
	return nil
}

// Restore возвращает использованный купон в AVAILABLE. Повторный вызов ничего не меняет.
func (uc *UserCoupon) Restore() bool {
	if uc.Status != UserCouponStatusUsed {
		return false
	}
	uc.Status = UserCouponStatusAvailable
	uc.UsedAt = nil
	return true
}

// AdmissionResult: ответ быстрого шлюза допуска.
type AdmissionResult string

const (
	AdmissionAdmitted      AdmissionResult = "ADMITTED"
	AdmissionAlreadyIssued AdmissionResult = "ALREADY_ISSUED"
	AdmissionExhausted     AdmissionResult = "EXHAUSTED"
	// AdmissionIndeterminate: хранилище недоступно, нужен транзакционный путь.
	AdmissionIndeterminate AdmissionResult = "INDETERMINATE"
)

// QueueEntry: запись очереди ожидания. Порядок определяется EnqueuedAt.
type QueueEntry struct {
	CouponID   int64
	UserID     int64
	EnqueuedAt time.Time
}

// IssuanceResult: результат обработки заявки на купон.
// Pending отмечает заявку, переданную на асинхронную выдачу; терминальный результат его перезаписывает.
type IssuanceResult struct {
	CouponID    int64     `json:"couponId"`
	UserID      int64     `json:"userId"`
	Success     bool      `json:"success"`
	Pending     bool      `json:"pending,omitempty"`
	Message     string    `json:"message"`
	ProcessedAt time.Time `json:"processedAt"`
}

// IssueState: состояние заявки, видимое опрашивающему клиенту.
type IssueState string

const (
	IssueStateProcessing IssueState = "PROCESSING"
	IssueStateIssued     IssueState = "ISSUED"
	IssueStateRejected   IssueState = "REJECTED"
	IssueStateUnknown    IssueState = "UNKNOWN"
)

// IssueStatus: ответ поверхности опроса.
type IssueStatus struct {
	State    IssueState
	Position int64
	Reason   string
}
