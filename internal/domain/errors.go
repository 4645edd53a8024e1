package domain

import "errors"

var (
	// Ошибка некорректного идентификатора пользователя (<= 0).
	ErrUserIDInvalid = errors.New("user_id must be greater than zero")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка некорректного идентификатора товара.
	ErrProductIDInvalid = errors.New("product_id must be greater than zero")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции не положительная.
	ErrItemPriceInvalid = errors.New("item unit price must be greater than zero")

	// ErrCouponNotFound возвращается, если купона нет в хранилище.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponNotIssuable — купон неактивен, распродан или вне окна действия.
	ErrCouponNotIssuable = errors.New("coupon cannot be issued")
	// ErrCouponAlreadyIssued — пользователь уже получил этот купон.
	ErrCouponAlreadyIssued = errors.New("coupon already issued to user")
	// ErrCouponExhausted — лимит выдачи купона исчерпан.
	ErrCouponExhausted = errors.New("coupon issuance limit exhausted")
	// ErrAlreadyQueued — пользователь уже стоит в очереди за купоном.
	ErrAlreadyQueued = errors.New("user already queued for coupon")
	// ErrUserCouponNotFound возвращается, если пользовательского купона нет.
	ErrUserCouponNotFound = errors.New("user coupon not found")
	// ErrUserCouponNotAvailable — купон уже использован или просрочен.
	ErrUserCouponNotAvailable = errors.New("user coupon is not available")
	// ErrUserCouponOwnership — купон принадлежит другому пользователю.
	ErrUserCouponOwnership = errors.New("user coupon belongs to another user")

	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock — на складе недостаточно товара.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPriceChanged — цена товара отличается от цены, которую видел клиент.
	ErrPriceChanged = errors.New("product price changed")
	// ErrBalanceNotFound — у пользователя нет счёта.
	ErrBalanceNotFound = errors.New("balance not found")
	// ErrInsufficientBalance — недостаточно средств на счёте.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrAmountInvalid — сумма операции должна быть положительной.
	ErrAmountInvalid = errors.New("amount must be greater than zero")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists — заказ с таким ID уже сохранён.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrSagaNotFound — по идентификатору саги нет записей журнала.
	ErrSagaNotFound = errors.New("saga not found")

	// ErrCoordinationUnavailable — временная ошибка быстрого хранилища координации.
	ErrCoordinationUnavailable = errors.New("coordination store unavailable")
	// ErrLockNotAcquired — не удалось получить блокировку за отведённое время.
	ErrLockNotAcquired = errors.New("lock not acquired within wait timeout")
	// ErrProcessingTimeout — ответ на событие не пришёл до дедлайна; запрос можно повторить.
	ErrProcessingTimeout = errors.New("processing timed out")
	// ErrUnexpectedResponse — по correlation id пришло событие неожиданного типа.
	ErrUnexpectedResponse = errors.New("unexpected response event")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsRejection сообщает, является ли ошибка бизнес-отказом, который не имеет смысла повторять.
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrCouponAlreadyIssued),
		errors.Is(err, ErrCouponExhausted),
		errors.Is(err, ErrCouponNotIssuable),
		errors.Is(err, ErrCouponNotFound),
		errors.Is(err, ErrUserCouponNotAvailable),
		errors.Is(err, ErrUserCouponNotFound),
		errors.Is(err, ErrUserCouponOwnership),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrPriceChanged),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrBalanceNotFound):
		return true
	}
	return IsValidation(err)
}

// IsValidation проверяет, что ошибка относится к валидации входного запроса.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrUserIDInvalid),
		errors.Is(err, ErrItemsRequired),
		errors.Is(err, ErrProductIDInvalid),
		errors.Is(err, ErrItemQtyInvalid),
		errors.Is(err, ErrItemPriceInvalid),
		errors.Is(err, ErrAmountInvalid):
		return true
	}
	return false
}

// IsRetryable — временные ошибки инфраструктуры, которые можно повторить.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrProcessingTimeout) ||
		errors.Is(err, ErrCoordinationUnavailable) ||
		errors.Is(err, ErrLockNotAcquired)
}
