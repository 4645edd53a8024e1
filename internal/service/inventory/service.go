package inventory

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
)

// Service управляет остатками через условные обновления репозитория.
type Service struct {
	repo   domain.ProductRepository
	logger *log.Entry
}

// NewService создаёт складской сервис.
func NewService(repo domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "inventory")
	}
	return &Service{repo: repo, logger: logger}
}

// Deduct списывает qty единиц товара, если их хватает.
func (s *Service) Deduct(ctx context.Context, productID, qty int64) (domain.Product, error) {
	product, err := s.repo.DeductStock(ctx, productID, qty)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.WithFields(log.Fields{
		"product_id": productID,
		"quantity":   qty,
		"stock_left": product.Stock,
	}).Debug("stock deducted")
	return product, nil
}

// Restore возвращает qty единиц на склад.
func (s *Service) Restore(ctx context.Context, productID, qty int64) error {
	_, err := s.repo.RestoreStock(ctx, productID, qty)
	return err
}

// Product возвращает товар.
func (s *Service) Product(ctx context.Context, productID int64) (domain.Product, error) {
	return s.repo.Get(ctx, productID)
}
