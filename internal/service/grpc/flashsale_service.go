package grpcsvc

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/flashsale/internal/domain"
	"github.com/vladislavdragonenkov/flashsale/internal/service/admission"
	"github.com/vladislavdragonenkov/flashsale/internal/service/ranking"
	"github.com/vladislavdragonenkov/flashsale/internal/service/saga"
	flashsalev1 "github.com/vladislavdragonenkov/flashsale/proto/flashsale/v1"
)

const (
	defaultTopProductsLimit = 10
	maxTopProductsLimit     = 100
)

// Admission заявки на купоны и опрос их результата.
type Admission interface {
	RequestIssue(ctx context.Context, userID, couponID int64) (admission.Ticket, error)
	CheckResult(ctx context.Context, couponID, userID int64) (domain.IssueStatus, error)
}

// OrderExecutor синхронная сага под блокировкой пользователя.
type OrderExecutor interface {
	Execute(ctx context.Context, req domain.OrderRequest) (saga.Result, error)
}

// SagaSubmitter асинхронная сага на событиях.
type SagaSubmitter interface {
	Submit(ctx context.Context, req domain.OrderRequest) (string, error)
	Status(ctx context.Context, sagaID string) (saga.Status, error)
}

// Ranking рейтинг товаров за три дня.
type Ranking interface {
	TopProducts(ctx context.Context, limit int) ([]ranking.Entry, error)
}

// Balances счета пользователей.
type Balances interface {
	Get(ctx context.Context, userID int64) (domain.Balance, error)
	Charge(ctx context.Context, userID, amountMinor int64) (domain.Balance, error)
}

// CouponLister выданные пользователю купоны.
type CouponLister interface {
	ListUserCoupons(ctx context.Context, userID int64) ([]domain.UserCoupon, error)
}

// FlashSaleService реализует gRPC API поверх сервисов выдачи купонов, саг и рейтинга.
type FlashSaleService struct {
	flashsalev1.UnimplementedFlashSaleServiceServer

	admission Admission
	orders    OrderExecutor
	sagas     SagaSubmitter
	ranking   Ranking
	balances  Balances
	coupons   CouponLister
	logger    *log.Entry
}

func NewFlashSaleService(adm Admission, orders OrderExecutor, sagas SagaSubmitter, rank Ranking, logger *log.Entry) *FlashSaleService {
	if logger == nil {
		logger = log.WithField("component", "grpc-flashsale")
	}
	return &FlashSaleService{
		admission: adm,
		orders:    orders,
		sagas:     sagas,
		ranking:   rank,
		logger:    logger,
	}
}

// WithAccounts подключает счета и список купонов; без них эти методы отвечают Unimplemented.
func (s *FlashSaleService) WithAccounts(balances Balances, coupons CouponLister) *FlashSaleService {
	s.balances = balances
	s.coupons = coupons
	return s
}

func (s *FlashSaleService) IssueCoupon(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req flashsalev1.IssueCouponRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.CouponID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "couponId must be greater than zero")
	}

	ticket, err := s.admission.RequestIssue(ctx, req.UserID, req.CouponID)
	if err != nil {
		s.logFailure(err, "issue coupon request failed", log.Fields{"coupon_id": req.CouponID, "user_id": req.UserID})
		return nil, toStatus(err)
	}
	return encode(flashsalev1.IssueCouponResponse{
		State:         string(ticket.State),
		Position:      ticket.Position,
		AlreadyQueued: ticket.AlreadyQueued,
	})
}

func (s *FlashSaleService) GetIssueStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req flashsalev1.IssueStatusRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.UserID <= 0 || req.CouponID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "userId and couponId must be greater than zero")
	}

	st, err := s.admission.CheckResult(ctx, req.CouponID, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(flashsalev1.IssueStatusResponse{
		State:    string(st.State),
		Position: st.Position,
		Reason:   st.Reason,
	})
}

func (s *FlashSaleService) PlaceOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req flashsalev1.OrderRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	result, err := s.orders.Execute(ctx, toDomainRequest(req))
	if err != nil {
		fields := log.Fields{"saga_id": result.SagaID, "user_id": req.UserID, "step": result.FailedStep}
		s.logFailure(err, "place order failed", fields)
		if result.FailedStep != "" && result.FailedStep != domain.SagaStepValidate {
			return nil, status.Errorf(codeOf(err), "saga %s failed at %s: %v", result.SagaID, result.FailedStep, err)
		}
		return nil, toStatus(err)
	}

	order := result.Order
	return encode(flashsalev1.PlaceOrderResponse{
		SagaID:          result.SagaID,
		OrderID:         order.ID,
		Status:          string(order.Status),
		TotalMinor:      order.TotalMinor,
		DiscountMinor:   order.DiscountMinor,
		DiscountedMinor: order.DiscountedMinor,
	})
}

func (s *FlashSaleService) SubmitOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req flashsalev1.OrderRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	domainReq := toDomainRequest(req)
	if err := domainReq.Validate(); err != nil {
		return nil, toStatus(err)
	}

	sagaID, err := s.sagas.Submit(ctx, domainReq)
	if err != nil {
		s.logFailure(err, "submit order failed", log.Fields{"user_id": req.UserID})
		return nil, toStatus(err)
	}
	return encode(flashsalev1.SubmitOrderResponse{SagaID: sagaID})
}

func (s *FlashSaleService) GetSagaStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req flashsalev1.SagaStatusRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.SagaID == "" {
		return nil, status.Error(codes.InvalidArgument, "sagaId is required")
	}

	st, err := s.sagas.Status(ctx, req.SagaID)
	if err != nil {
		return nil, toStatus(err)
	}

	entries := make([]flashsalev1.JournalEntry, 0, len(st.Entries))
	for _, entry := range st.Entries {
		entries = append(entries, flashsalev1.JournalEntry{
			Type:     entry.Type,
			Step:     string(entry.Step),
			Reason:   entry.Reason,
			Occurred: entry.Occurred.UTC().Format(time.RFC3339Nano),
		})
	}
	return encode(flashsalev1.SagaStatusResponse{
		SagaID:     st.SagaID,
		OrderID:    st.OrderID,
		Phase:      string(st.Phase),
		FailedStep: string(st.FailedStep),
		Reason:     st.Reason,
		Entries:    entries,
	})
}

func (s *FlashSaleService) TopProducts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req flashsalev1.TopProductsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	limit := int(req.Limit)
	switch {
	case limit <= 0:
		limit = defaultTopProductsLimit
	case limit > maxTopProductsLimit:
		limit = maxTopProductsLimit
	}

	top, err := s.ranking.TopProducts(ctx, limit)
	if err != nil {
		s.logFailure(err, "top products failed", log.Fields{"limit": limit})
		return nil, toStatus(err)
	}
	products := make([]flashsalev1.RankedProduct, 0, len(top))
	for _, entry := range top {
		products = append(products, flashsalev1.RankedProduct{ProductID: entry.ProductID, Sales: entry.Sales})
	}
	return encode(flashsalev1.TopProductsResponse{Products: products})
}

func (s *FlashSaleService) GetBalance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.balances == nil {
		return s.UnimplementedFlashSaleServiceServer.GetBalance(ctx, in)
	}
	var req flashsalev1.BalanceRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.UserID <= 0 {
		return nil, toStatus(domain.ErrUserIDInvalid)
	}

	balance, err := s.balances.Get(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(balanceResponse(balance))
}

func (s *FlashSaleService) ChargeBalance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.balances == nil {
		return s.UnimplementedFlashSaleServiceServer.ChargeBalance(ctx, in)
	}
	var req flashsalev1.ChargeBalanceRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}

	balance, err := s.balances.Charge(ctx, req.UserID, req.AmountMinor)
	if err != nil {
		s.logFailure(err, "charge balance failed", log.Fields{"user_id": req.UserID, "amount": req.AmountMinor})
		return nil, toStatus(err)
	}
	s.logger.WithFields(log.Fields{"user_id": req.UserID, "amount": req.AmountMinor}).Info("balance charged")
	return encode(balanceResponse(balance))
}

func (s *FlashSaleService) ListUserCoupons(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.coupons == nil {
		return s.UnimplementedFlashSaleServiceServer.ListUserCoupons(ctx, in)
	}
	var req flashsalev1.UserCouponsRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.UserID <= 0 {
		return nil, toStatus(domain.ErrUserIDInvalid)
	}

	list, err := s.coupons.ListUserCoupons(ctx, req.UserID)
	if err != nil {
		return nil, toStatus(err)
	}
	coupons := make([]flashsalev1.UserCoupon, 0, len(list))
	for _, uc := range list {
		item := flashsalev1.UserCoupon{
			ID:            uc.ID,
			CouponID:      uc.CouponID,
			DiscountMinor: uc.DiscountMinor,
			Status:        string(uc.Status),
			IssuedAt:      uc.IssuedAt.UTC().Format(time.RFC3339Nano),
		}
		if uc.UsedAt != nil {
			item.UsedAt = uc.UsedAt.UTC().Format(time.RFC3339Nano)
		}
		coupons = append(coupons, item)
	}
	return encode(flashsalev1.UserCouponsResponse{Coupons: coupons})
}

func (s *FlashSaleService) logFailure(err error, msg string, fields log.Fields) {
	entry := s.logger.WithError(err).WithFields(fields)
	if domain.IsRejection(err) {
		entry.Debug(msg)
		return
	}
	entry.Warn(msg)
}

func balanceResponse(b domain.Balance) flashsalev1.BalanceResponse {
	resp := flashsalev1.BalanceResponse{UserID: b.UserID, AmountMinor: b.AmountMinor}
	if !b.UpdatedAt.IsZero() {
		resp.UpdatedAt = b.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return resp
}

func toDomainRequest(req flashsalev1.OrderRequest) domain.OrderRequest {
	lines := make([]domain.OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, domain.OrderLine{
			ProductID:      item.ProductID,
			ProductName:    item.ProductName,
			Quantity:       item.Quantity,
			UnitPriceMinor: item.UnitPriceMinor,
		})
	}
	return domain.OrderRequest{UserID: req.UserID, Items: lines, UserCouponID: req.UserCouponID}
}

func decode(in *structpb.Struct, v any) error {
	if err := flashsalev1.Decode(in, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	out, err := flashsalev1.Encode(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}
