// Package flashsalev1 описывает gRPC-контракт FlashSaleService.
//
// Сообщения передаются как google.protobuf.Struct, поэтому дескриптор
// сервиса и клиент написаны вручную без protoc. Поля сообщений задаются
// типами из messages.go и кодируются через protojson.
package flashsalev1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "flashsale.v1.FlashSaleService"

const (
	MethodIssueCoupon    = "/" + ServiceName + "/IssueCoupon"
	MethodGetIssueStatus = "/" + ServiceName + "/GetIssueStatus"
	MethodPlaceOrder     = "/" + ServiceName + "/PlaceOrder"
	MethodSubmitOrder    = "/" + ServiceName + "/SubmitOrder"
	MethodGetSagaStatus  = "/" + ServiceName + "/GetSagaStatus"
	MethodTopProducts    = "/" + ServiceName + "/TopProducts"
	MethodGetBalance     = "/" + ServiceName + "/GetBalance"
	MethodChargeBalance  = "/" + ServiceName + "/ChargeBalance"
	MethodListCoupons    = "/" + ServiceName + "/ListUserCoupons"
)

// FlashSaleServiceServer серверная часть API.
type FlashSaleServiceServer interface {
	IssueCoupon(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetIssueStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PlaceOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSagaStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TopProducts(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChargeBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListUserCoupons(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedFlashSaleServiceServer встраивается в реализации для совместимости вперёд.
type UnimplementedFlashSaleServiceServer struct{}

func (UnimplementedFlashSaleServiceServer) IssueCoupon(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method IssueCoupon not implemented")
}

func (UnimplementedFlashSaleServiceServer) GetIssueStatus(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetIssueStatus not implemented")
}

func (UnimplementedFlashSaleServiceServer) PlaceOrder(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method PlaceOrder not implemented")
}

func (UnimplementedFlashSaleServiceServer) SubmitOrder(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SubmitOrder not implemented")
}

func (UnimplementedFlashSaleServiceServer) GetSagaStatus(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetSagaStatus not implemented")
}

func (UnimplementedFlashSaleServiceServer) TopProducts(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method TopProducts not implemented")
}

func (UnimplementedFlashSaleServiceServer) GetBalance(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetBalance not implemented")
}

func (UnimplementedFlashSaleServiceServer) ChargeBalance(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ChargeBalance not implemented")
}

func (UnimplementedFlashSaleServiceServer) ListUserCoupons(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListUserCoupons not implemented")
}

type unaryCall func(srv FlashSaleServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(FlashSaleServiceServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// FlashSaleService_ServiceDesc дескриптор для grpc.Server.RegisterService.
var FlashSaleService_ServiceDesc = grpc.ServiceDesc{ //nolint:revive // имя в стиле protoc-gen-go-grpc
	ServiceName: ServiceName,
	HandlerType: (*FlashSaleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IssueCoupon", Handler: unaryHandler(MethodIssueCoupon, FlashSaleServiceServer.IssueCoupon)},
		{MethodName: "GetIssueStatus", Handler: unaryHandler(MethodGetIssueStatus, FlashSaleServiceServer.GetIssueStatus)},
		{MethodName: "PlaceOrder", Handler: unaryHandler(MethodPlaceOrder, FlashSaleServiceServer.PlaceOrder)},
		{MethodName: "SubmitOrder", Handler: unaryHandler(MethodSubmitOrder, FlashSaleServiceServer.SubmitOrder)},
		{MethodName: "GetSagaStatus", Handler: unaryHandler(MethodGetSagaStatus, FlashSaleServiceServer.GetSagaStatus)},
		{MethodName: "TopProducts", Handler: unaryHandler(MethodTopProducts, FlashSaleServiceServer.TopProducts)},
		{MethodName: "GetBalance", Handler: unaryHandler(MethodGetBalance, FlashSaleServiceServer.GetBalance)},
		{MethodName: "ChargeBalance", Handler: unaryHandler(MethodChargeBalance, FlashSaleServiceServer.ChargeBalance)},
		{MethodName: "ListUserCoupons", Handler: unaryHandler(MethodListCoupons, FlashSaleServiceServer.ListUserCoupons)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "flashsale/v1/flashsale.proto",
}

func RegisterFlashSaleServiceServer(s grpc.ServiceRegistrar, srv FlashSaleServiceServer) {
	s.RegisterService(&FlashSaleService_ServiceDesc, srv)
}

// FlashSaleServiceClient клиент с типизированными сообщениями.
type FlashSaleServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewFlashSaleServiceClient(cc grpc.ClientConnInterface) *FlashSaleServiceClient {
	return &FlashSaleServiceClient{cc: cc}
}

func (c *FlashSaleServiceClient) IssueCoupon(ctx context.Context, req IssueCouponRequest, opts ...grpc.CallOption) (IssueCouponResponse, error) {
	var resp IssueCouponResponse
	return resp, c.invoke(ctx, MethodIssueCoupon, req, &resp, opts...)
}

func (c *FlashSaleServiceClient) GetIssueStatus(ctx context.Context, req IssueStatusRequest, opts ...grpc.CallOption) (IssueStatusResponse, error) {
	var resp IssueStatusResponse
	return resp, c.invoke(ctx, MethodGetIssueStatus, req, &resp, opts...)
}

func (c *FlashSaleServiceClient) PlaceOrder(ctx context.Context, req OrderRequest, opts ...grpc.CallOption) (PlaceOrderResponse, error) {
	var resp PlaceOrderResponse
	return resp, c.invoke(ctx, MethodPlaceOrder, req, &resp, opts...)
}

func (c *FlashSaleServiceClient) SubmitOrder(ctx context.Context, req OrderRequest, opts ...grpc.CallOption) (SubmitOrderResponse, error) {
	var resp SubmitOrderResponse
	return resp, c.invoke(ctx, MethodSubmitOrder, req, &resp, opts...)
}

func (c *FlashSaleServiceClient) GetSagaStatus(ctx context.Context, req SagaStatusRequest, opts ...grpc.CallOption) (SagaStatusResponse, error) {
	var resp SagaStatusResponse
	return resp, c.invoke(ctx, MethodGetSagaStatus, req, &resp, opts...)
}

func (c *FlashSaleServiceClient) TopProducts(ctx context.Context, req TopProductsRequest, opts ...grpc.CallOption) (TopProductsResponse, error) {
	var resp TopProductsResponse
	return resp, c.invoke(ctx, MethodTopProducts, req, &resp, opts...)
}

func (c *FlashSaleServiceClient) GetBalance(ctx context.Context, req BalanceRequest, opts ...grpc.CallOption) (BalanceResponse, error) {
	var resp BalanceResponse
	return resp, c.invoke(ctx, MethodGetBalance, req, &resp, opts...)
}

func (c *FlashSaleServiceClient) ChargeBalance(ctx context.Context, req ChargeBalanceRequest, opts ...grpc.CallOption) (BalanceResponse, error) {
	var resp BalanceResponse
	return resp, c.invoke(ctx, MethodChargeBalance, req, &resp, opts...)
}

func (c *FlashSaleServiceClient) ListUserCoupons(ctx context.Context, req UserCouponsRequest, opts ...grpc.CallOption) (UserCouponsResponse, error) {
	var resp UserCouponsResponse
	return resp, c.invoke(ctx, MethodListCoupons, req, &resp, opts...)
}

func (c *FlashSaleServiceClient) invoke(ctx context.Context, method string, req, resp any, opts ...grpc.CallOption) error {
	in, err := Encode(req)
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "encode request: %v", err)
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return err
	}
	if err := Decode(out, resp); err != nil {
		return status.Errorf(codes.Internal, "decode response: %v", err)
	}
	return nil
}
