package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/agobrik/unity-sim-packs-sub006/internal/api/dto"
	"github.com/agobrik/unity-sim-packs-sub006/internal/core"
	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
)

const ServiceName = "market.v1.MarketService"

// MarketService exchanges JSON-shaped google.protobuf.Struct messages; field
// names follow the HTTP API.
type MarketService interface {
	RegisterAsset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrderbook(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTrades(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPriceHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMarketStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type handlerFunc func(MarketService, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, fn handlerFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			svc := srv.(MarketService)
			if interceptor == nil {
				return fn(svc, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(svc, ctx, req.(*structpb.Struct))
			})
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarketService)(nil),
	Methods: []grpc.MethodDesc{
		unary("RegisterAsset", MarketService.RegisterAsset),
		unary("SubmitOrder", MarketService.SubmitOrder),
		unary("CancelOrder", MarketService.CancelOrder),
		unary("GetOrder", MarketService.GetOrder),
		unary("GetOrderbook", MarketService.GetOrderbook),
		unary("GetTrades", MarketService.GetTrades),
		unary("GetPriceHistory", MarketService.GetPriceHistory),
		unary("GetMarketStats", MarketService.GetMarketStats),
		unary("ExportSnapshot", MarketService.ExportSnapshot),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "market/v1/market.proto",
}

type GRPCServer struct {
	Dir    *core.Directory
	logger *zap.Logger
	srv    *grpc.Server
}

var _ MarketService = (*GRPCServer)(nil)

func NewGRPCServer(dir *core.Directory, logger *zap.Logger) *GRPCServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &GRPCServer{Dir: dir, logger: logger}
	s.srv = grpc.NewServer(grpc.UnaryInterceptor(UnaryLogger(logger)))
	s.srv.RegisterService(&ServiceDesc, s)
	return s
}

func (s *GRPCServer) Serve(lis net.Listener) error {
	s.logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *GRPCServer) Stop() { s.srv.GracefulStop() }

// UnaryLogger logs every call with its status code.
func UnaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", code.String()),
			zap.Duration("latency", time.Since(start)),
		}
		if code == codes.Internal || code == codes.Unknown {
			logger.Error("grpc request", append(fields, zap.Error(err))...)
		} else {
			logger.Debug("grpc request", fields...)
		}
		return resp, err
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrAssetNotFound), errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidOrder), errors.Is(err, domain.ErrInvalidPrice), errors.Is(err, domain.ErrInvalidAsset):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrAssetExists):
		return status.Error(codes.AlreadyExists, err.Error())
	default:
		return status.Errorf(codes.Internal, "internal: %v", err)
	}
}

// decode maps a request Struct onto a request type through its JSON form.
func decode(in *structpb.Struct, dst any) error {
	b, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

func stringField(in *structpb.Struct, key string) string {
	if v, ok := in.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func (s *GRPCServer) RegisterAsset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.RegisterAssetRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	a, err := s.Dir.RegisterAsset(ctx, req.Asset())
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(a)
}

func (s *GRPCServer) SubmitOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.SubmitOrderRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.AssetID == "" {
		return nil, status.Error(codes.InvalidArgument, "asset_id is required")
	}
	if err := dto.ValidateOrder(&req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	receipt, err := s.Dir.SubmitOrder(ctx, req.Order())
	if err != nil {
		return nil, toStatus(err)
	}
	resp := dto.SubmitOrderResponse{
		OrderID:   receipt.OrderID,
		Status:    receipt.Status,
		Trades:    dto.FromTrades(receipt.Trades),
		Remaining: receipt.Remaining,
	}
	if receipt.Duplicate {
		resp.Message = "duplicate order"
	}
	return encode(resp)
}

func (s *GRPCServer) CancelOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dto.CancelOrderRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	if req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}
	ok, err := s.Dir.CancelOrder(ctx, req.OrderID, req.TraderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(dto.CancelOrderResponse{OrderID: req.OrderID, Cancelled: ok})
}

func (s *GRPCServer) GetOrder(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	o, err := s.Dir.GetOrder(stringField(in, "order_id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(dto.GetOrderResponse{Order: dto.FromOrder(o)})
}

func (s *GRPCServer) GetOrderbook(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ob, err := s.Dir.GetBook(ctx, stringField(in, "asset_id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(dto.GetOrderbookResponse{
		AssetID:   ob.AssetID,
		Bids:      dto.FromOrders(ob.Bids),
		Asks:      dto.FromOrders(ob.Asks),
		Timestamp: ob.Timestamp,
	})
}

func (s *GRPCServer) GetTrades(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	trades, err := s.Dir.GetTrades(stringField(in, "asset_id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(dto.GetTradesResponse{Trades: dto.FromTrades(trades)})
}

func (s *GRPCServer) GetPriceHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	assetID := stringField(in, "asset_id")
	limit := 0
	if v, ok := in.GetFields()["limit"]; ok {
		n := v.GetNumberValue()
		if n < 0 || n != float64(int(n)) {
			return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("invalid limit %v", n))
		}
		limit = int(n)
	}
	hist, err := s.Dir.GetPriceHistory(assetID, limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(dto.GetPriceHistoryResponse{AssetID: assetID, History: hist})
}

func (s *GRPCServer) GetMarketStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encode(s.Dir.GetMarketStats())
}

func (s *GRPCServer) ExportSnapshot(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return encode(s.Dir.Snapshot())
}

// Client calls MarketService over any connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}
