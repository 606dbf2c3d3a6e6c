package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agobrik/unity-sim-packs-sub006/internal/api/dto"
	"github.com/agobrik/unity-sim-packs-sub006/internal/core"
	"github.com/agobrik/unity-sim-packs-sub006/internal/domain"
	"github.com/agobrik/unity-sim-packs-sub006/internal/middleware"
)

type HTTPServer struct {
	Dir      *core.Directory
	limiter  *middleware.RateLimiter
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	srv      *http.Server
}

// NewHTTPServer serves dir. gatherer may be nil to disable /metrics.
func NewHTTPServer(dir *core.Directory, rateLimit time.Duration, gatherer prometheus.Gatherer, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{
		Dir:      dir,
		limiter:  middleware.NewRateLimiter(rateLimit),
		gatherer: gatherer,
		logger:   logger,
	}
}

func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(s.logger))

	r.POST("/assets", s.registerAsset)
	r.GET("/assets", s.listAssets)
	r.GET("/assets/:id", s.getAsset)
	r.POST("/assets/:id/price", s.applyPrice)

	// Middleware rate-limiting
	r.POST("/orders", s.limiter.Middleware(), s.submitOrder)
	r.POST("/orders/cancel", s.cancelOrder)
	r.GET("/orders/:id", s.getOrder)

	r.GET("/orderbook", s.getOrderbook)
	r.GET("/trades", s.getTrades)
	r.GET("/history/:asset", s.getPriceHistory)
	r.GET("/stats", s.getStats)
	r.GET("/export", s.export)

	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func (s *HTTPServer) Run(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("http server listening", zap.String("addr", addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAssetNotFound), errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidOrder), errors.Is(err, domain.ErrInvalidPrice), errors.Is(err, domain.ErrInvalidAsset):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAssetExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (s *HTTPServer) registerAsset(c *gin.Context) {
	var req dto.RegisterAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := s.Dir.RegisterAsset(c.Request.Context(), req.Asset())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *HTTPServer) listAssets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"assets": s.Dir.ListAssets()})
}

func (s *HTTPServer) getAsset(c *gin.Context) {
	a, err := s.Dir.GetAsset(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *HTTPServer) applyPrice(c *gin.Context) {
	var req dto.ApplyPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := s.Dir.ApplyPrice(c.Request.Context(), c.Param("id"), req.Price)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *HTTPServer) submitOrder(c *gin.Context) {
	var req dto.SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TraderID == "" {
		req.TraderID = c.GetHeader(middleware.TraderHeader)
	}
	if err := dto.ValidateOrder(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := s.Dir.SubmitOrder(c.Request.Context(), req.Order())
	if err != nil {
		fail(c, err)
		return
	}
	if receipt.Duplicate {
		c.JSON(http.StatusOK, dto.SubmitOrderResponse{
			OrderID:   receipt.OrderID,
			Status:    receipt.Status,
			Trades:    []dto.Trade{},
			Remaining: receipt.Remaining,
			Message:   "duplicate order",
		})
		return
	}
	c.JSON(http.StatusOK, dto.SubmitOrderResponse{
		OrderID:   receipt.OrderID,
		Status:    receipt.Status,
		Trades:    dto.FromTrades(receipt.Trades),
		Remaining: receipt.Remaining,
	})
}

func (s *HTTPServer) cancelOrder(c *gin.Context) {
	var req dto.CancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TraderID == "" {
		req.TraderID = c.GetHeader(middleware.TraderHeader)
	}
	ok, err := s.Dir.CancelOrder(c.Request.Context(), req.OrderID, req.TraderID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CancelOrderResponse{
		OrderID:   req.OrderID,
		Cancelled: ok,
	})
}

func (s *HTTPServer) getOrder(c *gin.Context) {
	o, err := s.Dir.GetOrder(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.GetOrderResponse{Order: dto.FromOrder(o)})
}

func (s *HTTPServer) getOrderbook(c *gin.Context) {
	assetID := c.Query("asset")
	if assetID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "asset query parameter required"})
		return
	}
	ob, err := s.Dir.GetBook(c.Request.Context(), assetID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.GetOrderbookResponse{
		AssetID:   ob.AssetID,
		Bids:      dto.FromOrders(ob.Bids),
		Asks:      dto.FromOrders(ob.Asks),
		Timestamp: ob.Timestamp,
	})
}

func (s *HTTPServer) getTrades(c *gin.Context) {
	assetID := c.Query("asset")
	trades, err := s.Dir.GetTrades(assetID)
	if err != nil {
		fail(c, err)
		return
	}
	if c.Query("archived") == "true" && assetID != "" {
		archived, err := s.Dir.ArchivedTrades(c.Request.Context(), assetID)
		if err != nil {
			fail(c, err)
			return
		}
		trades = append(archived, trades...)
	}
	c.JSON(http.StatusOK, dto.GetTradesResponse{Trades: dto.FromTrades(trades)})
}

func (s *HTTPServer) getPriceHistory(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	assetID := c.Param("asset")
	hist, err := s.Dir.GetPriceHistory(assetID, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.GetPriceHistoryResponse{AssetID: assetID, History: hist})
}

func (s *HTTPServer) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.Dir.GetMarketStats())
}

func (s *HTTPServer) export(c *gin.Context) {
	b, err := s.Dir.ExportSnapshot()
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", b)
}
