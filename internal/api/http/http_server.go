package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/portfolio-ledger/internal/api/dto"
	"github.com/example/portfolio-ledger/internal/core"
	"github.com/example/portfolio-ledger/internal/domain"
	"github.com/example/portfolio-ledger/internal/middleware"
	"github.com/example/portfolio-ledger/internal/realtime"
)

type HTTPServer struct {
	Ctrl     *core.Controller
	hub      *realtime.Hub
	cache    *ristretto.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewHTTPServer(ctrl *core.Controller, logger *zap.Logger, cacheTTL time.Duration) (*HTTPServer, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 26,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("view cache: %w", err)
	}
	return &HTTPServer{
		Ctrl:     ctrl,
		hub:      realtime.NewHub(),
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}, nil
}

func (s *HTTPServer) Router() *gin.Engine {
	r := gin.Default()

	rl := middleware.NewRateLimiter(time.Millisecond * 100)
	r.Use(middleware.Identity())

	r.POST("/transactions", rl.Middleware(), s.submitTransaction)
	r.GET("/portfolio", s.getPortfolio)
	r.GET("/portfolio/transactions", s.getTransactions)
	r.GET("/market", s.getMarket)
	r.GET("/stream", s.stream)

	return r
}

func (s *HTTPServer) Run(addr string) error {
	return s.Router().Run(addr)
}

func (s *HTTPServer) submitTransaction(c *gin.Context) {
	var req dto.SubmitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ValidateTransaction(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident := middleware.IdentityFrom(c)
	tx := domain.Transaction{
		ID:        req.TransactionID,
		Symbol:    req.Symbol,
		Side:      domain.Side(req.Side),
		Quantity:  req.Quantity,
		UnitPrice: req.UnitPrice,
		At:        req.At,
	}

	view, err := s.Ctrl.SubmitTransaction(c.Request.Context(), ident, tx)
	if errors.Is(err, domain.ErrDuplicateTransaction) {
		c.JSON(http.StatusOK, dto.SubmitTransactionResponse{
			TransactionID: tx.ID,
			Duplicate:     true,
			Portfolio:     convertView(view),
		})
		return
	}
	if err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	s.cache.Del(viewKey(ident.UserID))
	c.JSON(http.StatusCreated, dto.SubmitTransactionResponse{
		TransactionID: tx.ID,
		Portfolio:     convertView(view),
	})
}

func (s *HTTPServer) getPortfolio(c *gin.Context) {
	ident := middleware.IdentityFrom(c)
	if err := ident.Check(); err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	// A hit is served only while it was built against the market snapshot
	// currently in effect; a feed push misses immediately. Ledger writes from
	// another process are bounded by the TTL, local submits invalidate.
	asOf := s.Ctrl.MarketAsOf(c.Request.Context())
	if cached, ok := s.cache.Get(viewKey(ident.UserID)); ok {
		if view, ok := cached.(dto.Portfolio); ok && view.MarketAsOf.Equal(asOf) {
			c.JSON(http.StatusOK, view)
			return
		}
	}

	view, err := s.Ctrl.Portfolio(c.Request.Context(), ident)
	if err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}
	out := convertView(view)
	s.cache.SetWithTTL(viewKey(ident.UserID), out, 1, s.cacheTTL)
	c.JSON(http.StatusOK, out)
}

func (s *HTTPServer) getTransactions(c *gin.Context) {
	ident := middleware.IdentityFrom(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	txs, err := s.Ctrl.History(c.Request.Context(), ident, limit)
	if err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, dto.TransactionsResponse{Transactions: convertTransactions(txs)})
}

func (s *HTTPServer) getMarket(c *gin.Context) {
	ident := middleware.IdentityFrom(c)
	snap, err := s.Ctrl.Market(c.Request.Context(), ident)
	if err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, convertSnapshot(snap))
}

// stream upgrades to a websocket and pushes the merged view on every ledger
// or market change until the client goes away.
func (s *HTTPServer) stream(c *gin.Context) {
	ident := middleware.IdentityFrom(c)
	if err := ident.Check(); err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	views, err := s.Ctrl.Subscribe(ctx, ident)
	if err != nil {
		status, body := errorBody(err)
		c.JSON(status, body)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	// the hub's writer goroutine is the only one touching conn
	release := s.hub.Register(conn)
	defer release()

	// read pump: detect client close
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for view := range views {
		s.hub.Send(conn, convertView(view))
	}
}

func ValidateTransaction(req *dto.SubmitTransactionRequest) error {
	switch req.Side {
	case dto.Buy, dto.Sell:
	default:
		return fmt.Errorf("invalid side: %s", req.Side)
	}
	if req.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !req.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be > 0")
	}
	if !req.UnitPrice.IsPositive() {
		return fmt.Errorf("unit price must be > 0")
	}
	return nil
}

func errorBody(err error) (int, gin.H) {
	var ih *domain.InsufficientHoldingsError
	if errors.As(err, &ih) {
		return http.StatusBadRequest, gin.H{
			"error":     "insufficient holdings",
			"symbol":    ih.Symbol,
			"requested": ih.Requested,
			"available": ih.Available,
		}
	}
	var iv *domain.InvalidTransactionError
	if errors.As(err, &iv) {
		return http.StatusBadRequest, gin.H{"error": iv.Error()}
	}
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, gin.H{"error": err.Error()}
	case errors.Is(err, domain.ErrUnverified):
		return http.StatusForbidden, gin.H{"error": err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, gin.H{"error": err.Error()}
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout, gin.H{"error": err.Error()}
	case errors.Is(err, domain.ErrUnavailable):
		return http.StatusServiceUnavailable, gin.H{"error": err.Error()}
	}
	return http.StatusInternalServerError, gin.H{"error": err.Error()}
}

func viewKey(userID string) string { return "view:" + userID }

func convertView(v domain.PortfolioView) dto.Portfolio {
	holdings := make([]dto.Holding, len(v.Holdings))
	for i, h := range v.Holdings {
		holdings[i] = dto.Holding{
			Symbol:        h.Symbol,
			Quantity:      h.Quantity,
			AvgCost:       h.AvgCost,
			RealizedPnL:   h.RealizedPnL,
			Priced:        h.Priced,
			Price:         h.Price,
			MarketValue:   h.MarketValue,
			CostBasis:     h.CostBasis,
			UnrealizedPnL: h.UnrealizedPnL,
		}
	}
	return dto.Portfolio{
		UserID:        v.UserID,
		Version:       v.Version,
		Holdings:      holdings,
		TotalValue:    v.TotalValue,
		TotalCost:     v.TotalCost,
		RealizedPnL:   v.RealizedPnL,
		UnrealizedPnL: v.UnrealizedPnL,
		MarketAsOf:    v.MarketAsOf,
		UpdatedAt:     v.UpdatedAt,
	}
}

func convertSnapshot(s domain.MarketSnapshot) dto.MarketSnapshot {
	out := dto.MarketSnapshot{Quotes: make([]dto.Quote, 0, len(s.Quotes)), AsOf: s.AsOf}
	for _, q := range s.Quotes {
		out.Quotes = append(out.Quotes, dto.Quote{Symbol: q.Symbol, Price: q.Price, AsOf: q.AsOf})
	}
	sort.Slice(out.Quotes, func(i, j int) bool { return out.Quotes[i].Symbol < out.Quotes[j].Symbol })
	return out
}

func convertTransactions(txs []domain.Transaction) []dto.Transaction {
	res := make([]dto.Transaction, len(txs))
	for i, t := range txs {
		res[i] = dto.Transaction{
			ID:        t.ID,
			Symbol:    t.Symbol,
			Side:      dto.Side(t.Side),
			Quantity:  t.Quantity,
			UnitPrice: t.UnitPrice,
			At:        t.At,
		}
	}
	return res
}
