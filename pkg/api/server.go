package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/votebook/pkg/app/core/asset"
	"github.com/uhyunpark/votebook/pkg/app/core/exchange"
	"github.com/uhyunpark/votebook/pkg/app/core/orderbook"
	"github.com/uhyunpark/votebook/pkg/app/core/shares"
	"github.com/uhyunpark/votebook/pkg/app/core/token"
	"github.com/uhyunpark/votebook/pkg/app/core/transaction"
	"github.com/uhyunpark/votebook/pkg/crypto"
	"github.com/uhyunpark/votebook/pkg/util"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 500
	maxBodyBytes      = 64 << 10
)

// Server handles REST API and WebSocket connections
type Server struct {
	exchange *exchange.Exchange
	assets   *asset.Registry
	verifier *transaction.Verifier
	router   *mux.Router
	handler  http.Handler
	hub      *Hub // WebSocket hub
	logger   *zap.SugaredLogger
	clock    util.Clock

	httpServer *http.Server
}

// NewServer creates a new API server. Wire Server.Publish as an exchange
// event handler to feed the WebSocket hub.
func NewServer(ex *exchange.Exchange, assets *asset.Registry, verifier *transaction.Verifier,
	corsOrigins []string, logger *zap.SugaredLogger) *Server {
	s := &Server{
		exchange: ex,
		assets:   assets,
		verifier: verifier,
		router:   mux.NewRouter(),
		hub:      NewHub(logger),
		logger:   logger,
		clock:    util.RealClock{},
	}

	s.setupRoutes()

	// CORS configuration
	c := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s.handler = c.Handler(s.router)
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Asset endpoints
	api.HandleFunc("/assets", s.handleGetAssets).Methods("GET")
	api.HandleFunc("/assets/{assetId:[0-9]+}", s.handleGetAsset).Methods("GET")
	api.HandleFunc("/assets/{assetId:[0-9]+}/orders", s.handleGetAssetOrders).Methods("GET")
	api.HandleFunc("/assets/{assetId:[0-9]+}/trades", s.handleGetTrades).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{address}/orders", s.handleGetAccountOrders).Methods("GET")
	api.HandleFunc("/accounts/{address}/shares/{assetId:[0-9]+}", s.handleGetShares).Methods("GET")

	// Order endpoints
	api.HandleFunc("/orders/{side}/{tradeId:[0-9]+}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/price", s.handleUpdatePrice).Methods("POST")
	api.HandleFunc("/orders/close", s.handleCloseOrder).Methods("POST")

	// WebSocket endpoint
	api.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in CORS
func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the WebSocket hub
func (s *Server) Hub() *Hub { return s.hub }

// Publish forwards a committed exchange event to WebSocket subscribers
func (s *Server) Publish(ev exchange.Event) { s.hub.Publish(ev) }

// Start runs the hub and serves until Shutdown
func (s *Server) Start(addr string) error {
	// Start WebSocket hub
	go s.hub.Run()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Infow("api_started", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "serve %s", addr)
	}
	return nil
}

// Shutdown stops accepting requests and closes WebSocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	err := s.httpServer.Shutdown(ctx)
	s.hub.Stop()
	return err
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetAssets(w http.ResponseWriter, r *http.Request) {
	assets := s.assets.List()

	response := make([]AssetInfo, len(assets))
	for i, a := range assets {
		response[i] = assetInfo(a)
	}

	respondJSON(w, response)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "assetId")
	if !ok {
		return
	}

	a, err := s.assets.Get(id)
	if err != nil {
		respondErr(w, err)
		return
	}

	response := AssetDetail{
		AssetInfo: assetInfo(a),
		Bids:      s.exchange.Levels(id, orderbook.Bid),
		Asks:      s.exchange.Levels(id, orderbook.Ask),
		Escrowed:  s.exchange.Escrowed(id).String(),
		Timestamp: s.clock.Now().UnixMilli(),
	}

	respondJSON(w, response)
}

func (s *Server) handleGetAssetOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "assetId")
	if !ok {
		return
	}
	sides, ok := querySides(w, r)
	if !ok {
		return
	}

	var orders []orderbook.Order
	for _, side := range sides {
		orders = append(orders, s.exchange.OrdersByAsset(id, side)...)
	}
	respondJSON(w, orderInfos(orders))
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "assetId")
	if !ok {
		return
	}

	limit := defaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", raw)
			return
		}
		limit = min(n, maxTradeLimit)
	}

	trades, err := s.exchange.RecentTrades(id, limit)
	if err != nil {
		respondErr(w, err)
		return
	}

	response := make([]TradeInfo, len(trades))
	for i, t := range trades {
		response[i] = tradeInfo(t)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetAccountOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	sides, ok := querySides(w, r)
	if !ok {
		return
	}

	var orders []orderbook.Order
	for _, side := range sides {
		orders = append(orders, s.exchange.OrdersByCreator(addr, side)...)
	}
	respondJSON(w, orderInfos(orders))
}

func (s *Server) handleGetShares(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	id, ok := pathUint(w, r, "assetId")
	if !ok {
		return
	}

	respondJSON(w, shareInfo(s.exchange.ShareRecord(id, addr)))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	side, err := orderbook.ParseSide(mux.Vars(r)["side"])
	if err != nil {
		respondErr(w, err)
		return
	}
	id, ok := pathUint(w, r, "tradeId")
	if !ok {
		return
	}

	o, err := s.exchange.Order(side, id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	req, caller, ok := s.authenticate(w, r, transaction.TypePlace)
	if !ok {
		return
	}

	p := req.Place
	var (
		res exchange.Placement
		err error
	)
	if p.Side == crypto.SideAsk {
		res, err = s.exchange.Ask(caller, p.AssetID, p.Price, p.Amount)
	} else {
		res, err = s.exchange.Bid(caller, p.AssetID, p.Price, p.Amount)
	}
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, res)
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	req, caller, ok := s.authenticate(w, r, transaction.TypePrice)
	if !ok {
		return
	}

	p := req.Price
	res, err := s.exchange.UpdatePrice(caller, p.TradeID, p.NewPrice, orderbook.Side(p.Side))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, res)
}

func (s *Server) handleCloseOrder(w http.ResponseWriter, r *http.Request) {
	req, caller, ok := s.authenticate(w, r, transaction.TypeClose)
	if !ok {
		return
	}

	p := req.Close
	res, err := s.exchange.CloseBidAsk(caller, p.TradeID, orderbook.Side(p.Side))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// authenticate reads a signed request of the expected type and returns it
// with the recovered caller
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request, want transaction.RequestType) (*transaction.SignedRequest, common.Address, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return nil, common.Address{}, false
	}

	req, err := transaction.Parse(body)
	if err != nil {
		respondErr(w, err)
		return nil, common.Address{}, false
	}
	if req.Type != want {
		respondError(w, http.StatusBadRequest, "invalid request type", "expected type="+string(want))
		return nil, common.Address{}, false
	}

	caller, err := s.verifier.Verify(req)
	if err != nil {
		s.logger.Warnw("request_rejected", "type", req.Type, "error", err)
		respondErr(w, err)
		return nil, common.Address{}, false
	}
	return req, caller, true
}

// ==============================
// Helper Functions
// ==============================

func pathUint(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	raw := mux.Vars(r)[name]
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+name, raw)
		return 0, false
	}
	return v, true
}

func pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// querySides parses ?side=bid|ask; both sides when absent
func querySides(w http.ResponseWriter, r *http.Request) ([]orderbook.Side, bool) {
	raw := r.URL.Query().Get("side")
	if raw == "" {
		return []orderbook.Side{orderbook.Bid, orderbook.Ask}, true
	}
	side, err := orderbook.ParseSide(raw)
	if err != nil {
		respondErr(w, err)
		return nil, false
	}
	return []orderbook.Side{side}, true
}

// errorStatus maps domain errors to an HTTP status and a stable error code
var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{transaction.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{orderbook.ErrInvalidAsset, http.StatusBadRequest, "invalid_asset"},
	{orderbook.ErrInvalidPrice, http.StatusBadRequest, "invalid_price"},
	{orderbook.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{orderbook.ErrInvalidSide, http.StatusBadRequest, "invalid_side"},
	{orderbook.ErrInvalidTradeID, http.StatusNotFound, "invalid_trade_id"},
	{asset.ErrNotFound, http.StatusNotFound, "asset_not_found"},
	{crypto.ErrSignerMismatch, http.StatusUnauthorized, "invalid_signature"},
	{exchange.ErrNoPermission, http.StatusForbidden, "no_permission"},
	{transaction.ErrNonceTooLow, http.StatusConflict, "nonce_too_low"},
	{shares.ErrInsufficientUnlistedShares, http.StatusUnprocessableEntity, "insufficient_unlisted_shares"},
	{token.ErrInsufficientBalance, http.StatusUnprocessableEntity, "insufficient_balance"},
	{token.ErrInsufficientAllowance, http.StatusUnprocessableEntity, "insufficient_allowance"},
}

func respondErr(w http.ResponseWriter, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			respondError(w, e.status, e.code, err.Error())
			return
		}
	}
	respondError(w, http.StatusInternalServerError, "internal", err.Error())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
