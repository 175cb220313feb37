package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	apperrors "github.com/shyamanurag/stock-trading-app-sub000/internal/errors"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/ledger"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/logger"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/middleware"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
)

// PortfolioService is the ledger as seen by the HTTP layer.
type PortfolioService interface {
	OpenPortfolio(ctx context.Context, ownerID uuid.UUID) (*models.Portfolio, error)
	PortfolioForOwner(ctx context.Context, ownerID uuid.UUID) (*models.Portfolio, error)
	Valuation(ctx context.Context, id uuid.UUID) (*models.Valuation, error)
	Buy(ctx context.Context, portfolioID uuid.UUID, symbol string, quantity decimal.Decimal) (*models.TradeResult, error)
	Sell(ctx context.Context, portfolioID uuid.UUID, symbol string, quantity decimal.Decimal) (*models.TradeResult, error)
	Transactions(ctx context.Context, id uuid.UUID, page, pageSize int) (*models.TransactionPage, error)
	Audit(ctx context.Context, id uuid.UUID) (*ledger.AuditReport, error)
}

type PortfolioHandler struct {
	ledger PortfolioService
	log    *logger.Logger
}

// TradeRequest is the body of a buy or sell. Price is accepted from older
// clients and ignored; trades always execute at the cached quote.
type TradeRequest struct {
	Symbol   string           `json:"symbol"`
	Quantity decimal.Decimal  `json:"quantity"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

func NewPortfolioHandler(svc PortfolioService, log *logger.Logger) *PortfolioHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &PortfolioHandler{ledger: svc, log: log}
}

func (h *PortfolioHandler) Register(r *mux.Router) {
	r.HandleFunc("/portfolio", h.OpenPortfolio).Methods(http.MethodPost)
	r.HandleFunc("/portfolio", h.GetPortfolio).Methods(http.MethodGet)
	r.HandleFunc("/portfolio/buy", h.Buy).Methods(http.MethodPost)
	r.HandleFunc("/portfolio/sell", h.Sell).Methods(http.MethodPost)
	r.HandleFunc("/portfolio/audit", h.Audit).Methods(http.MethodGet)
	r.HandleFunc("/transactions", h.ListTransactions).Methods(http.MethodGet)
}

func (h *PortfolioHandler) OpenPortfolio(w http.ResponseWriter, r *http.Request) {
	owner, ok := middleware.OwnerID(r.Context())
	if !ok {
		middleware.WriteError(w, r, apperrors.NewAuthenticationError("no authenticated owner", nil))
		return
	}

	p, err := h.ledger.OpenPortfolio(r.Context(), owner)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, p)
}

func (h *PortfolioHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, ok := h.callerPortfolio(w, r)
	if !ok {
		return
	}

	v, err := h.ledger.Valuation(r.Context(), p.ID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, v)
}

func (h *PortfolioHandler) Buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.ledger.Buy)
}

func (h *PortfolioHandler) Sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.ledger.Sell)
}

type tradeFunc func(ctx context.Context, portfolioID uuid.UUID, symbol string, quantity decimal.Decimal) (*models.TradeResult, error)

func (h *PortfolioHandler) trade(w http.ResponseWriter, r *http.Request, execute tradeFunc) {
	var req TradeRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if req.Price != nil {
		h.log.WithContext(r.Context()).Debugw("Ignoring client supplied price",
			"symbol", req.Symbol,
			"price", req.Price.String(),
		)
	}

	p, ok := h.callerPortfolio(w, r)
	if !ok {
		return
	}

	result, err := execute(r.Context(), p.ID, req.Symbol, req.Quantity)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

func (h *PortfolioHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", 0)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	p, ok := h.callerPortfolio(w, r)
	if !ok {
		return
	}

	txs, err := h.ledger.Transactions(r.Context(), p.ID, page, pageSize)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, txs)
}

func (h *PortfolioHandler) Audit(w http.ResponseWriter, r *http.Request) {
	p, ok := h.callerPortfolio(w, r)
	if !ok {
		return
	}

	report, err := h.ledger.Audit(r.Context(), p.ID)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, report)
}

// callerPortfolio loads the authenticated owner's portfolio, writing the
// error response itself when it cannot.
func (h *PortfolioHandler) callerPortfolio(w http.ResponseWriter, r *http.Request) (*models.Portfolio, bool) {
	owner, ok := middleware.OwnerID(r.Context())
	if !ok {
		middleware.WriteError(w, r, apperrors.NewAuthenticationError("no authenticated owner", nil))
		return nil, false
	}

	p, err := h.ledger.PortfolioForOwner(r.Context(), owner)
	if err != nil {
		middleware.WriteError(w, r, err)
		return nil, false
	}
	return p, true
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			appErr := apperrors.NewValidationError("request body too large", nil)
			appErr.StatusCode = http.StatusRequestEntityTooLarge
			return appErr
		}
		return apperrors.NewValidationError("malformed JSON body", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(key+" must be an integer", nil)
	}
	return n, nil
}
