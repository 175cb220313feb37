package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	apperrors "github.com/shyamanurag/stock-trading-app-sub000/internal/errors"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/middleware"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
	"github.com/shyamanurag/stock-trading-app-sub000/internal/validator"
)

const MaxQuoteSymbols = 100

// QuoteService serves display quotes, stale ones included.
type QuoteService interface {
	GetForDisplay(ctx context.Context, symbols []string) map[string]models.Quote
}

type QuoteHandler struct {
	quotes QuoteService
}

type QuotesResponse struct {
	Quotes  map[string]models.Quote `json:"quotes"`
	Missing []string                `json:"missing,omitempty"`
}

func NewQuoteHandler(quotes QuoteService) *QuoteHandler {
	return &QuoteHandler{quotes: quotes}
}

func (h *QuoteHandler) Register(r *mux.Router) {
	r.HandleFunc("/quotes", h.GetQuotes).Methods(http.MethodGet)
	r.HandleFunc("/quotes/{symbol}", h.GetQuote).Methods(http.MethodGet)
}

func (h *QuoteHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := validator.NormalizeSymbol(mux.Vars(r)["symbol"])
	if !validator.IsValidSymbol(symbol) {
		middleware.WriteError(w, r, apperrors.NewValidationError("invalid symbol "+symbol, nil))
		return
	}

	quotes := h.quotes.GetForDisplay(r.Context(), []string{symbol})
	q, ok := quotes[symbol]
	if !ok {
		middleware.WriteError(w, r, apperrors.NewQuoteUnavailableError(symbol, errors.New("no quote")))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, q)
}

// GetQuotes prices a comma separated symbol list. Symbols that could not
// be priced are listed under missing; only an entirely unpriced request
// fails.
func (h *QuoteHandler) GetQuotes(w http.ResponseWriter, r *http.Request) {
	symbols, err := parseSymbols(r.URL.Query()["symbols"])
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	quotes := h.quotes.GetForDisplay(r.Context(), symbols)

	resp := QuotesResponse{Quotes: make(map[string]models.Quote, len(quotes))}
	for _, s := range symbols {
		if q, ok := quotes[s]; ok {
			resp.Quotes[s] = q
		} else {
			resp.Missing = append(resp.Missing, s)
		}
	}

	if len(resp.Quotes) == 0 {
		middleware.WriteError(w, r, apperrors.NewQuoteUnavailableError(strings.Join(resp.Missing, ","), errors.New("no quotes")))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

func parseSymbols(values []string) ([]string, error) {
	v := validator.New()
	seen := make(map[string]bool)
	var symbols []string

	for _, value := range values {
		for _, raw := range strings.Split(value, ",") {
			symbol := validator.NormalizeSymbol(raw)
			if symbol == "" || seen[symbol] {
				continue
			}
			seen[symbol] = true
			v.Check(validator.IsValidSymbol(symbol), "symbols", "contains invalid symbol "+symbol)
			symbols = append(symbols, symbol)
		}
	}

	v.Check(len(symbols) > 0, "symbols", "at least one symbol is required")
	v.Check(len(symbols) <= MaxQuoteSymbols, "symbols", "at most 100 symbols per request")
	if !v.Valid() {
		return nil, apperrors.NewValidationError(v.Error(), nil)
	}
	return symbols, nil
}
