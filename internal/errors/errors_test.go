package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        *Error
		wantStatus int
		wantCode   string
	}{
		{"invalid quantity", NewInvalidQuantityError("quantity must be positive"), http.StatusBadRequest, "INVALID_QUANTITY"},
		{"insufficient funds", NewInsufficientFundsError("$10.00", "$5.00"), http.StatusBadRequest, "INSUFFICIENT_FUNDS"},
		{"insufficient shares", NewInsufficientSharesError("AAPL", "2", "1"), http.StatusBadRequest, "INSUFFICIENT_SHARES"},
		{"position not found", NewPositionNotFoundError("MSFT"), http.StatusBadRequest, "POSITION_NOT_FOUND"},
		{"quote unavailable", NewQuoteUnavailableError("AAPL", nil), http.StatusServiceUnavailable, "QUOTE_UNAVAILABLE"},
		{"concurrent modification", NewConcurrentModificationError("p1", nil), http.StatusConflict, "CONCURRENT_MODIFICATION"},
		{"storage fault", NewStorageFaultError("apply", nil), http.StatusInternalServerError, "STORAGE_FAULT"},
		{"not found", NewPortfolioNotFoundError("p1"), http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, tt.err.StatusCode)
			assert.Equal(t, tt.wantCode, tt.err.ErrorCode)
		})
	}
}

func TestIsMatchesByType(t *testing.T) {
	wrapped := fmt.Errorf("buy: %w", NewInsufficientFundsError("$1,500.00", "$900.00"))

	assert.True(t, stderrors.Is(wrapped, ErrInsufficientFunds))
	assert.False(t, stderrors.Is(wrapped, ErrInsufficientShares))
	assert.Equal(t, ErrorTypeInsufficientFunds, KindOf(wrapped))
	assert.Equal(t, "insufficient funds: need $1,500.00, have $900.00", FromError(wrapped).Message)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(NewConcurrentModificationError("p1", nil)))
	assert.False(t, Retryable(NewStorageFaultError("apply", stderrors.New("disk full"))))
	assert.False(t, Retryable(stderrors.New("plain")))
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	e := FromError(stderrors.New("boom"))
	assert.Equal(t, ErrorTypeInternal, e.Type)
	assert.Equal(t, http.StatusInternalServerError, e.StatusCode)
}
