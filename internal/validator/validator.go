package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shyamanurag/stock-trading-app-sub000/internal/models"
)

var symbolRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)

type Validator struct {
	Errors map[string]string
}

func New() *Validator {
	return &Validator{Errors: make(map[string]string)}
}

func (v *Validator) Valid() bool {
	return len(v.Errors) == 0
}

func (v *Validator) AddError(key, message string) {
	if _, exists := v.Errors[key]; !exists {
		v.Errors[key] = message
	}
}

func (v *Validator) Check(ok bool, key, message string) {
	if !ok {
		v.AddError(key, message)
	}
}

// Error joins the collected messages in a stable order.
func (v *Validator) Error() string {
	parts := make([]string, 0, len(v.Errors))
	for _, key := range []string{"symbol", "symbols", "quantity", "page", "page_size"} {
		if msg, ok := v.Errors[key]; ok {
			parts = append(parts, fmt.Sprintf("%s %s", key, msg))
		}
	}
	for key, msg := range v.Errors {
		switch key {
		case "symbol", "symbols", "quantity", "page", "page_size":
		default:
			parts = append(parts, fmt.Sprintf("%s %s", key, msg))
		}
	}
	return strings.Join(parts, "; ")
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (v *Validator) ValidateSymbol(symbol string) {
	v.Check(symbolRegex.MatchString(symbol), "symbol",
		"must be 1-10 characters of A-Z, 0-9, '.' or '-'")
}

// ValidateQuantity records why q cannot be traded, if it cannot.
func (v *Validator) ValidateQuantity(q decimal.Decimal) {
	if !q.IsPositive() {
		v.AddError("quantity", "must be greater than zero")
		return
	}
	v.Check(models.Fits(q, models.QuantityPlaces), "quantity",
		fmt.Sprintf("must have at most %d decimal places", models.QuantityPlaces))
}

// IsValidSymbol is the single-field form of ValidateSymbol.
func IsValidSymbol(symbol string) bool {
	return symbolRegex.MatchString(symbol)
}
