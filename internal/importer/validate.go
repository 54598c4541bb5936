package importer

import (
	"math"
	"strconv"
	"strings"
)

// Validation messages match the wording surfaced in error reports.
const (
	msgSKURequired  = "SKU is required."
	msgNameRequired = "Name is required."
	msgPriceInvalid = "Price must be a valid number."
	msgStockInvalid = "Stock must be a valid integer."
)

// expectedHeader is the fixed 4-column layout every source file must declare.
var expectedHeader = []string{"sku", "name", "price", "stock"}

// validateRow checks the trimmed fields of a data row and returns one message
// per violated rule, in a stable order.
func validateRow(sku, name, price, stock string) []string {
	var msgs []string
	if sku == "" {
		msgs = append(msgs, msgSKURequired)
	}
	if name == "" {
		msgs = append(msgs, msgNameRequired)
	}
	if !isNumeric(price) {
		msgs = append(msgs, msgPriceInvalid)
	}
	if !isNumeric(stock) {
		msgs = append(msgs, msgStockInvalid)
	}
	return msgs
}

// isNumeric reports whether s parses as a finite number.
func isNumeric(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false
	}
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// validHeader checks that the row has at least four fields and that the first
// four, trimmed and case-insensitive, are sku, name, price, stock in order.
func validHeader(fields []string) bool {
	if len(fields) < len(expectedHeader) {
		return false
	}
	for i, want := range expectedHeader {
		if !strings.EqualFold(strings.TrimSpace(fields[i]), want) {
			return false
		}
	}
	return true
}

// fieldAt returns the trimmed field at index i, or def when the row is too
// short.
func fieldAt(row []string, i int, def string) string {
	if i >= len(row) {
		return def
	}
	return strings.TrimSpace(row[i])
}
