package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/skuflow/skuflow/internal/importer"
)

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// productJSON is the wire view of an imported product.
type productJSON struct {
	ID        int64     `json:"id"`
	ImportID  int64     `json:"import_id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleListProducts returns one page of the product table.
func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	page := parseIntParam(r, "page", 1)
	perPage := parseIntParam(r, "per_page", defaultPerPage)
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	products, err := s.products.ListProducts(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]productJSON, len(products))
	for i, p := range products {
		out[i] = toProductJSON(p)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"products": out,
		"page":     page,
		"per_page": perPage,
	})
}

func toProductJSON(p importer.Product) productJSON {
	return productJSON{
		ID:        p.ID,
		ImportID:  p.ImportID,
		SKU:       p.SKU,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
