package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-hardware-checkout/internal/catalog"
	"github.com/ariefcatur/go-hardware-checkout/internal/stockwatch"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProductAdder interface {
	AddProduct(ctx context.Context, req catalog.AddProductRequest) (*catalog.AddProductResponse, error)
}

type ProductsHandler struct {
	Search  catalog.Searcher
	Catalog ProductAdder
	Restock redis.Cmdable // optional, serves the restock board
	Log     *zap.Logger
}

type addProductReq struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Image       string           `json:"image"`
	ImageBase64 string           `json:"image_base64"`
}

func (h *ProductsHandler) Register(r chi.Router) {
	r.Get("/api/products/search", h.search)
	r.Post("/api/products", h.addProduct)
	if h.Restock != nil {
		r.Get("/api/restock", h.restockBoard)
	}
}

func (h *ProductsHandler) search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "missing search query"})
		return
	}

	out, err := h.Search.Search(r.Context(), q)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if len(out) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "no products found", "results": []catalog.Product{}})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProductsHandler) addProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	if strings.TrimSpace(req.Name) == "" || req.Price == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "name and price are required"})
		return
	}
	image := req.ImageBase64
	if image == "" {
		image = req.Image
	}

	resp, err := h.Catalog.AddProduct(r.Context(), catalog.AddProductRequest{
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
		ImageBase64: image,
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": resp.Message, "product_id": resp.ProductID})
}

func (h *ProductsHandler) restockBoard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	board, err := stockwatch.Board(r.Context(), h.Restock, limit)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}
