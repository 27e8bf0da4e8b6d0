package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/arkova/catalog-core/internal/catalog/entity"
	"github.com/arkova/catalog-core/internal/httpapi"
)

// Handler exposes the catalog endpoints. Every route carries the region in
// the path: /regions/{regionID}/products etc.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func pathID(r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(key), 10, 64)
	return id, err == nil
}

// ProductRequest is the body for product create/update.
type ProductRequest struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	regionID, ok := pathID(r, "regionID")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid region id")
		return
	}
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	p, err := h.svc.CreateProduct(r.Context(), &entity.Product{
		RegionID:    regionID,
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidProduct) {
			httpapi.WriteError(w, http.StatusBadRequest, "sku and name required")
			return
		}
		h.logger.Warnw("product create failed", "region_id", regionID, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "product create failed")
		return
	}
	httpapi.WriteOK(w, http.StatusCreated, p)
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	regionID, ok := pathID(r, "regionID")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid region id")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	ps, err := h.svc.ListProducts(r.Context(), regionID, limit, offset)
	if err != nil {
		h.logger.Warnw("product list failed", "region_id", regionID, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, ps)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	regionID, ok := pathID(r, "regionID")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid region id")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	p, pairs, err := h.svc.GetProduct(r.Context(), regionID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Warnw("product get failed", "product_id", id, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to load product")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, map[string]any{"product": p, "options": pairs})
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	regionID, ok := pathID(r, "regionID")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid region id")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	err := h.svc.UpdateProduct(r.Context(), &entity.Product{
		ID: id, RegionID: regionID,
		Name: req.Name, Description: req.Description, Status: req.Status,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "product not found")
			return
		}
		h.logger.Warnw("product update failed", "product_id", id, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "product update failed")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, nil)
}

// OptionPairRequest is the body for option pair add/delete.
type OptionPairRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (h *Handler) AddOptionPair(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req OptionPairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.svc.AddOptionPair(r.Context(), id, req.Name, req.Value); err != nil {
		h.logger.Warnw("option add failed", "product_id", id, "err", err)
		httpapi.WriteError(w, http.StatusBadRequest, "option add failed")
		return
	}
	httpapi.WriteOK(w, http.StatusCreated, nil)
}

func (h *Handler) DeleteOptionPair(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var req OptionPairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.svc.DeleteOptionPair(r.Context(), id, req.Name, req.Value); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "option pair not found")
			return
		}
		h.logger.Warnw("option delete failed", "product_id", id, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "option delete failed")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, nil)
}

// PriceListRequest is the body for POST /regions/{regionID}/price-lists.
type PriceListRequest struct {
	Name      string     `json:"name"`
	Currency  string     `json:"currency"`
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
}

func (h *Handler) CreatePriceList(w http.ResponseWriter, r *http.Request) {
	regionID, ok := pathID(r, "regionID")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid region id")
		return
	}
	var req PriceListRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	pl, err := h.svc.CreatePriceList(r.Context(), &entity.PriceList{
		RegionID:  regionID,
		Name:      req.Name,
		Currency:  req.Currency,
		ValidFrom: req.ValidFrom,
		ValidTo:   req.ValidTo,
	})
	if err != nil {
		h.logger.Warnw("price list create failed", "region_id", regionID, "err", err)
		httpapi.WriteError(w, http.StatusBadRequest, "price list create failed")
		return
	}
	httpapi.WriteOK(w, http.StatusCreated, pl)
}

func (h *Handler) ListPriceLists(w http.ResponseWriter, r *http.Request) {
	regionID, ok := pathID(r, "regionID")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid region id")
		return
	}
	pls, err := h.svc.ListPriceLists(r.Context(), regionID)
	if err != nil {
		h.logger.Warnw("price list list failed", "region_id", regionID, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to list price lists")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, pls)
}

func (h *Handler) GetPriceList(w http.ResponseWriter, r *http.Request) {
	regionID, ok := pathID(r, "regionID")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid region id")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid price list id")
		return
	}
	pl, items, err := h.svc.GetPriceList(r.Context(), regionID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "price list not found")
			return
		}
		h.logger.Warnw("price list get failed", "price_list_id", id, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "failed to load price list")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, map[string]any{"price_list": pl, "items": items})
}

// PriceRequest is the body for PUT /regions/{regionID}/price-lists/{id}/items.
type PriceRequest struct {
	ProductID int64  `json:"product_id"`
	Price     string `json:"price"`
}

func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	regionID, ok := pathID(r, "regionID")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid region id")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid price list id")
		return
	}
	var req PriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.svc.SetPrice(r.Context(), regionID, id, req.ProductID, req.Price); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "price list or product not found")
			return
		}
		h.logger.Warnw("price set failed", "price_list_id", id, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "price set failed")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, nil)
}

// DeletePrice serves DELETE /regions/{regionID}/price-lists/{id}/items/{productID}.
func (h *Handler) DeletePrice(w http.ResponseWriter, r *http.Request) {
	regionID, ok := pathID(r, "regionID")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid region id")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid price list id")
		return
	}
	productID, ok := pathID(r, "productID")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	if err := h.svc.DeletePrice(r.Context(), regionID, id, productID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusNotFound, "price list item not found")
			return
		}
		h.logger.Warnw("price delete failed", "price_list_id", id, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "price delete failed")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, nil)
}

// ResolvePrice serves GET /regions/{regionID}/products/{id}/price?at=RFC3339.
func (h *Handler) ResolvePrice(w http.ResponseWriter, r *http.Request) {
	regionID, ok := pathID(r, "regionID")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid region id")
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		httpapi.WriteError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	var at time.Time
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpapi.WriteError(w, http.StatusBadRequest, "invalid at timestamp")
			return
		}
		at = parsed
	}
	rp, err := h.svc.ResolvePrice(r.Context(), regionID, id, at)
	if err != nil {
		if errors.Is(err, ErrNoActivePrice) {
			httpapi.WriteError(w, http.StatusNotFound, "no active price")
			return
		}
		h.logger.Warnw("price resolve failed", "product_id", id, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "price resolve failed")
		return
	}
	httpapi.WriteOK(w, http.StatusOK, rp)
}
