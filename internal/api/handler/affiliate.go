package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iconidentify/aliaff/internal/domain"
)

// Affiliater turns a pasted link into a preview and promotion links.
type Affiliater interface {
	Affiliate(ctx context.Context, input, cookie string) (*domain.AffiliateResult, error)
}

// AffiliateHandler handles affiliate link requests.
type AffiliateHandler struct {
	svc    Affiliater
	logger *slog.Logger
}

// NewAffiliateHandler creates a new affiliate handler.
func NewAffiliateHandler(svc Affiliater, logger *slog.Logger) *AffiliateHandler {
	return &AffiliateHandler{
		svc:    svc,
		logger: logger,
	}
}

// AffiliateRequest is the JSON request body for link generation.
type AffiliateRequest struct {
	URL         string              `json:"url"`
	Cookie      string              `json:"cookie,omitempty"`
	Credentials *domain.Credentials `json:"credentials,omitempty"`
}

// LinksResponse lists the promotion links. Bundle repeats Ther3 under the
// name dashboards display.
type LinksResponse struct {
	Coin   *string `json:"coin"`
	Point  *string `json:"point"`
	Super  *string `json:"super"`
	Limit  *string `json:"limit"`
	Ther3  *string `json:"ther3"`
	Bundle *string `json:"bundle"`
}

// AffiliateResponse is a product preview with its promotion links.
type AffiliateResponse struct {
	ProductID     string             `json:"product_id"`
	Title         string             `json:"title"`
	Image         string             `json:"image,omitempty"`
	Price         string             `json:"price"`
	OriginalPrice string             `json:"original_price,omitempty"`
	Discount      string             `json:"discount,omitempty"`
	Currency      string             `json:"currency,omitempty"`
	ShopName      string             `json:"shop_name,omitempty"`
	Rating        string             `json:"rating,omitempty"`
	Orders        string             `json:"orders,omitempty"`
	FetchMethod   domain.FetchMethod `json:"fetch_method"`
	Links         LinksResponse      `json:"links"`
}

func toAffiliateResponse(res *domain.AffiliateResult) AffiliateResponse {
	p := res.Preview
	return AffiliateResponse{
		ProductID:     res.ProductID,
		Title:         p.Title,
		Image:         p.ImageURL,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		Discount:      p.Discount,
		Currency:      p.Currency,
		ShopName:      p.ShopName,
		Rating:        p.Rating,
		Orders:        p.Orders,
		FetchMethod:   p.FetchMethod,
		Links: LinksResponse{
			Coin:   res.Aff.Coin,
			Point:  res.Aff.Point,
			Super:  res.Aff.Super,
			Limit:  res.Aff.Limit,
			Ther3:  res.Aff.Ther3,
			Bundle: res.Aff.Ther3,
		},
	}
}

// Generate handles POST /api/v1/affiliate.
func (h *AffiliateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req AffiliateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := strings.TrimSpace(req.URL)
	if input == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	cookie := req.Cookie
	if cookie == "" && req.Credentials != nil {
		cookie = req.Credentials.Cookie
	}

	res, err := h.svc.Affiliate(r.Context(), input, cookie)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("affiliate request failed", "url", input, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toAffiliateResponse(res))
}
