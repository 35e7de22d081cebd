package domain

// ResolvedIdentifier is the outcome of resolving raw user input to a product.
// ID is empty when no product ID could be extracted.
type ResolvedIdentifier struct {
	ID       string `json:"id,omitempty"`
	FinalURL string `json:"final_url,omitempty"`
}

// HasID reports whether a product ID was extracted.
func (r ResolvedIdentifier) HasID() bool {
	return r.ID != ""
}

// FetchMethod records which preview source produced a ProductPreview.
type FetchMethod string

const (
	FetchMethodAPI            FetchMethod = "api"
	FetchMethodMicrolink      FetchMethod = "microlink"
	FetchMethodLinkPreviewXyz FetchMethod = "linkpreview_xyz"
	FetchMethodScrape         FetchMethod = "scrape"
	FetchMethodNone           FetchMethod = "none"
)

// Valid returns true if the fetch method is one of the known values.
func (m FetchMethod) Valid() bool {
	switch m {
	case FetchMethodAPI, FetchMethodMicrolink, FetchMethodLinkPreviewXyz, FetchMethodScrape, FetchMethodNone:
		return true
	}
	return false
}

// PlaceholderPrice is the price shown when no source reported one.
const PlaceholderPrice = "see link"

// ProductPreview is a normalized product summary.
type ProductPreview struct {
	Title         string      `json:"title"`
	ImageURL      string      `json:"image_url,omitempty"`
	Price         string      `json:"price"`
	OriginalPrice string      `json:"original_price,omitempty"`
	Discount      string      `json:"discount,omitempty"`
	Currency      string      `json:"currency,omitempty"`
	ShopName      string      `json:"shop_name,omitempty"`
	Rating        string      `json:"rating,omitempty"`
	Orders        string      `json:"orders,omitempty"`
	FetchMethod   FetchMethod `json:"fetch_method"`
}

// NewPlaceholderPreview returns the preview used when every source failed.
func NewPlaceholderPreview(productID string) ProductPreview {
	return ProductPreview{
		Title:       "AliExpress product #" + productID,
		Price:       PlaceholderPrice,
		FetchMethod: FetchMethodNone,
	}
}

// HasImage reports whether the preview carries an image.
func (p ProductPreview) HasImage() bool {
	return p.ImageURL != ""
}

// PromoSlot names one promotional campaign surface.
type PromoSlot string

const (
	PromoSlotCoin  PromoSlot = "coin"
	PromoSlotPoint PromoSlot = "point"
	PromoSlotSuper PromoSlot = "super"
	PromoSlotLimit PromoSlot = "limit"
	PromoSlotTher3 PromoSlot = "ther3"
)

// SourceType binds a promotion source type code to its slot.
type SourceType struct {
	Code string
	Slot PromoSlot
}

// SourceTypes lists every promotion surface in request order.
var SourceTypes = []SourceType{
	{Code: "555", Slot: PromoSlotCoin},
	{Code: "620", Slot: PromoSlotPoint},
	{Code: "562", Slot: PromoSlotSuper},
	{Code: "570", Slot: PromoSlotLimit},
	{Code: "561", Slot: PromoSlotTher3},
}

// PromotionLinkSet holds one nullable promotion link per slot.
// All five slots are always serialized, nil values as JSON null.
type PromotionLinkSet struct {
	Coin  *string `json:"coin"`
	Point *string `json:"point"`
	Super *string `json:"super"`
	Limit *string `json:"limit"`
	Ther3 *string `json:"ther3"`
}

// Set stores url in slot. An empty url clears the slot.
func (s *PromotionLinkSet) Set(slot PromoSlot, url string) {
	var v *string
	if url != "" {
		v = &url
	}
	switch slot {
	case PromoSlotCoin:
		s.Coin = v
	case PromoSlotPoint:
		s.Point = v
	case PromoSlotSuper:
		s.Super = v
	case PromoSlotLimit:
		s.Limit = v
	case PromoSlotTher3:
		s.Ther3 = v
	}
}

// Get returns the link in slot, or "" if it is null.
func (s PromotionLinkSet) Get(slot PromoSlot) string {
	var v *string
	switch slot {
	case PromoSlotCoin:
		v = s.Coin
	case PromoSlotPoint:
		v = s.Point
	case PromoSlotSuper:
		v = s.Super
	case PromoSlotLimit:
		v = s.Limit
	case PromoSlotTher3:
		v = s.Ther3
	}
	if v == nil {
		return ""
	}
	return *v
}

// Count returns the number of non-null slots.
func (s PromotionLinkSet) Count() int {
	n := 0
	for _, st := range SourceTypes {
		if s.Get(st.Slot) != "" {
			n++
		}
	}
	return n
}

// AffiliateResult combines promotion links and a product preview.
type AffiliateResult struct {
	ProductID string           `json:"product_id"`
	Aff       PromotionLinkSet `json:"aff"`
	Preview   ProductPreview   `json:"previews"`
}
