package publisher

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iconidentify/aliaff/internal/config"
)

var amountPattern = regexp.MustCompile(`\d[\d.,]*`)

// DealMessage is the content of a single product post.
type DealMessage struct {
	Title         string
	Price         string
	OriginalPrice string
	Discount      string
	Link          string
	Coupon        string
}

// FormatDeal renders deal as a channel caption using the phrases in tmpl.
// When no discount is given it is derived from the original price.
func FormatDeal(deal DealMessage, tmpl config.MessageConfig) string {
	var b strings.Builder

	b.WriteString(strings.TrimSpace(tmpl.Prefix + " " + deal.Title))
	b.WriteString("\n\n")

	b.WriteString(strings.TrimSpace(tmpl.SalePrice + " " + deal.Price))
	discount := strings.TrimSpace(deal.Discount)
	if discount == "" {
		if pct, ok := DiscountPercent(deal.Price, deal.OriginalPrice); ok {
			discount = pct.String() + "%"
		}
	}
	if discount != "" {
		if !strings.HasPrefix(discount, "-") {
			discount = "-" + discount
		}
		b.WriteString(" (" + discount + ")")
	}
	b.WriteString("\n\n")

	b.WriteString(tmpl.LinkText + "\n" + deal.Link + "\n\n")

	if deal.Coupon != "" {
		b.WriteString(strings.TrimSpace(tmpl.CouponText+" "+deal.Coupon) + "\n\n")
	}

	if tmpl.Footer != "" {
		b.WriteString(tmpl.Footer + "\n")
	}
	if tmpl.BotLink != "" {
		b.WriteString("🔗 " + tmpl.BotLink + "\n")
	}
	if tmpl.Footer != "" || tmpl.BotLink != "" {
		b.WriteString("\n")
	}
	b.WriteString(tmpl.Hashtags)

	return strings.TrimSpace(b.String())
}

// DiscountPercent returns the whole percent saved from original to sale.
// Both values may carry currency symbols. It reports false when either
// price is missing or the sale price is not lower.
func DiscountPercent(sale, original string) (decimal.Decimal, bool) {
	s, ok := parseAmount(sale)
	if !ok {
		return decimal.Zero, false
	}
	o, ok := parseAmount(original)
	if !ok || !o.IsPositive() || s.GreaterThanOrEqual(o) {
		return decimal.Zero, false
	}

	pct := o.Sub(s).Div(o).Mul(decimal.NewFromInt(100)).Round(0)
	if !pct.IsPositive() {
		return decimal.Zero, false
	}
	return pct, true
}

func parseAmount(v string) (decimal.Decimal, bool) {
	m := amountPattern.FindString(v)
	if m == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(normalizeAmount(strings.TrimRight(m, ".,")))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// normalizeAmount turns "1,299.00", "1.299,00" and "7,50" into plain
// decimal strings. The last separator is the decimal point when both kinds
// appear; a lone comma is decimal only with one or two digits after it.
func normalizeAmount(m string) string {
	dot, comma := strings.LastIndex(m, "."), strings.LastIndex(m, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		m = strings.ReplaceAll(m, ".", "")
		return strings.Replace(m, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		return strings.ReplaceAll(m, ",", "")
	case comma >= 0 && strings.Count(m, ",") == 1 && len(m)-comma-1 <= 2:
		return strings.Replace(m, ",", ".", 1)
	default:
		return strings.ReplaceAll(m, ",", "")
	}
}
