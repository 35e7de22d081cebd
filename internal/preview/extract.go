package preview

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// itemDetail is the normalized product record found inside a page payload.
type itemDetail struct {
	Title string
	Image string
	Price string
}

// payloadPatterns match the inline script assignments that carry page data.
// Templates differ by locale, so several variable names are tried.
var payloadPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)window\.runParams\s*=\s*(\{.+?\});`),
	regexp.MustCompile(`(?s)window\.detailData\s*=\s*(\{.+?\});`),
}

// itemLocator finds the product-detail object in one known payload shape.
type itemLocator func(payload map[string]any) (map[string]any, bool)

var itemLocators = []itemLocator{
	atPath("productInfoComponent"),
	atPath("data", "productInfoComponent"),
	atPath("item"),
}

func atPath(keys ...string) itemLocator {
	return func(payload map[string]any) (map[string]any, bool) {
		cur := payload
		for _, k := range keys {
			next, ok := cur[k].(map[string]any)
			if !ok {
				return nil, false
			}
			cur = next
		}
		return cur, true
	}
}

// extractItem searches script text for a page payload and returns the first
// product-detail object any locator finds.
func extractItem(script string) *itemDetail {
	for _, pattern := range payloadPatterns {
		loc := pattern.FindStringSubmatchIndex(script)
		if loc == nil {
			continue
		}

		payload, ok := decodePayload(script[loc[2]:], script[loc[2]:loc[3]])
		if !ok {
			continue
		}

		for _, locate := range itemLocators {
			if obj, ok := locate(payload); ok {
				return &itemDetail{
					Title: firstString(obj, "subject", "title"),
					Image: firstString(obj, "mainImage", "image"),
					Price: firstString(obj, "price"),
				}
			}
		}
	}
	return nil
}

// decodePayload parses the object that starts at tail. The lazy regex capture
// stops at the first "};" which may cut a nested object short, so a streaming
// decode of the full tail is tried before the trimmed capture.
func decodePayload(tail, captured string) (map[string]any, bool) {
	var payload map[string]any
	if err := json.NewDecoder(strings.NewReader(tail)).Decode(&payload); err == nil {
		return payload, true
	}

	if i := strings.LastIndex(captured, "}"); i >= 0 {
		captured = captured[:i+1]
	}
	payload = nil
	if err := json.Unmarshal([]byte(captured), &payload); err != nil {
		return nil, false
	}
	return payload, true
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringValue(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		if len(t) > 0 {
			return stringValue(t[0])
		}
	case map[string]any:
		// price objects carry a display string
		return firstString(t, "formatedAmount", "formattedAmount", "value")
	}
	return ""
}
