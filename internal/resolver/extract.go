package resolver

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	itemPathPattern   = regexp.MustCompile(`item/(\d+)\.html`)
	productIDsPattern = regexp.MustCompile(`productIds=(\d+)`)
	mobilePathPattern = regexp.MustCompile(`/(\d+)\.html`)
	longIDPattern     = regexp.MustCompile(`/(\d{10,})\.html`)
	digitsOnly        = regexp.MustCompile(`^\d+$`)
)

// ExtractProductID returns the product ID embedded in rawURL, or "".
//
// Patterns are tried in priority order: the productIds and itemId query
// parameters, the redirectUrl and xman_goto wrapped links, the desktop
// /item/<id>.html path, the mobile /<id>.html path, and finally any
// /<10+ digits>.html in the whole string.
func ExtractProductID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	q := u.Query()

	if v := q.Get("productIds"); v != "" {
		first := strings.TrimSpace(strings.SplitN(v, ",", 2)[0])
		if digitsOnly.MatchString(first) {
			return first
		}
	}

	if v := strings.TrimSpace(q.Get("itemId")); digitsOnly.MatchString(v) {
		return v
	}

	for _, param := range []string{"redirectUrl", "xman_goto"} {
		if v := q.Get(param); v != "" {
			if id := idFromWrappedLink(v); id != "" {
				return id
			}
		}
	}

	if m := itemPathPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	if m := mobilePathPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1]
	}
	if m := longIDPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}

	return ""
}

// idFromWrappedLink searches a link carried inside a query parameter.
// Such links arrive encoded twice, so one more unescape is applied.
func idFromWrappedLink(v string) string {
	if decoded, err := url.QueryUnescape(v); err == nil {
		v = decoded
	}
	if m := itemPathPattern.FindStringSubmatch(v); m != nil {
		return m[1]
	}
	if m := productIDsPattern.FindStringSubmatch(v); m != nil {
		return m[1]
	}
	return ""
}
