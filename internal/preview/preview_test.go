package preview

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/iconidentify/aliaff/internal/config"
	"github.com/iconidentify/aliaff/internal/domain"
	"github.com/iconidentify/aliaff/pkg/aliexpress"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testFilter = TitleFilter{MinLength: 10, Blocklist: []string{"AliExpress", "Smarter Shopping"}}

// stubSource returns a fixed result and counts calls.
type stubSource struct {
	method domain.FetchMethod
	result *domain.ProductPreview
	err    error
	calls  atomic.Int32
}

func (s *stubSource) Method() domain.FetchMethod { return s.method }

func (s *stubSource) Fetch(ctx context.Context, productID string) (*domain.ProductPreview, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	p := *s.result
	return &p, nil
}

type stubLookup struct {
	configured bool
	product    *aliexpress.Product
	err        error
}

func (l *stubLookup) Configured() bool { return l.configured }

func (l *stubLookup) ProductDetail(ctx context.Context, productID string) (*aliexpress.Product, error) {
	return l.product, l.err
}

func TestAggregator_FirstAcceptableWins(t *testing.T) {
	api := &stubSource{method: domain.FetchMethodAPI, result: &domain.ProductPreview{Title: "Wireless Earbuds", Price: "9.99"}}
	lp := &stubSource{method: domain.FetchMethodLinkPreviewXyz, result: &domain.ProductPreview{Title: "x"}}
	ml := &stubSource{method: domain.FetchMethodMicrolink, result: &domain.ProductPreview{Title: "x"}}
	scrape := &stubSource{method: domain.FetchMethodScrape, result: &domain.ProductPreview{Title: "x"}}

	got := NewAggregator(testLogger(), api, lp, ml, scrape).Fetch(context.Background(), "1005001")

	if got.FetchMethod != domain.FetchMethodAPI {
		t.Errorf("FetchMethod = %q, want api", got.FetchMethod)
	}
	if got.Title != "Wireless Earbuds" {
		t.Errorf("Title = %q", got.Title)
	}
	for _, s := range []*stubSource{lp, ml, scrape} {
		if s.calls.Load() != 0 {
			t.Errorf("%s called %d times after api succeeded", s.method, s.calls.Load())
		}
	}
}

func TestAggregator_FallsThroughInOrder(t *testing.T) {
	api := &stubSource{method: domain.FetchMethodAPI, err: domain.ErrMissingSigningSecret}
	lp := &stubSource{method: domain.FetchMethodLinkPreviewXyz, err: ErrRejected}
	ml := &stubSource{method: domain.FetchMethodMicrolink, result: &domain.ProductPreview{Title: "Stainless Steel Mug", Price: domain.PlaceholderPrice}}
	scrape := &stubSource{method: domain.FetchMethodScrape, result: &domain.ProductPreview{Title: "x"}}

	got := NewAggregator(testLogger(), api, lp, ml, scrape).Fetch(context.Background(), "1")

	if got.FetchMethod != domain.FetchMethodMicrolink {
		t.Errorf("FetchMethod = %q, want microlink", got.FetchMethod)
	}
	if api.calls.Load() != 1 || lp.calls.Load() != 1 || ml.calls.Load() != 1 {
		t.Errorf("calls = %d/%d/%d, want 1/1/1", api.calls.Load(), lp.calls.Load(), ml.calls.Load())
	}
	if scrape.calls.Load() != 0 {
		t.Errorf("scrape called %d times", scrape.calls.Load())
	}
}

func TestAggregator_AllFailReturnsPlaceholder(t *testing.T) {
	failing := &stubSource{method: domain.FetchMethodScrape, err: errors.New("boom")}

	got := NewAggregator(testLogger(), failing).Fetch(context.Background(), "1005006")

	want := domain.ProductPreview{
		Title:       "AliExpress product #1005006",
		Price:       domain.PlaceholderPrice,
		FetchMethod: domain.FetchMethodNone,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Fetch() mismatch (-want +got):\n%s", diff)
	}
}

func TestAPISource(t *testing.T) {
	tests := []struct {
		name    string
		lookup  *stubLookup
		want    *domain.ProductPreview
		wantErr error
	}{
		{
			name:    "not configured",
			lookup:  &stubLookup{},
			wantErr: domain.ErrMissingSigningSecret,
		},
		{
			name:    "empty title rejected",
			lookup:  &stubLookup{configured: true, product: &aliexpress.Product{SalePrice: "1"}},
			wantErr: ErrRejected,
		},
		{
			name:    "lookup error",
			lookup:  &stubLookup{configured: true, err: aliexpress.ErrNoProduct},
			wantErr: aliexpress.ErrNoProduct,
		},
		{
			name: "original price fallback",
			lookup: &stubLookup{configured: true, product: &aliexpress.Product{
				Title:         "Desk Lamp",
				ImageURL:      "https://img/lamp.jpg",
				OriginalPrice: "12.00",
				Currency:      "USD",
				ShopName:      "Lights",
			}},
			want: &domain.ProductPreview{
				Title:         "Desk Lamp",
				ImageURL:      "https://img/lamp.jpg",
				Price:         "12.00",
				OriginalPrice: "12.00",
				Currency:      "USD",
				ShopName:      "Lights",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewAPISource(tt.lookup).Fetch(context.Background(), "1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Fetch() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLinkPreviewSource(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantTitle string
		wantImage string
		wantErr   bool
	}{
		{
			name:      "title with brand suffix",
			body:      `{"title":"Wireless Earbuds - AliExpress 44","image":"https://img/e.jpg"}`,
			wantTitle: "Wireless Earbuds",
			wantImage: "https://img/e.jpg",
		},
		{
			name:      "pipe suffix",
			body:      `{"title":"Desk Lamp | AliExpress"}`,
			wantTitle: "Desk Lamp",
		},
		{
			name:      "image only gets placeholder title",
			body:      `{"image":"https://img/x.jpg"}`,
			wantTitle: "AliExpress product #77",
			wantImage: "https://img/x.jpg",
		},
		{
			name:    "nothing useful",
			body:    `{"description":"hello"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("url"); got != "https://www.aliexpress.com/item/77.html" {
					t.Errorf("url param = %q", got)
				}
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			got, err := NewLinkPreviewSource(server.URL, time.Second, "ua").Fetch(context.Background(), "77")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if got.Title != tt.wantTitle || got.ImageURL != tt.wantImage {
				t.Errorf("got title %q image %q", got.Title, got.ImageURL)
			}
			if got.Price != domain.PlaceholderPrice {
				t.Errorf("Price = %q", got.Price)
			}
		})
	}
}

func TestMicrolinkSource(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		status    int
		wantTitle string
		wantErr   bool
	}{
		{
			name:      "accepted",
			body:      `{"status":"success","data":{"title":"Stainless Steel Water Bottle - AliExpress 1420","image":{"url":"https://img/b.jpg"}}}`,
			status:    http.StatusOK,
			wantTitle: "Stainless Steel Water Bottle",
		},
		{
			name:    "boilerplate title",
			body:    `{"status":"success","data":{"title":"AliExpress - Smarter Shopping, Better Living!"}}`,
			status:  http.StatusOK,
			wantErr: true,
		},
		{
			name:    "short title",
			body:    `{"status":"success","data":{"title":"Mug"}}`,
			status:  http.StatusOK,
			wantErr: true,
		},
		{
			name:    "failed status",
			body:    `{"status":"fail"}`,
			status:  http.StatusOK,
			wantErr: true,
		},
		{
			name:    "http error",
			status:  http.StatusTooManyRequests,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("url"); got != "https://m.aliexpress.com/item/5.html" {
					t.Errorf("url param = %q", got)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			got, err := NewMicrolinkSource(server.URL, time.Second, testFilter).Fetch(context.Background(), "5")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if got.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Title, tt.wantTitle)
			}
			if got.ImageURL != "https://img/b.jpg" {
				t.Errorf("ImageURL = %q", got.ImageURL)
			}
		})
	}
}

func TestTitleFilter(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"Stainless Steel Mug", true},
		{"0123456789", false},
		{"01234567890", true},
		{"", false},
		{"Best AliExpress finds today", false},
		{"Smarter Shopping, Better Living", false},
	}
	for _, tt := range tests {
		if got := testFilter.Accept(tt.title); got != tt.want {
			t.Errorf("Accept(%q) = %v, want %v", tt.title, got, tt.want)
		}
	}
}

func TestScrapeSource_SkipsNotFoundVariant(t *testing.T) {
	var firstCalls, secondCalls atomic.Int32
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		firstCalls.Add(1)
		w.Write([]byte(`<html><head><title>Page</title></head><body><a href="/error/404.html">x</a></body></html>`))
	}))
	defer first.Close()

	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondCalls.Add(1)
		if r.URL.Path != "/item/1005006.html" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`<html><head><title>Ceramic Mug - AliExpress 13</title></head><body>
<script>window.runParams = {"data":{"productInfoComponent":{"subject":"Ceramic Coffee Mug","mainImage":"https://img/mug.jpg","price":"3.20"}}};</script>
</body></html>`))
	}))
	defer second.Close()

	src := NewScrapeSource([]string{first.URL, second.URL + "/"}, time.Second, "ua", testFilter, testLogger())
	got, err := src.Fetch(context.Background(), "1005006")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	want := &domain.ProductPreview{Title: "Ceramic Coffee Mug", ImageURL: "https://img/mug.jpg", Price: "3.20"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Fetch() mismatch (-want +got):\n%s", diff)
	}
	if firstCalls.Load() != 1 || secondCalls.Load() != 1 {
		t.Errorf("calls = %d/%d", firstCalls.Load(), secondCalls.Load())
	}
}

func TestScrapeSource_StopsAtFirstAcceptableVariant(t *testing.T) {
	var secondCalls atomic.Int32
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Ignored</title></head><body><script>window.detailData = {"item":{"title":"Leather Wallet","image":"https://img/w.jpg"}};</script></body></html>`))
	}))
	defer first.Close()
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secondCalls.Add(1)
	}))
	defer second.Close()

	got, err := NewScrapeSource([]string{first.URL, second.URL}, time.Second, "ua", testFilter, testLogger()).Fetch(context.Background(), "9")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got.Title != "Leather Wallet" || got.Price != domain.PlaceholderPrice {
		t.Errorf("got %+v", got)
	}
	if secondCalls.Load() != 0 {
		t.Errorf("second variant requested %d times", secondCalls.Load())
	}
}

func TestScrapeSource_MetaFallback(t *testing.T) {
	tests := []struct {
		name      string
		page      string
		wantTitle string
		wantImage string
		wantErr   bool
	}{
		{
			name: "og tags",
			page: `<html><head><title>x</title>
<meta property="og:title" content="Portable Bluetooth Speaker - AliExpress">
<meta property="og:image" content="https://img/s.jpg"></head></html>`,
			wantTitle: "Portable Bluetooth Speaker",
			wantImage: "https://img/s.jpg",
		},
		{
			name:      "page title when no og tags",
			page:      `<html><head><title>Mechanical Keyboard | Store</title></head></html>`,
			wantTitle: "Mechanical Keyboard",
		},
		{
			name:    "generic title rejected",
			page:    `<html><head><title>AliExpress - Smarter Shopping, Better Living!</title></head></html>`,
			wantErr: true,
		},
		{
			name:    "unparseable payload and short title",
			page:    `<html><head><title>Shop</title></head><body><script>window.runParams = {broken;</script></body></html>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.page))
			}))
			defer server.Close()

			got, err := NewScrapeSource([]string{server.URL}, time.Second, "ua", testFilter, testLogger()).Fetch(context.Background(), "1")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if got.Title != tt.wantTitle || got.ImageURL != tt.wantImage {
				t.Errorf("got title %q image %q", got.Title, got.ImageURL)
			}
		})
	}
}

func TestExtractItem(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   *itemDetail
	}{
		{
			name:   "top level component",
			script: `window.runParams = {"productInfoComponent":{"subject":"A","mainImage":["https://img/a.jpg"],"price":12.5}};`,
			want:   &itemDetail{Title: "A", Image: "https://img/a.jpg", Price: "12.5"},
		},
		{
			name:   "nested component with trailing script",
			script: `window.runParams = {"data":{"productInfoComponent":{"subject":"B","meta":{"x":1}}, "other":{"y":2}}}; var z = 1;`,
			want:   &itemDetail{Title: "B"},
		},
		{
			name:   "price object",
			script: `window.detailData = {"item":{"title":"C","price":{"formatedAmount":"US $4.99"}}};`,
			want:   &itemDetail{Title: "C", Price: "US $4.99"},
		},
		{
			name:   "no known key path",
			script: `window.runParams = {"foo":{"bar":1}};`,
		},
		{
			name:   "no payload",
			script: `console.log("hi");`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractItem(tt.script)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("extractItem() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNew_AllSourcesFail(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := config.PreviewConfig{
		MicrolinkURL:       server.URL,
		MicrolinkTimeout:   time.Second,
		LinkPreviewURL:     server.URL,
		LinkPreviewTimeout: time.Second,
		ScrapeHosts:        []string{server.URL, server.URL},
		ScrapeTimeout:      time.Second,
		TitleMinLength:     10,
		TitleBlocklist:     []string{"AliExpress"},
	}
	agg := New(cfg, &stubLookup{}, testLogger())

	got := agg.Fetch(context.Background(), "1005007")
	if got.FetchMethod != domain.FetchMethodNone {
		t.Errorf("FetchMethod = %q, want none", got.FetchMethod)
	}
	if !strings.Contains(got.Title, "1005007") {
		t.Errorf("Title = %q, want product id", got.Title)
	}
	// linkpreview, microlink, two scrape variants
	if calls.Load() != 4 {
		t.Errorf("calls = %d, want 4", calls.Load())
	}
}
