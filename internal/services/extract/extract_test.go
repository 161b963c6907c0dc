package extract

import (
	"strings"
	"testing"
)

const liveProductHTML = `
<html>
<head>
<title>Scarlet Booster Bundle | MegaRetail</title>
<script type="application/ld+json">{"@type":"Product","name":"Scarlet Booster Bundle"}</script>
</head>
<body>
<h1>Scarlet Booster Bundle</h1>
<span class="price">$39.99</span>
<button>Add to Cart</button>
</body>
</html>`

const listingHTML = `
<html>
<head><title>Search results for booster</title></head>
<body>
<div class="result">Widget A $19.99</div>
<div class="result">Widget B $1,299.00</div>
<a>Add to Cart</a>
</body>
</html>`

func TestEvaluateLiveProduct(t *testing.T) {
	ev := Evaluate("https://www.bestbuy.com/site/scarlet-booster-bundle/6520001.p", liveProductHTML)

	if !ev.IsProduct {
		t.Fatalf("expected IsProduct")
	}
	if !ev.IsLive {
		t.Fatalf("expected IsLive")
	}
	if !ev.PriceFound {
		t.Fatalf("expected PriceFound")
	}
	for _, want := range []string{"cta", "price_seen", "jsonld_product"} {
		if !hasSignal(ev.Signals, want) {
			t.Fatalf("expected signal %q, got %v", want, ev.Signals)
		}
	}
}

func TestEvaluateOutOfStockSuppressesInStockText(t *testing.T) {
	html := `<html><body>In Stock? No: currently Sold Out. $59.99</body></html>`
	ev := Evaluate("https://example.com/item", html)

	if hasSignal(ev.Signals, "in_stock_text") {
		t.Fatalf("stock-negative phrasing should suppress in_stock_text, got %v", ev.Signals)
	}
	if !ev.PriceFound {
		t.Fatalf("expected PriceFound")
	}
}

func TestEvaluatePricePatterns(t *testing.T) {
	cases := []struct {
		body string
		want bool
	}{
		{"now only $39.99 each", true},
		{"$1,299.00 premium bundle", true},
		{"$5 flat", true},
		{"price upon request", false},
		{"USD 39.99", false},
	}
	for _, c := range cases {
		ev := Evaluate("https://example.com/x", "<html><body>"+c.body+"</body></html>")
		if ev.PriceFound != c.want {
			t.Fatalf("PriceFound for %q = %v, want %v", c.body, ev.PriceFound, c.want)
		}
	}
}

func TestProductPageGateKnownRetailers(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://www.bestbuy.com/site/scarlet-booster-bundle/6520001.p", true},
		{"https://www.bestbuy.com/site/searchpage.jsp?st=booster", false},
		{"https://www.target.com/p/scarlet-booster-bundle/-/A-88011122", true},
		{"https://www.target.com/c/trading-cards", false},
		{"https://www.walmart.com/ip/Scarlet-Booster-Bundle/5101010101", true},
		{"https://www.walmart.com/search?q=booster", false},
		{"https://www.amazon.com/dp/B0ABCDEFGH", true},
		{"https://www.gamestop.com/products/scarlet-bundle/355555.html", true},
	}
	for _, c := range cases {
		if got := IsLikelyProductPage(c.url, "<html></html>"); got != c.want {
			t.Fatalf("IsLikelyProductPage(%s) = %v, want %v", c.url, got, c.want)
		}
	}
}

func TestProductPageGateFallbackToStructuredData(t *testing.T) {
	if !IsLikelyProductPage("https://shop.unknownstore.example/item/42", liveProductHTML) {
		t.Fatalf("unknown host with Product JSON-LD should pass the gate")
	}
	if IsLikelyProductPage("https://shop.unknownstore.example/search?q=x", listingHTML) {
		t.Fatalf("listing page without Product JSON-LD must not pass the gate")
	}
}

func TestListingPageNeverLiveGated(t *testing.T) {
	// Dollar amounts and CTA text on a search page must not satisfy the gate.
	ev := Evaluate("https://www.walmart.com/search?q=booster", listingHTML)
	if !ev.PriceFound {
		t.Fatalf("listing page does contain price tokens")
	}
	if IsLikelyProductPage("https://www.walmart.com/search?q=booster", listingHTML) {
		t.Fatalf("search URL must not pass the product-page gate")
	}
}

func TestLooksBlocked(t *testing.T) {
	if !LooksBlocked("<html><body>Please complete the CAPTCHA to continue</body></html>") {
		t.Fatalf("captcha body should look blocked")
	}
	if !LooksBlocked("Access Denied - you don't have permission") {
		t.Fatalf("access denied body should look blocked")
	}
	if LooksBlocked(liveProductHTML) {
		t.Fatalf("product page should not look blocked")
	}
}

func TestEvaluateUnparseableBodyStillScansText(t *testing.T) {
	body := strings.Repeat("\x00", 4) + " add to cart $12.50"
	ev := Evaluate("https://example.com/x", body)
	if !hasSignal(ev.Signals, "cta") || !ev.PriceFound {
		t.Fatalf("flat-text heuristics should survive malformed HTML, got %v", ev.Signals)
	}
}

func hasSignal(signals []string, name string) bool {
	for _, s := range signals {
		if s == name {
			return true
		}
	}
	return false
}
