package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Evaluation is the structured cue set extracted from a product page.
type Evaluation struct {
	IsProduct  bool
	IsLive     bool
	PriceFound bool
	Signals    []string
}

var priceExpr = regexp.MustCompile(`\$\d{1,3}(?:,\d{3})*(?:\.\d{2})?`)

// Call-to-action phrasing a purchasable product page would carry.
var ctaPhrases = []string{
	"add to cart",
	"buy now",
	"ship it",
	"pickup",
	"add to basket",
}

var stockPositive = []string{
	"in stock",
	"available online",
	"ready to ship",
}

var stockNegative = []string{
	"out of stock",
	"sold out",
	"unavailable",
}

// Title/lead keywords that mark a page as product-domain even without
// structured data.
var productKeywords = []string{
	"trading card",
	"booster",
	"elite trainer",
	"bundle",
	"collection box",
	"console",
	"figure",
	"plush",
	"pre-order",
}

// Evaluate extracts liveness cues from an HTML document. It is pure: no
// network, no clock, the result depends only on url and html.
func Evaluate(rawURL, html string) Evaluation {
	var ev Evaluation

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Unparseable bodies still get the flat-text heuristics below.
		doc = nil
	}

	body := strings.ToLower(html)

	cta := containsAny(body, ctaPhrases)
	if cta {
		ev.Signals = append(ev.Signals, "cta")
	}

	inStock := containsAny(body, stockPositive) && !containsAny(body, stockNegative)
	if inStock {
		ev.Signals = append(ev.Signals, "in_stock_text")
	}

	if priceExpr.MatchString(html) {
		ev.PriceFound = true
		ev.Signals = append(ev.Signals, "price_seen")
	}

	jsonldProduct := hasProductJSONLD(doc)
	if jsonldProduct {
		ev.Signals = append(ev.Signals, "jsonld_product")
	}

	ev.IsProduct = jsonldProduct || titleMatchesProduct(doc)
	ev.IsLive = cta || inStock

	return ev
}

// IsLikelyProductPage gates live classification on URL shape for known
// retailer hosts, falling back to structured-data Product presence. CTA
// and price text also appear on search and category pages; the gate keeps
// those from classifying as live.
func IsLikelyProductPage(rawURL, html string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.ToLower(u.Path)

	switch host {
	case "bestbuy.com":
		return strings.Contains(path, "/site/") && strings.HasSuffix(path, ".p")
	case "target.com":
		return strings.Contains(path, "/p/")
	case "walmart.com":
		return strings.Contains(path, "/ip/")
	case "gamestop.com":
		return strings.Contains(path, "/products/")
	case "amazon.com":
		return strings.Contains(path, "/dp/") || strings.Contains(path, "/gp/product/")
	case "pokemoncenter.com":
		return strings.Contains(path, "/product/")
	case "costco.com":
		return strings.Contains(path, ".product.")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return hasProductJSONLD(doc)
}

// Bot-wall wording that marks a response body as blocked before any
// signal extraction happens.
var blockedPhrases = []string{
	"captcha",
	"are you a human",
	"verify you are human",
	"access denied",
	"bot detected",
	"request blocked",
	"pardon our interruption",
	"unusual traffic",
}

// LooksBlocked reports whether the body reads like a bot check rather
// than a product page.
func LooksBlocked(html string) bool {
	return containsAny(strings.ToLower(html), blockedPhrases)
}

func hasProductJSONLD(doc *goquery.Document) bool {
	if doc == nil {
		return false
	}
	found := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(s.Text(), "Product") {
			found = true
			return false
		}
		return true
	})
	return found
}

func titleMatchesProduct(doc *goquery.Document) bool {
	if doc == nil {
		return false
	}
	lead := strings.ToLower(doc.Find("title").Text() + " " + doc.Find("h1").First().Text())
	return containsAny(lead, productKeywords)
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
