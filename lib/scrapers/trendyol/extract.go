package trendyol

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"pricewatch/lib/htmlutil"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type ResultKind int

const (
	KindFailure ResultKind = iota
	KindSuccess
	KindSoldOut
)

// Result is the outcome of running the extraction chain over one fetched
// page. Exactly one of the three kinds is produced, callers are expected to
// switch over Kind rather than inspect fields for zero values.
type Result struct {
	Kind ResultKind
	// set for KindSuccess, and for KindSoldOut when a name could be found
	Name string
	// set for KindSuccess, always within the configured sanity bounds
	Price float64
	// set for KindFailure
	Reason string
}

func Success(name string, price float64) Result {
	return Result{Kind: KindSuccess, Name: name, Price: price}
}

func SoldOut(name string) Result {
	return Result{Kind: KindSoldOut, Name: name}
}

func Failure(reason string) Result {
	return Result{Kind: KindFailure, Reason: reason}
}

// Extractor recovers (name, price, availability) from product page markup
// through an ordered chain of heuristics. Markup is not contractually
// stable, so every tier is best-effort and "nothing found" is an expected
// outcome rather than a bug.
type Extractor struct {
	// candidates outside [MinPrice, MaxPrice] are rejected as likely
	// non-price content (ids, quantities)
	MinPrice float64
	MaxPrice float64
}

const (
	DefaultMinPrice = 0.01
	DefaultMaxPrice = 100000
)

func NewExtractor(minPrice, maxPrice float64) Extractor {
	if minPrice <= 0 {
		minPrice = DefaultMinPrice
	}
	if maxPrice <= 0 {
		maxPrice = DefaultMaxPrice
	}
	return Extractor{MinPrice: minPrice, MaxPrice: maxPrice}
}

const soldOutLabel = "Tükendi"

func (e Extractor) Extract(ctx context.Context, page []byte) Result {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return Failure("could not parse page")
	}

	name := extractName(doc)

	// availability comes before price on purpose: a sold out page may
	// carry a stale or zero price that must not be read as a price drop
	if isSoldOut(doc) {
		return SoldOut(name)
	}

	if name == "" {
		return Failure("could not extract product name")
	}

	price, ok := e.extractPrice(ctx, doc)
	if !ok {
		return Failure("could not extract price")
	}
	return Success(name, price)
}

func isSoldOut(doc *goquery.Document) bool {
	found := false
	doc.Find("button").EachWithBreak(func(_ int, button *goquery.Selection) bool {
		_, disabled := button.Attr("disabled")
		class := button.AttrOr("class", "")
		marked := disabled || strings.Contains(class, "sold-out")
		if marked && strings.Contains(button.Text(), soldOutLabel) {
			found = true
			return false
		}
		return true
	})
	return found
}

// name extraction fallback chain: the structured product title block,
// then any heading, then the document title.
func extractName(doc *goquery.Document) string {
	title := doc.Find("h1.pr-new-br").First()
	if title.Length() > 0 {
		brand := htmlutil.CleanText(title.Find("a.product-brand-name-with-link").First().Text())
		desc := htmlutil.CleanText(title.Find("span").First().Text())
		if brand != "" && desc != "" {
			return brand + " " + desc
		}
		if text := htmlutil.CleanText(title.Text()); text != "" {
			return text
		}
	}

	if text := htmlutil.CleanText(doc.Find("h1").First().Text()); text != "" {
		return text
	}

	docTitle := doc.Find("title").First().Text()
	name, _, _ := strings.Cut(docTitle, "-")
	return htmlutil.CleanText(name)
}

// the campaign price is checked before the standard one since it reflects
// the actual payable amount when present
var priceSelectors = []string{
	"p.campaign-price",
	"span.prc-dsc",
}

var scriptPriceRegex = regexp.MustCompile(`"discountedPrice"\s*:\s*\{[^}]*"value"\s*:\s*([0-9.]+)`)

var currencyTextRegex = regexp.MustCompile(`([\d.,]+)\s*(?:TL|₺)`)

func (e Extractor) extractPrice(ctx context.Context, doc *goquery.Document) (float64, bool) {
	for _, selector := range priceSelectors {
		price, ok := e.parsePrice(doc.Find(selector).First().Text())
		if ok {
			return price, true
		}
	}

	if price, ok := e.structuredDataPrice(doc); ok {
		return price, true
	}

	if price, ok := e.scriptPrice(doc); ok {
		return price, true
	}

	// last resort: scan every text node for a currency-suffixed number.
	// this tier is ambiguous (it could just as well match a shipping
	// cost), so a hit here is logged.
	var price float64
	found := false
	for _, node := range doc.Nodes {
		if found {
			break
		}
		htmlutil.WalkText(node, func(text string) {
			if found {
				return
			}
			match := currencyTextRegex.FindStringSubmatch(text)
			if match == nil {
				return
			}
			if value, ok := e.parsePrice(match[1]); ok {
				price = value
				found = true
			}
		})
	}
	if found {
		slog.DebugContext(ctx, "price recovered from raw text scan", "price", price)
		return price, true
	}

	return 0, false
}

// embedded machine-readable offer block
func (e Extractor) structuredDataPrice(doc *goquery.Document) (float64, bool) {
	var price float64
	found := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, script *goquery.Selection) bool {
		var payload struct {
			Offers struct {
				Price any `json:"price"`
			} `json:"offers"`
		}
		err := json.Unmarshal([]byte(script.Text()), &payload)
		if err != nil {
			return true
		}

		switch v := payload.Offers.Price.(type) {
		case string:
			if value, ok := e.parseOfferPrice(v); ok {
				price = value
				found = true
			}
		case float64:
			if e.withinBounds(v) {
				price = v
				found = true
			}
		}
		return !found
	})
	return price, found
}

// script-level price variable embedded in the page's initial state
func (e Extractor) scriptPrice(doc *goquery.Document) (float64, bool) {
	var price float64
	found := false
	doc.Find("script").EachWithBreak(func(_ int, script *goquery.Selection) bool {
		match := scriptPriceRegex.FindStringSubmatch(script.Text())
		if match == nil {
			return true
		}
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil || !e.withinBounds(value) {
			return true
		}
		price = value
		found = true
		return false
	})
	return price, found
}

var dotDecimalRegex = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// parseOfferPrice handles structured offer values. Conforming pages carry
// canonical dot-decimal strings ("449.90") which the locale swap would
// misread as grouping dots, so those are parsed directly; anything else
// goes through the locale normalizer.
func (e Extractor) parseOfferPrice(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if dotDecimalRegex.MatchString(text) {
		value, err := strconv.ParseFloat(text, 64)
		if err != nil || !e.withinBounds(value) {
			return 0, false
		}
		return value, true
	}
	return e.parsePrice(text)
}

var priceTextRegex = regexp.MustCompile(`[\d.,]+`)

// parsePrice normalizes a locale-formatted price string ("1.234,56 TL")
// into its numeric value. Grouping dots are dropped and the decimal comma
// becomes a decimal point.
func (e Extractor) parsePrice(text string) (float64, bool) {
	candidate := priceTextRegex.FindString(text)
	if candidate == "" {
		return 0, false
	}

	candidate = strings.ReplaceAll(candidate, ".", "")
	candidate = strings.ReplaceAll(candidate, ",", ".")

	value, err := strconv.ParseFloat(candidate, 64)
	if err != nil || !e.withinBounds(value) {
		return 0, false
	}
	return value, true
}

func (e Extractor) withinBounds(value float64) bool {
	return value >= e.MinPrice && value <= e.MaxPrice
}
