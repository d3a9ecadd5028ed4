// Package orders turns assistant order confirmations into priced order
// records and keeps the local order history.
package orders

import (
	"regexp"
	"strconv"
	"strings"
)

// ConfirmedOrder is what an assistant confirmation states about an order.
// A zero price means the reply did not carry a usable one.
type ConfirmedOrder struct {
	MedicineName string
	Quantity     int
	UnitPrice    float64
	TotalPrice   float64
}

// Extractor recognizes order confirmations in assistant replies.
type Extractor interface {
	Extract(reply string) (ConfirmedOrder, bool)
}

const (
	// A name runs to the end of its line or to the next field label, so
	// abbreviations like "Tab." or "Vit." stay part of it.
	labelStop = `(?:\.?\s*$|\.?\s+(?:quantity|unit\s+price|total|price)\b)`
	amount    = `(?:INR|Rs\.?|₹)?\s*(\d+(?:\.\d+)?)\s*(?:INR)?`
)

var (
	confirmedPattern  = regexp.MustCompile(`(?i)\border\s+confirmed\b`)
	medicinePattern   = regexp.MustCompile(`(?im)\bmedicine(?:\s+name)?\s*:\s*([^\n]+?)\s*` + labelStop)
	quantityPattern   = regexp.MustCompile(`(?i)\bquantity(?:\s+ordered)?\s*:\s*(\d+)\b`)
	unitPricePattern  = regexp.MustCompile(`(?i)\bunit\s+price\s*:\s*` + amount)
	totalPricePattern = regexp.MustCompile(`(?i)\btotal(?:\s+price)?\s*:\s*` + amount)
)

// RegexpExtractor matches labeled fields ("Medicine:", "Quantity Ordered:",
// "Unit Price:", "Total Price:") after an "Order confirmed" marker.
type RegexpExtractor struct{}

// Extract returns the confirmed order, or false unless the reply has the
// confirmation marker, a medicine name and a positive quantity.
func (RegexpExtractor) Extract(reply string) (ConfirmedOrder, bool) {
	if !confirmedPattern.MatchString(reply) {
		return ConfirmedOrder{}, false
	}

	m := medicinePattern.FindStringSubmatch(reply)
	if m == nil {
		return ConfirmedOrder{}, false
	}
	name := strings.TrimRight(strings.TrimSpace(m[1]), ".,;:!")
	if name == "" {
		return ConfirmedOrder{}, false
	}

	q := quantityPattern.FindStringSubmatch(reply)
	if q == nil {
		return ConfirmedOrder{}, false
	}
	qty, err := strconv.Atoi(q[1])
	if err != nil || qty <= 0 {
		return ConfirmedOrder{}, false
	}

	return ConfirmedOrder{
		MedicineName: name,
		Quantity:     qty,
		UnitPrice:    matchAmount(unitPricePattern, reply),
		TotalPrice:   matchAmount(totalPricePattern, reply),
	}, true
}

// ExtractConfirmedOrder runs the default extractor.
func ExtractConfirmedOrder(reply string) (ConfirmedOrder, bool) {
	return RegexpExtractor{}.Extract(reply)
}

func matchAmount(re *regexp.Regexp, text string) float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
