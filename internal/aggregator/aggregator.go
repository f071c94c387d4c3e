// Package aggregator implements C3: filtering a TE listings payload down
// to the "eligible" set and computing min/avg/max/count. Every numeric
// field off the wire is string-typed, so eligibility checks coerce each
// one defensively before comparing rather than trusting the JSON shape.
package aggregator

import (
	"strings"

	"github.com/Nick-Wu5/HistoricalTicketData/internal/teclient"

	"github.com/shopspring/decimal"
)

var nonBuyablePhrases = []string{
	"will be rejected",
	"accepted but not fulfilled",
	"will be accepted but not fulfilled",
	"will remain pending",
	"not fulfilled",
}

// Result is the aggregate for one hour-bucket/event pair, or the zero
// value (HasAggregate=false, ListingCount=0) when no listing qualified.
type Result struct {
	Min           decimal.Decimal
	Avg           decimal.Decimal
	Max           decimal.Decimal
	ListingCount  int
	HasAggregate  bool
}

// Aggregate converts a TE listings payload into an HourlyPrice aggregate.
// Returns HasAggregate=false when zero listings pass eligibility.
func Aggregate(listings []teclient.Listing) Result {
	var prices []decimal.Decimal
	for _, l := range listings {
		price, ok := eligiblePrice(l)
		if !ok {
			continue
		}
		prices = append(prices, price)
	}

	if len(prices) == 0 {
		return Result{}
	}

	min, max, sum := prices[0], prices[0], decimal.Zero
	for _, p := range prices {
		if p.LessThan(min) {
			min = p
		}
		if p.GreaterThan(max) {
			max = p
		}
		sum = sum.Add(p)
	}
	avg := sum.DivRound(decimal.NewFromInt(int64(len(prices))), 2)

	return Result{
		Min:          min.Round(2),
		Avg:          avg,
		Max:          max.Round(2),
		ListingCount: len(prices),
		HasAggregate: true,
	}
}

// eligiblePrice applies spec §4.3's five-part predicate to one listing
// and returns its parsed retail price when it passes.
func eligiblePrice(l teclient.Listing) (decimal.Decimal, bool) {
	if l.Type != "event" {
		return decimal.Zero, false
	}

	combinedNotes := strings.ToLower(l.PublicNotes + " " + l.Notes)
	for _, phrase := range nonBuyablePhrases {
		if strings.Contains(combinedNotes, phrase) {
			return decimal.Zero, false
		}
	}

	raw := strings.TrimSpace(l.RetailPrice.String())
	if raw == "" {
		// Some TE endpoints omit retail_price and carry the same value
		// under price instead.
		raw = strings.TrimSpace(l.Price.String())
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	if price.LessThanOrEqual(decimal.Zero) || price.GreaterThanOrEqual(decimal.NewFromInt(100000)) {
		return decimal.Zero, false
	}

	qty, err := decimal.NewFromString(strings.TrimSpace(l.AvailableQuantity.String()))
	if err != nil || !qty.IsInteger() {
		return decimal.Zero, false
	}
	qtyInt := qty.IntPart()
	if qtyInt < 2 || qtyInt >= 10000 {
		return decimal.Zero, false
	}

	if !containsSplit(l.Splits, 2) {
		return decimal.Zero, false
	}

	return price, true
}

func containsSplit(splits []int, target int) bool {
	for _, s := range splits {
		if s == target {
			return true
		}
	}
	return false
}
