package services

import (
	"regexp"
	"strconv"
	"strings"

	"room-triage/config"
	"room-triage/models"
)

// Reason explains why a listing was rejected. The zero value means accepted.
type Reason string

const (
	Accepted               Reason = ""
	RejectTooFar           Reason = "too far"
	RejectTooExpensive     Reason = "too expensive"
	RejectUnfurnished      Reason = "unfurnished"
	RejectNoLivingRoom     Reason = "no living room"
	RejectTooManyFlatmates Reason = "too many flatmates"
	RejectTooManyBedrooms  Reason = "too many bedrooms"
)

// OK reports whether the listing was accepted.
func (r Reason) OK() bool { return r == Accepted }

var leadingIntRegexp = regexp.MustCompile(`^\s*(\d+)`)

// Validator applies the suitability rules in a fixed order and stops at the
// first failure. A field holding models.Missing never causes a rejection.
type Validator struct {
	th config.Thresholds
}

// NewValidator creates a Validator for the given thresholds.
func NewValidator(th config.Thresholds) *Validator {
	return &Validator{th: th}
}

// Validate checks l and, when non-empty, its commute distances.
func (v *Validator) Validate(l *models.Listing, distances []models.Distance) Reason {
	for _, d := range distances {
		best, ok := d.BestRoute()
		if !ok || best.DurationMinutes > v.th.MaxCommuteMinutes {
			return RejectTooFar
		}
	}

	if v.allPricesOverCap(l.Prices) {
		return RejectTooExpensive
	}

	if present(l.Furnishings) && strings.EqualFold(strings.TrimSpace(l.Furnishings), "Unfurnished") {
		return RejectUnfurnished
	}

	if present(l.LivingRoom) && strings.EqualFold(strings.TrimSpace(l.LivingRoom), "No") {
		return RejectNoLivingRoom
	}

	if v.th.MaxFlatmates >= 0 {
		if n, ok := leadingInt(l.Flatmates); ok && n > v.th.MaxFlatmates {
			return RejectTooManyFlatmates
		}
	}

	if v.th.MaxBedrooms >= 0 {
		if n, ok := leadingInt(l.TotalRooms); ok && n > v.th.MaxBedrooms {
			return RejectTooManyBedrooms
		}
	}

	return Accepted
}

// allPricesOverCap is true only when at least one price parsed and every
// parsed price is above the cap. Unparsed prices carry no opinion.
func (v *Validator) allPricesOverCap(prices []models.Price) bool {
	parsed := 0
	for _, p := range prices {
		if !p.Parsed() {
			continue
		}
		parsed++
		if p.MonthlyAmount <= v.th.MaxMonthlyPrice {
			return false
		}
	}
	return parsed > 0
}

func present(field string) bool {
	return field != models.Missing && strings.TrimSpace(field) != ""
}

func leadingInt(field string) (int, bool) {
	if !present(field) {
		return 0, false
	}
	m := leadingIntRegexp.FindStringSubmatch(field)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
