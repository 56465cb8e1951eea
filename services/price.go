package services

import (
	"regexp"
	"strconv"
	"strings"

	"room-triage/models"
	"room-triage/utils"
)

// AvgWeeksInMonth converts a weekly rent to a monthly one.
const AvgWeeksInMonth = 365.0 / 7 / 12

var (
	// weeklyRegexp captures the currency symbol and amount of a "£200 pw" price
	weeklyRegexp = regexp.MustCompile(`([^\d])([\d.,]+)\s*pw`)
	// monthlyRegexp captures the currency symbol and amount of a "£850 pcm" price
	monthlyRegexp = regexp.MustCompile(`([^\d])([\d.,]+)\s*pcm`)
)

// PriceNormalizer turns advertised rents into monthly figures.
type PriceNormalizer struct {
	logger *utils.Logger
}

// NewPriceNormalizer creates a PriceNormalizer with the given logger.
func NewPriceNormalizer(logger *utils.Logger) *PriceNormalizer {
	return &PriceNormalizer{logger: logger}
}

// NormalizeAll normalizes every raw price in order.
func (n *PriceNormalizer) NormalizeAll(raw []string) []models.Price {
	prices := make([]models.Price, 0, len(raw))
	for _, r := range raw {
		prices = append(prices, n.Normalize(r))
	}
	return prices
}

// Normalize parses one price.
// Examples:
//
//	"£200 pw"  → "£869 pcm", 869
//	"£850 pcm" → "£850 pcm", 850
//	"POA"      → "POA", -1
func (n *PriceNormalizer) Normalize(raw string) models.Price {
	if raw == models.Missing {
		return models.Price{Original: models.Missing, Monthly: models.Missing, MonthlyAmount: models.MissingAmount}
	}

	text := strings.TrimSpace(raw)
	monthly := text
	if strings.HasSuffix(text, "pw") {
		if m := weeklyRegexp.FindStringSubmatch(text); m != nil {
			if weekly, ok := parseAmount(m[2]); ok {
				monthly = m[1] + strconv.Itoa(int(weekly*AvgWeeksInMonth)) + " pcm"
			}
		}
	}

	m := monthlyRegexp.FindStringSubmatch(monthly)
	if m == nil {
		n.logger.Warn("[price] Error parsing price %q", raw)
		return unparsed(raw, monthly, text)
	}
	amount, ok := parseAmount(m[2])
	if !ok {
		n.logger.Warn("[price] Error parsing amount in %q", raw)
		return unparsed(raw, monthly, text)
	}
	return models.Price{Original: raw, Monthly: monthly, MonthlyAmount: int(amount)}
}

// unparsed keeps raw as it was unless a weekly conversion already rewrote it.
func unparsed(raw, monthly, text string) models.Price {
	if monthly == text {
		monthly = raw
	}
	return models.Price{Original: raw, Monthly: monthly, MonthlyAmount: models.MissingAmount}
}

// parseAmount reads "1,200" or "850.50", dropping thousands separators.
func parseAmount(s string) (float64, bool) {
	s = strings.Trim(strings.ReplaceAll(s, ",", ""), ".")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
