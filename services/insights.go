package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"room-triage/models"
	"room-triage/utils"
)

// InsightReport summarises the scored listings.
type InsightReport struct {
	TotalListings    int
	PricedListings   int
	AveragePrice     float64
	MinPrice         int
	MaxPrice         int
	Cheapest         *models.ScoredListing
	TopScored        []models.ScoredListing
	TopScores        []int
	ListingsBySender map[string]int
}

type InsightService struct {
	scorer Scorer
	logger *utils.Logger
}

func NewInsightService(scorer Scorer, logger *utils.Logger) *InsightService {
	return &InsightService{scorer: scorer, logger: logger}
}

// cheapestPrice returns the lowest parsed monthly amount of a listing.
func cheapestPrice(l *models.Listing) (int, bool) {
	best, found := 0, false
	for _, p := range l.Prices {
		if !p.Parsed() {
			continue
		}
		if !found || p.MonthlyAmount < best {
			best, found = p.MonthlyAmount, true
		}
	}
	return best, found
}

func (s *InsightService) Generate(listings []models.ScoredListing) *InsightReport {
	report := &InsightReport{
		ListingsBySender: make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)
	s.logger.Debug("[insights] Generating report for %d listings", len(listings))

	var total int
	for i := range listings {
		l := &listings[i]
		sender := l.Sender()
		if sender == "" {
			sender = "(search)"
		}
		report.ListingsBySender[sender]++

		price, ok := cheapestPrice(&l.Listing)
		if !ok {
			continue
		}
		report.PricedListings++
		total += price
		if report.PricedListings == 1 || price < report.MinPrice {
			report.MinPrice = price
			report.Cheapest = l
		}
		if price > report.MaxPrice {
			report.MaxPrice = price
		}
	}

	if report.PricedListings > 0 {
		report.AveragePrice = round2(float64(total) / float64(report.PricedListings))
	}

	// Top 5 by score
	ranked, scores := s.scorer.Rank(listings)
	if len(ranked) > 5 {
		ranked, scores = ranked[:5], scores[:5]
	}
	report.TopScored = ranked
	report.TopScores = scores

	return report
}

func (s *InsightService) Print(w io.Writer, r *InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  ROOM TRIAGE INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Scored listings      : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Fprintf(w, "  Listings with prices : \033[1m%d\033[0m\n", r.PricedListings)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Price Statistics (per month, cheapest room)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.PricedListings > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m£%.2f\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : \033[1;32m£%d\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : \033[1;32m£%d\033[0m\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if r.Cheapest != nil {
		fmt.Fprintf(w, "\033[1;33m  Cheapest Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  #%d %s\n", r.Cheapest.Index, truncate(r.Cheapest.Title, 48))
		fmt.Fprintf(w, "  %s\n", r.Cheapest.URL)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Top 5 by Commute Score\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.TopScored) == 0 {
		fmt.Fprintf(w, "  No scored listings found\n")
	} else {
		for i, l := range r.TopScored {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m #%-4d %-38s \033[1;32m%d\033[0m\n",
				i+1, l.Index, truncate(l.Title, 38), r.TopScores[i])
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Listings by Sender\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	type senderCount struct {
		sender string
		count  int
	}
	var senders []senderCount
	for sender, cnt := range r.ListingsBySender {
		senders = append(senders, senderCount{sender, cnt})
	}
	sort.Slice(senders, func(i, j int) bool {
		if senders[i].count != senders[j].count {
			return senders[i].count > senders[j].count
		}
		return senders[i].sender < senders[j].sender
	})
	if len(senders) == 0 {
		fmt.Fprintf(w, "  No listings\n")
	}
	for _, sc := range senders {
		bar := strings.Repeat("█", sc.count)
		fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(sc.sender, 28), bar, sc.count)
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
