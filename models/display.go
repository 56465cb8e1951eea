package models

import (
	"fmt"
	"sort"
	"strings"
)

// Field is one labelled line of a record's display form.
type Field struct {
	Label string
	Value string
}

// Fields lists the message in display order.
func (m *Message) Fields() []Field {
	return []Field{
		{"sender", m.SenderName},
		{"message", m.URL},
		{"links", strings.Join(m.ListingURLs, ", ")},
	}
}

// Fields lists the listing in display order.
func (l *Listing) Fields() []Field {
	prices := make([]string, 0, len(l.Prices))
	for _, p := range l.Prices {
		prices = append(prices, p.String())
	}
	location := Missing
	if l.Location != nil {
		location = l.Location.MapURL()
	}
	return []Field{
		{"url", l.URL},
		{"title", l.Title},
		{"unsuitable", fmt.Sprintf("%t", l.Unsuitable)},
		{"sender", l.Sender()},
		{"message", l.Origin()},
		{"prices", strings.Join(prices, ", ")},
		{"bills included", l.BillsIncluded},
		{"deposit", l.Deposit},
		{"available", l.Available},
		{"min term", l.MinTerm},
		{"max term", l.MaxTerm},
		{"furnishings", l.Furnishings},
		{"broadband", l.Broadband},
		{"living room", l.LivingRoom},
		{"flatmates", l.Flatmates},
		{"total rooms", l.TotalRooms},
		{"household gender", l.HouseholdGender},
		{"preferred gender", l.PreferredGender},
		{"occupation", l.Occupation},
		{"location", location},
	}
}

// Fields lists the scored listing: index first, then the listing, then one line per destination.
func (s *ScoredListing) Fields() []Field {
	fields := []Field{{"index", fmt.Sprintf("%d", s.Index)}}
	fields = append(fields, s.Listing.Fields()...)
	for _, d := range s.Distances {
		fields = append(fields, Field{d.Destination, d.describeRoutes()})
	}
	return fields
}

func (r Route) String() string {
	return fmt.Sprintf("%d change(s) in %d minutes (%d km)", r.Changes, r.DurationMinutes, r.DistanceKm)
}

// describeRoutes lists routes ordered by change count.
func (d Distance) describeRoutes() string {
	if len(d.Routes) == 0 {
		return "no routes"
	}
	routes := append([]Route(nil), d.Routes...)
	sort.SliceStable(routes, func(i, j int) bool { return routes[i].Changes < routes[j].Changes })
	parts := make([]string, len(routes))
	for i, r := range routes {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}

// Pretty renders fields as aligned "label: value" lines.
func Pretty(fields []Field) string {
	width := 0
	for _, f := range fields {
		if len(f.Label) > width {
			width = len(f.Label)
		}
	}
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-*s : %s", width, f.Label, f.Value)
	}
	return b.String()
}
