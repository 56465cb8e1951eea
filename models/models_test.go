package models

import (
	"strings"
	"testing"
)

func TestNewListingDefaultsToMissing(t *testing.T) {
	l := NewListing("https://www.spareroom.co.uk/1")
	for _, f := range l.Fields() {
		switch f.Label {
		case "url", "unsuitable", "sender", "message", "prices":
			continue
		}
		if f.Value != Missing {
			t.Errorf("field %q: got %q, want %q", f.Label, f.Value, Missing)
		}
	}
}

func TestBestRoutePicksShortestDuration(t *testing.T) {
	d := Distance{Destination: "Office", Routes: []Route{
		{Changes: 1, DurationMinutes: 42, DistanceKm: 9},
		{Changes: 3, DurationMinutes: 31, DistanceKm: 11},
		{Changes: 2, DurationMinutes: 35, DistanceKm: 10},
	}}
	best, ok := d.BestRoute()
	if !ok {
		t.Fatal("expected a best route")
	}
	if best.DurationMinutes != 31 {
		t.Errorf("best duration: got %d, want 31", best.DurationMinutes)
	}

	if _, ok := (Distance{Destination: "Nowhere"}).BestRoute(); ok {
		t.Error("distance without routes should have no best route")
	}
}

func TestScoredFieldsOrderRoutesByChanges(t *testing.T) {
	s := &ScoredListing{
		Listing: *NewListing("https://www.spareroom.co.uk/2"),
		Index:   7,
		Distances: []Distance{{Destination: "Office", Routes: []Route{
			{Changes: 2, DurationMinutes: 20, DistanceKm: 5},
			{Changes: 1, DurationMinutes: 25, DistanceKm: 6},
		}}},
	}
	fields := s.Fields()
	if fields[0].Label != "index" || fields[0].Value != "7" {
		t.Errorf("first field: got %+v", fields[0])
	}
	last := fields[len(fields)-1]
	if last.Label != "Office" {
		t.Fatalf("last field label: got %q", last.Label)
	}
	if !strings.HasPrefix(last.Value, "1 change(s) in 25 minutes") {
		t.Errorf("routes not ordered by changes: %q", last.Value)
	}
}

func TestPrettyAlignsLabels(t *testing.T) {
	out := Pretty([]Field{{"a", "1"}, {"long label", "2"}})
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d", len(lines))
	}
	if strings.Index(lines[0], ":") != strings.Index(lines[1], ":") {
		t.Errorf("colons not aligned:\n%s", out)
	}
}

func TestPriceString(t *testing.T) {
	p := Price{Original: "£200 pw", Monthly: "£869 pcm", MonthlyAmount: 869}
	if p.String() != "£869 pcm (£200 pw)" {
		t.Errorf("got %q", p.String())
	}
	q := Price{Original: "£850 pcm", Monthly: "£850 pcm", MonthlyAmount: 850}
	if q.String() != "£850 pcm" {
		t.Errorf("got %q", q.String())
	}
}
