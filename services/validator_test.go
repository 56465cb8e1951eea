package services

import (
	"testing"

	"room-triage/config"
	"room-triage/models"
)

func testThresholds() config.Thresholds {
	return config.Thresholds{
		MaxMonthlyPrice:   850,
		MaxCommuteMinutes: 35,
		MaxFlatmates:      3,
		MaxBedrooms:       4,
	}
}

func price(amount int) models.Price {
	return models.Price{MonthlyAmount: amount}
}

func TestValidate(t *testing.T) {
	v := NewValidator(testThresholds())

	tests := []struct {
		name   string
		mutate func(l *models.Listing)
		want   Reason
	}{
		{
			name:   "all fields missing",
			mutate: func(l *models.Listing) {},
			want:   Accepted,
		},
		{
			name: "unfurnished regardless of price",
			mutate: func(l *models.Listing) {
				l.Prices = []models.Price{price(400)}
				l.Furnishings = "unfurnished"
			},
			want: RejectUnfurnished,
		},
		{
			name: "all prices over cap",
			mutate: func(l *models.Listing) {
				l.Prices = []models.Price{price(900), price(1000)}
			},
			want: RejectTooExpensive,
		},
		{
			name: "one price at cap",
			mutate: func(l *models.Listing) {
				l.Prices = []models.Price{price(1000), price(850)}
				l.Furnishings = "Furnished"
				l.LivingRoom = "Yes"
				l.Flatmates = "2"
				l.TotalRooms = "3"
			},
			want: Accepted,
		},
		{
			name: "unparsed price gives no opinion",
			mutate: func(l *models.Listing) {
				l.Prices = []models.Price{price(models.MissingAmount), price(1000)}
			},
			want: RejectTooExpensive,
		},
		{
			name: "only unparsed prices",
			mutate: func(l *models.Listing) {
				l.Prices = []models.Price{price(models.MissingAmount)}
			},
			want: Accepted,
		},
		{
			name:   "no living room",
			mutate: func(l *models.Listing) { l.LivingRoom = "NO" },
			want:   RejectNoLivingRoom,
		},
		{
			name:   "too many flatmates",
			mutate: func(l *models.Listing) { l.Flatmates = "4" },
			want:   RejectTooManyFlatmates,
		},
		{
			name:   "too many bedrooms",
			mutate: func(l *models.Listing) { l.TotalRooms = "5 bed" },
			want:   RejectTooManyBedrooms,
		},
		{
			name:   "non numeric flatmates ignored",
			mutate: func(l *models.Listing) { l.Flatmates = "a few" },
			want:   Accepted,
		},
		{
			name: "expensive before unfurnished",
			mutate: func(l *models.Listing) {
				l.Prices = []models.Price{price(2000)}
				l.Furnishings = "Unfurnished"
			},
			want: RejectTooExpensive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := models.NewListing("https://www.spareroom.co.uk/1")
			tt.mutate(l)
			if got := v.Validate(l, nil); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateDistances(t *testing.T) {
	v := NewValidator(testThresholds())
	l := models.NewListing("https://www.spareroom.co.uk/1")

	near := models.Distance{Destination: "A", Routes: []models.Route{{DurationMinutes: 20}}}
	far := models.Distance{Destination: "B", Routes: []models.Route{{DurationMinutes: 50}}}
	fastEnough := models.Distance{Destination: "C", Routes: []models.Route{{DurationMinutes: 60}, {DurationMinutes: 30}}}
	none := models.Distance{Destination: "D"}

	if got := v.Validate(l, []models.Distance{near, far}); got != RejectTooFar {
		t.Errorf("one destination over ceiling: got %q, want %q", got, RejectTooFar)
	}
	if got := v.Validate(l, []models.Distance{near, fastEnough}); !got.OK() {
		t.Errorf("best routes within ceiling: got %q", got)
	}
	if got := v.Validate(l, []models.Distance{near, none}); got != RejectTooFar {
		t.Errorf("destination without routes: got %q, want %q", got, RejectTooFar)
	}
}

func TestValidateDisabledCeilings(t *testing.T) {
	th := testThresholds()
	th.MaxFlatmates = -1
	th.MaxBedrooms = -1
	v := NewValidator(th)

	l := models.NewListing("https://www.spareroom.co.uk/1")
	l.Flatmates = "9"
	l.TotalRooms = "10"
	if got := v.Validate(l, nil); !got.OK() {
		t.Errorf("disabled ceilings should accept, got %q", got)
	}
}
