package models

// Missing is the placeholder stored in a field whose lookup failed.
// It is distinct from an error: partial listings are expected.
const Missing = "missing"

// MissingAmount is the normalized monthly amount of a price that could not be parsed.
const MissingAmount = -1

// Coordinate is an immutable latitude/longitude pair kept as the decimal
// strings found on the page.
type Coordinate struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// MapURL returns a link that opens the coordinate on a map.
func (c Coordinate) MapURL() string {
	return "https://www.google.com/maps/place/" + c.Latitude + "," + c.Longitude
}

// APIParam renders the coordinate as the "a,b" pair the directions API expects.
func (c Coordinate) APIParam() string {
	return c.Latitude + "," + c.Longitude
}

// Message is one inbox thread and the candidate listing URLs found in its body.
// URL is its identity.
type Message struct {
	SenderName  string   `json:"senderName"`
	URL         string   `json:"messageLink"`
	ListingURLs []string `json:"propertyLinks"`
}

// Price is one advertised rent, normalized to a monthly figure.
type Price struct {
	Original      string `json:"price"`
	Monthly       string `json:"pricePerMonth"`
	MonthlyAmount int    `json:"pricePerMonthInt"`
}

// Parsed reports whether a monthly amount could be extracted.
func (p Price) Parsed() bool {
	return p.MonthlyAmount >= 0
}

func (p Price) String() string {
	if p.Original != p.Monthly {
		return p.Monthly + " (" + p.Original + ")"
	}
	return p.Monthly
}

// Listing is a single room advertisement scraped from the source site.
// URL (normalized) is its identity.
type Listing struct {
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	Unsuitable bool    `json:"unsuitable"`
	Rejected   bool    `json:"rejected,omitempty"`
	Wanted     bool    `json:"wanted,omitempty"`
	SenderName *string `json:"senderName"`
	MessageURL *string `json:"messageUrl"`
	Prices     []Price `json:"prices"`

	BillsIncluded   string `json:"billIncluded"`
	Deposit         string `json:"deposit"`
	Available       string `json:"available"`
	MinTerm         string `json:"minTerm"`
	MaxTerm         string `json:"maxTerm"`
	Furnishings     string `json:"furnishings"`
	Broadband       string `json:"broadband"`
	LivingRoom      string `json:"livingRoom"`
	Flatmates       string `json:"flatmates"`
	TotalRooms      string `json:"totalRooms"`
	HouseholdGender string `json:"householdGender"`
	PreferredGender string `json:"preferredGender"`
	Occupation      string `json:"occupation"`

	Location *Coordinate `json:"location"`
}

// NewListing returns a listing with every attribute field set to Missing.
func NewListing(url string) *Listing {
	return &Listing{
		URL:             url,
		Title:           Missing,
		BillsIncluded:   Missing,
		Deposit:         Missing,
		Available:       Missing,
		MinTerm:         Missing,
		MaxTerm:         Missing,
		Furnishings:     Missing,
		Broadband:       Missing,
		LivingRoom:      Missing,
		Flatmates:       Missing,
		TotalRooms:      Missing,
		HouseholdGender: Missing,
		PreferredGender: Missing,
		Occupation:      Missing,
	}
}

// HasPrice reports whether at least one price was parsed.
func (l *Listing) HasPrice() bool {
	for _, p := range l.Prices {
		if p.Parsed() {
			return true
		}
	}
	return false
}

// Sender returns the sender name or "" for search-sourced listings.
func (l *Listing) Sender() string {
	if l.SenderName == nil {
		return ""
	}
	return *l.SenderName
}

// Origin returns the origin message URL or "".
func (l *Listing) Origin() string {
	if l.MessageURL == nil {
		return ""
	}
	return *l.MessageURL
}

// Route is one transit option between a listing and a destination.
type Route struct {
	Changes         int `json:"changes"`
	DurationMinutes int `json:"timeMinutes"`
	DistanceKm      int `json:"distanceKm"`
}

// Distance holds every route found from a listing to one destination.
type Distance struct {
	Destination string  `json:"destination"`
	Routes      []Route `json:"routes"`
}

// BestRoute returns the fastest route, or false when there are none.
func (d Distance) BestRoute() (Route, bool) {
	if len(d.Routes) == 0 {
		return Route{}, false
	}
	best := d.Routes[0]
	for _, r := range d.Routes[1:] {
		if r.DurationMinutes < best.DurationMinutes {
			best = r
		}
	}
	return best, true
}

// ScoredListing is a Listing with its commute distances attached.
// Index is assigned at first scoring and never reused.
type ScoredListing struct {
	Listing
	Index     int        `json:"index"`
	Distances []Distance `json:"distances"`
}

// HasDistances reports whether any destination could be scored.
func (s *ScoredListing) HasDistances() bool {
	return len(s.Distances) > 0
}
