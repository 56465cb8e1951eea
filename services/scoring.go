package services

import (
	"sort"

	"room-triage/models"
)

// Scorer turns commute distances into a single number; higher is better.
type Scorer struct {
	MaxMinutes int
	Weights    map[string]float64
}

// Score is the mean over destinations of
// (MaxMinutes - best route minutes) * destination weight, truncated toward zero.
// Destinations without routes are left out; no distances scores 0.
// A destination missing from Weights counts with weight 1.
func (s Scorer) Score(distances []models.Distance) int {
	var total float64
	n := 0
	for _, d := range distances {
		best, ok := d.BestRoute()
		if !ok {
			continue
		}
		weight, known := s.Weights[d.Destination]
		if !known {
			weight = 1
		}
		total += float64(s.MaxMinutes-best.DurationMinutes) * weight
		n++
	}
	if n == 0 {
		return 0
	}
	return int(total / float64(n))
}

// Rank orders listings by descending score, ties by ascending index, and
// returns the scores parallel to the sorted slice. The input is not modified.
func (s Scorer) Rank(listings []models.ScoredListing) ([]models.ScoredListing, []int) {
	type ranked struct {
		listing models.ScoredListing
		score   int
	}
	rs := make([]ranked, len(listings))
	for i, l := range listings {
		rs[i] = ranked{listing: l, score: s.Score(l.Distances)}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].score != rs[j].score {
			return rs[i].score > rs[j].score
		}
		return rs[i].listing.Index < rs[j].listing.Index
	})

	sorted := make([]models.ScoredListing, len(rs))
	scores := make([]int, len(rs))
	for i, r := range rs {
		sorted[i] = r.listing
		scores[i] = r.score
	}
	return sorted, scores
}
