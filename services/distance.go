package services

import (
	"context"
	"fmt"

	"room-triage/config"
	"room-triage/models"
	"room-triage/utils"
)

// RouteFinder looks up transit routes between two points.
type RouteFinder interface {
	Routes(ctx context.Context, from, to models.Coordinate) ([]models.Route, error)
}

// DistanceScorer computes a listing's routes to every configured destination,
// one request at a time.
type DistanceScorer struct {
	finder       RouteFinder
	destinations []config.Destination
	logger       *utils.Logger
}

// NewDistanceScorer creates a DistanceScorer.
func NewDistanceScorer(finder RouteFinder, destinations []config.Destination, logger *utils.Logger) *DistanceScorer {
	return &DistanceScorer{finder: finder, destinations: destinations, logger: logger}
}

// Distances returns one Distance per destination, in configuration order.
// A listing without coordinates has no distances.
func (d *DistanceScorer) Distances(ctx context.Context, l *models.Listing) ([]models.Distance, error) {
	if l.Location == nil {
		d.logger.Debug("[distance] %s has no coordinates, skipping", l.URL)
		return nil, nil
	}

	distances := make([]models.Distance, 0, len(d.destinations))
	for _, dest := range d.destinations {
		to := models.Coordinate{Latitude: dest.Latitude, Longitude: dest.Longitude}
		routes, err := d.finder.Routes(ctx, *l.Location, to)
		if err != nil {
			return nil, fmt.Errorf("distance: %s to %s: %w", l.URL, dest.Label, err)
		}
		distances = append(distances, models.Distance{Destination: dest.Label, Routes: routes})
	}
	return distances, nil
}
