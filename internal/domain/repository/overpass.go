package repository

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"elevation_service/internal/domain/model"

	"github.com/serjvanilla/go-overpass"
	"go.uber.org/zap"
)

// Highway classes worth sampling, and classes where cycling is prohibited.
var (
	CyclableHighways = []string{
		"cycleway", "primary", "secondary", "tertiary", "residential",
		"unclassified", "service", "track", "path",
	}
	AvoidHighways = []string{"motorway", "trunk", "motorway_link", "trunk_link"}
)

func IsCyclable(highway string) bool {
	for _, h := range AvoidHighways {
		if h == highway {
			return false
		}
	}
	for _, h := range CyclableHighways {
		if h == highway {
			return true
		}
	}
	return false
}

type OverpassRoadSource struct {
	client  *overpass.Client
	timeout time.Duration
	logger  *zap.Logger
}

func NewOverpassRoadSource(endpoint string, timeout time.Duration, logger *zap.Logger) *OverpassRoadSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{
		Timeout: timeout,
	}
	client := overpass.NewWithSettings(endpoint, 2, httpClient)
	return &OverpassRoadSource{
		client:  &client,
		timeout: timeout,
		logger:  logger,
	}
}

func (r *OverpassRoadSource) GetRoads(ctx context.Context, b model.Bounds) ([]model.RoadSegment, error) {
	query := fmt.Sprintf(`
		[out:json][timeout:60][bbox:%f,%f,%f,%f];
		(
			way["highway"~"^(%s)$"]["highway"!~"^(%s)$"]["access"!="private"]["access"!="no"];
		);
		out body;
		>;
		out skel qt;
	`,
		b.MinLat, b.MinLon, b.MaxLat, b.MaxLon,
		strings.Join(CyclableHighways, "|"),
		strings.Join(AvoidHighways, "|"),
	)

	result, err := r.executeQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute road query: %w", err)
	}

	roads := convertToRoadSegments(result)
	r.logger.Info("extracted cyclable roads",
		zap.Int("roads", len(roads)),
		zap.Float64("min_lat", b.MinLat), zap.Float64("min_lng", b.MinLon),
		zap.Float64("max_lat", b.MaxLat), zap.Float64("max_lng", b.MaxLon),
	)
	return roads, nil
}

// executeQuery runs the blocking overpass call so that ctx can abandon it.
func (r *OverpassRoadSource) executeQuery(ctx context.Context, query string) (*overpass.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type response struct {
		result overpass.Result
		err    error
	}
	done := make(chan response, 1)
	go func() {
		result, err := r.client.Query(query)
		done <- response{result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("overpass query abandoned: %w", ctx.Err())
	case resp := <-done:
		if resp.err != nil {
			return nil, fmt.Errorf("overpass query failed: %w", resp.err)
		}
		return &resp.result, nil
	}
}

func convertToRoadSegments(result *overpass.Result) []model.RoadSegment {
	ids := make([]int64, 0, len(result.Ways))
	for id := range result.Ways {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	roads := make([]model.RoadSegment, 0, len(ids))
	for _, id := range ids {
		way := result.Ways[id]
		tags := model.TagsFromMap(way.Tags)
		if !IsCyclable(tags.Highway) || tags.Access == "private" || tags.Access == "no" {
			continue
		}

		coords := make([]model.Coordinate, 0, len(way.Nodes))
		for _, node := range way.Nodes {
			if node == nil {
				continue
			}
			coords = append(coords, model.Coordinate{Lat: node.Lat, Lng: node.Lon})
		}
		if len(coords) < 2 {
			continue
		}

		surface := tags.Surface
		if surface == "" {
			surface = "unknown"
		}
		roads = append(roads, model.RoadSegment{
			OSMWayID:     way.ID,
			RoadType:     tags.Highway,
			Surface:      surface,
			Name:         tags.Name,
			Coordinates:  coords,
			LengthMeters: model.PathLengthMeters(coords),
		})
	}
	return roads
}
