package geoindex

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Entry is a ranked result of a proximity query.
type Entry struct {
	ID         string  `json:"id"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	DistanceKm float64 `json:"distance_km"`
}

// Index is the geospatial index consumed for "near me" queries. Kinds
// partition the index (e.g. "vendors", "riders").
type Index interface {
	Upsert(ctx context.Context, kind, id string, lat, lng float64) error
	Remove(ctx context.Context, kind, id string) error
	Nearby(ctx context.Context, kind string, lat, lng, radiusKm float64, limit int) ([]Entry, error)
}

// RedisIndex implements Index on Redis geo sets, one set per kind.
type RedisIndex struct {
	client *redis.Client
}

// NewRedisIndex creates a Redis-backed geospatial index
func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

func geoKey(kind string) string {
	return "geo:" + kind
}

// Upsert inserts or moves an entity's position.
func (i *RedisIndex) Upsert(ctx context.Context, kind, id string, lat, lng float64) error {
	err := i.client.GeoAdd(ctx, geoKey(kind), &redis.GeoLocation{
		Name:      id,
		Latitude:  lat,
		Longitude: lng,
	}).Err()
	if err != nil {
		return fmt.Errorf("geo upsert %s/%s: %w", kind, id, err)
	}
	return nil
}

// Remove deletes an entity from the index.
func (i *RedisIndex) Remove(ctx context.Context, kind, id string) error {
	if err := i.client.ZRem(ctx, geoKey(kind), id).Err(); err != nil {
		return fmt.Errorf("geo remove %s/%s: %w", kind, id, err)
	}
	return nil
}

// Nearby returns up to limit entities within radiusKm of a point, nearest
// first.
func (i *RedisIndex) Nearby(ctx context.Context, kind string, lat, lng, radiusKm float64, limit int) ([]Entry, error) {
	locations, err := i.client.GeoSearchLocation(ctx, geoKey(kind), &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Latitude:   lat,
			Longitude:  lng,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search %s: %w", kind, err)
	}

	entries := make([]Entry, 0, len(locations))
	for _, loc := range locations {
		entries = append(entries, Entry{
			ID:         loc.Name,
			Lat:        loc.Latitude,
			Lng:        loc.Longitude,
			DistanceKm: loc.Dist,
		})
	}
	return entries, nil
}
