// Package geo maps client addresses to coarse locations using a MaxMind
// GeoIP2 / GeoLite2 City database.
package geo

import (
	"context"
	"net"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/oschwald/geoip2-golang"
)

const lang = "en"

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
}

type Resolver struct {
	reader cityReader
	closer func() error
}

// Open loads the database at path. The reader is safe for concurrent use.
func Open(path string) (*Resolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &Resolver{reader: reader, closer: reader.Close}, nil
}

func (r *Resolver) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}

// Resolve returns nil info, without error, for addresses that do not parse
// or are not covered by the database.
func (r *Resolver) Resolve(_ context.Context, ip string) (*domain.GeoInfo, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, nil
	}

	record, err := r.reader.City(parsed)
	if err != nil {
		return nil, err
	}

	return infoFromCity(record), nil
}

// infoFromCity reports each attribute only when the record carries it.
func infoFromCity(record *geoip2.City) *domain.GeoInfo {
	if record == nil {
		return nil
	}

	info := &domain.GeoInfo{
		Continent: nameOr(record.Continent.Names, record.Continent.Code),
		Country:   nameOr(record.Country.Names, record.Country.IsoCode),
		City:      nameOr(record.City.Names, ""),
	}

	for _, sub := range record.Subdivisions {
		if name := nameOr(sub.Names, sub.IsoCode); name != nil {
			info.Subdivisions = append(info.Subdivisions, *name)
		}
	}

	// A zero accuracy radius with zero coordinates means no location block.
	loc := record.Location
	if loc.AccuracyRadius != 0 || loc.Latitude != 0 || loc.Longitude != 0 {
		info.Location = &domain.GeoPoint{Latitude: loc.Latitude, Longitude: loc.Longitude}
	}

	if info.Continent == nil && info.Country == nil && info.City == nil &&
		info.Subdivisions == nil && info.Location == nil {
		return nil
	}

	return info
}

func nameOr(names map[string]string, fallback string) *string {
	if name := names[lang]; name != "" {
		return &name
	}
	return domain.StringPtr(fallback)
}

// Nop never knows anything. Used when no database is configured.
type Nop struct{}

func (Nop) Resolve(context.Context, string) (*domain.GeoInfo, error) {
	return nil, nil
}
