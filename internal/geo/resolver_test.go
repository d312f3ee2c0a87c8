package geo

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/oschwald/geoip2-golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	records map[string]string
	err     error
	calls   int
}

func (f *fakeReader) City(ip net.IP) (*geoip2.City, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	var record geoip2.City
	if raw, ok := f.records[ip.String()]; ok {
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, err
		}
	}
	return &record, nil
}

const fullRecord = `{
	"Continent": {"Code": "EU", "Names": {"en": "Europe", "de": "Europa"}},
	"Country": {"IsoCode": "GB", "Names": {"en": "United Kingdom"}},
	"Subdivisions": [
		{"IsoCode": "ENG", "Names": {"en": "England"}},
		{"IsoCode": "WSM", "Names": {}}
	],
	"City": {"Names": {"en": "London"}},
	"Location": {"Latitude": 51.5142, "Longitude": -0.0931, "AccuracyRadius": 10}
}`

const countryOnlyRecord = `{
	"Country": {"IsoCode": "SE", "Names": {"en": "Sweden"}}
}`

const codesOnlyRecord = `{
	"Continent": {"Code": "AS"},
	"Country": {"IsoCode": "JP"}
}`

func newTestResolver() (*Resolver, *fakeReader) {
	reader := &fakeReader{records: map[string]string{
		"81.2.69.142": fullRecord,
		"89.160.20.1": countryOnlyRecord,
		"2001:db8::1": codesOnlyRecord,
	}}
	return &Resolver{reader: reader}, reader
}

func TestResolve_FullRecord(t *testing.T) {
	resolver, _ := newTestResolver()

	info, err := resolver.Resolve(context.Background(), "81.2.69.142")

	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Europe", *info.Continent)
	assert.Equal(t, "United Kingdom", *info.Country)
	assert.Equal(t, []string{"England", "WSM"}, info.Subdivisions)
	assert.Equal(t, "London", *info.City)
	assert.Equal(t, &domain.GeoPoint{Latitude: 51.5142, Longitude: -0.0931}, info.Location)
}

func TestResolve_PartialRecord(t *testing.T) {
	resolver, _ := newTestResolver()

	info, err := resolver.Resolve(context.Background(), "89.160.20.1")

	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "Sweden", *info.Country)
	assert.Nil(t, info.Continent)
	assert.Nil(t, info.Subdivisions)
	assert.Nil(t, info.City)
	assert.Nil(t, info.Location)
}

func TestResolve_FallsBackToCodes(t *testing.T) {
	resolver, _ := newTestResolver()

	info, err := resolver.Resolve(context.Background(), "2001:db8::1")

	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "AS", *info.Continent)
	assert.Equal(t, "JP", *info.Country)
	assert.Nil(t, info.City)
}

func TestResolve_UnknownAddress(t *testing.T) {
	resolver, _ := newTestResolver()

	info, err := resolver.Resolve(context.Background(), "10.0.0.1")

	assert.NoError(t, err)
	assert.Nil(t, info)
}

func TestResolve_UnparsableAddress(t *testing.T) {
	resolver, reader := newTestResolver()

	info, err := resolver.Resolve(context.Background(), "not-an-ip")

	assert.NoError(t, err)
	assert.Nil(t, info)
	assert.Zero(t, reader.calls, "database should not be queried")
}

func TestResolve_ReaderError(t *testing.T) {
	resolver := &Resolver{reader: &fakeReader{err: errors.New("corrupt database")}}

	info, err := resolver.Resolve(context.Background(), "81.2.69.142")

	assert.Error(t, err)
	assert.Nil(t, info)
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open("testdata/does-not-exist.mmdb")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	info, err := Nop{}.Resolve(context.Background(), "81.2.69.142")
	assert.NoError(t, err)
	assert.Nil(t, info)
}
