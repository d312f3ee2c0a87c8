package visit

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/gamassss/shortlink/internal/geo"
	"github.com/gamassss/shortlink/internal/mocks"
	"github.com/gamassss/shortlink/internal/repository/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var testLink = &domain.Link{ID: 11, Long: "https://example.com/a", Short: "aB3d"}

func TestRecorder_Build(t *testing.T) {
	rec := NewRecorder(nil, nil, Options{IPHeader: "X-Real-IP"})
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return fixed }

	req := httptest.NewRequest("GET", "/aB3d?utm_source=newsletter&utm_campaign=spring", nil)
	req.Header.Set("X-Real-IP", "81.2.69.142")
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept-Language", "de-CH,de;q=0.9,en;q=0.8")

	visit := rec.Build(testLink, req)

	assert.Equal(t, int64(11), visit.LinkID)
	assert.Equal(t, "aB3d", visit.ShortKey)
	assert.Equal(t, fixed, visit.VisitedAt)
	require.NotNil(t, visit.IPAddress)
	assert.Equal(t, "81.2.69.142", *visit.IPAddress)
	assert.Equal(t, "Chrome", *visit.Browser)
	assert.Equal(t, "120.0.0.0", *visit.BrowserVersion)
	assert.Equal(t, "Windows", *visit.Platform)
	assert.Equal(t, "de-CH", *visit.Language)
	assert.Equal(t, chromeUA, *visit.UserAgent)
	assert.Equal(t, "spring", *visit.Campaign)
	assert.Equal(t, "newsletter", *visit.CampaignSource)
	assert.Nil(t, visit.CampaignMedium)
	assert.Nil(t, visit.CampaignTerm)
	assert.Nil(t, visit.CampaignContent)
	assert.Nil(t, visit.Country)
}

func TestRecorder_Build_FallsBackToPeerAddress(t *testing.T) {
	rec := NewRecorder(nil, nil, Options{IPHeader: "X-Real-IP"})

	req := httptest.NewRequest("GET", "/aB3d", nil)
	req.RemoteAddr = "198.51.100.4:52100"

	visit := rec.Build(testLink, req)

	require.NotNil(t, visit.IPAddress)
	assert.Equal(t, "198.51.100.4", *visit.IPAddress)
	assert.Nil(t, visit.UserAgent)
	assert.Nil(t, visit.Browser)
	assert.Nil(t, visit.Language)
}

func TestRecorder_Build_DebugUsesPlaceholder(t *testing.T) {
	rec := NewRecorder(nil, nil, Options{IPHeader: "X-Real-IP", Debug: true, DebugIP: "203.0.113.7"})

	req := httptest.NewRequest("GET", "/aB3d", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	req.Header.Set("X-Real-IP", "81.2.69.142")

	visit := rec.Build(testLink, req)

	assert.Equal(t, "203.0.113.7", *visit.IPAddress)
}

func TestRecorder_Build_NoAddress(t *testing.T) {
	rec := NewRecorder(nil, nil, Options{IPHeader: "X-Real-IP"})

	req := httptest.NewRequest("GET", "/aB3d", nil)
	req.RemoteAddr = "pipe"

	visit := rec.Build(testLink, req)

	assert.Nil(t, visit.IPAddress)
}

func TestRecorder_Build_InAppBrowser(t *testing.T) {
	rec := NewRecorder(nil, nil, Options{})

	req := httptest.NewRequest("GET", "/aB3d", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Mobile/15E148 MicroMessenger/8.0.40(0x18002831) NetType/WIFI Language/zh_CN")

	visit := rec.Build(testLink, req)

	assert.Equal(t, "WeChat", *visit.Browser)
	assert.Equal(t, "8.0.40", *visit.BrowserVersion)
}

func TestRecorder_Record_WithGeo(t *testing.T) {
	geoResolver := new(mocks.MockGeoResolver)
	sink := new(mocks.MockVisitSink)
	rec := NewRecorder(geoResolver, sink, Options{IPHeader: "X-Real-IP"})

	info := &domain.GeoInfo{
		Continent:    domain.StringPtr("Europe"),
		Country:      domain.StringPtr("United Kingdom"),
		Subdivisions: []string{"England"},
		City:         domain.StringPtr("London"),
		Location:     &domain.GeoPoint{Latitude: 51.5142, Longitude: -0.0931},
	}
	geoResolver.On("Resolve", mock.Anything, "81.2.69.142").Return(info, nil).Once()
	sink.On("RecordVisit", mock.Anything, mock.MatchedBy(func(v *domain.Visit) bool {
		return v.Country != nil && *v.Country == "United Kingdom" &&
			*v.City == "London" && v.Location.Latitude == 51.5142
	})).Return(nil).Once()

	req := httptest.NewRequest("GET", "/aB3d", nil)
	req.Header.Set("X-Real-IP", "81.2.69.142")

	rec.Record(context.Background(), testLink, req)
	rec.Wait()

	geoResolver.AssertExpectations(t)
	sink.AssertExpectations(t)
}

func TestRecorder_Record_GeoFailureKeepsVisit(t *testing.T) {
	geoResolver := new(mocks.MockGeoResolver)
	sink := new(mocks.MockVisitSink)
	rec := NewRecorder(geoResolver, sink, Options{IPHeader: "X-Real-IP"})

	geoResolver.On("Resolve", mock.Anything, "81.2.69.142").Return(nil, errors.New("database closed")).Once()
	sink.On("RecordVisit", mock.Anything, mock.MatchedBy(func(v *domain.Visit) bool {
		return v.Continent == nil && v.Country == nil && v.Subdivisions == nil && v.City == nil && v.Location == nil
	})).Return(nil).Once()

	req := httptest.NewRequest("GET", "/aB3d", nil)
	req.Header.Set("X-Real-IP", "81.2.69.142")

	rec.Record(context.Background(), testLink, req)
	rec.Wait()

	sink.AssertExpectations(t)
}

func TestRecorder_Record_SkipsGeoWithoutAddress(t *testing.T) {
	geoResolver := new(mocks.MockGeoResolver)
	sink := new(mocks.MockVisitSink)
	rec := NewRecorder(geoResolver, sink, Options{})

	sink.On("RecordVisit", mock.Anything, mock.Anything).Return(nil).Once()

	req := httptest.NewRequest("GET", "/aB3d", nil)
	req.RemoteAddr = ""

	rec.Record(context.Background(), testLink, req)
	rec.Wait()

	geoResolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	sink.AssertExpectations(t)
}

func TestRecorder_Record_SinkFailureIsSwallowed(t *testing.T) {
	sink := new(mocks.MockVisitSink)
	rec := NewRecorder(geo.Nop{}, sink, Options{})

	sink.On("RecordVisit", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	req := httptest.NewRequest("GET", "/aB3d", nil)

	assert.NotPanics(t, func() {
		rec.Record(context.Background(), testLink, req)
		rec.Wait()
	})
	sink.AssertExpectations(t)
}

func TestRecorder_Record_OutlivesRequestContext(t *testing.T) {
	sink := new(mocks.MockVisitSink)
	rec := NewRecorder(geo.Nop{}, sink, Options{Timeout: time.Second})

	sink.On("RecordVisit", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec.Record(ctx, testLink, httptest.NewRequest("GET", "/aB3d", nil))
	rec.Wait()

	sink.AssertExpectations(t)
}

func TestRecorder_Record_UnmappedAddressStored(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "visits.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	link := &domain.Link{Long: "https://example.com/a", Short: "aB3d"}
	require.NoError(t, store.InsertLink(ctx, link))

	rec := NewRecorder(geo.Nop{}, store, Options{IPHeader: "X-Real-IP"})

	req := httptest.NewRequest("GET", "/aB3d?utm_medium=email", nil)
	req.Header.Set("X-Real-IP", "10.1.2.3")

	rec.Record(ctx, link, req)
	rec.Wait()

	visits, err := store.ListVisits(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, "10.1.2.3", *visits[0].IPAddress)
	assert.Equal(t, "email", *visits[0].CampaignMedium)
	assert.Nil(t, visits[0].Country)
	assert.Nil(t, visits[0].Location)
}
