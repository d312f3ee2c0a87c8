// Package visit turns a resolved redirect into a stored visit.
package visit

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gamassss/shortlink/internal/domain"
	"github.com/gamassss/shortlink/internal/logger"
	"github.com/gamassss/shortlink/internal/metrics"
	"github.com/gamassss/shortlink/pkg/detector"
)

type GeoResolver interface {
	Resolve(ctx context.Context, ip string) (*domain.GeoInfo, error)
}

// Sink persists a finished visit. The stores write it directly, the queue
// publisher hands it to the visit worker.
type Sink interface {
	RecordVisit(ctx context.Context, visit *domain.Visit) error
}

type Options struct {
	// IPHeader is the header the trusted proxy puts the client address in.
	IPHeader string
	// Debug replaces the client address with DebugIP, since local requests
	// only ever come from loopback.
	Debug   bool
	DebugIP string
	Timeout time.Duration
}

type Recorder struct {
	geo  GeoResolver
	sink Sink
	opts Options
	now  func() time.Time
	wg   sync.WaitGroup
}

func NewRecorder(geo GeoResolver, sink Sink, opts Options) *Recorder {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Recorder{
		geo:  geo,
		sink: sink,
		opts: opts,
		now:  time.Now,
	}
}

// Record stores a visit of link in the background. Everything it needs from
// r is read before Record returns, so the handler may finish the response
// right away. Failures are logged and never reach the caller.
func (rec *Recorder) Record(ctx context.Context, link *domain.Link, r *http.Request) {
	visit := rec.Build(link, r)
	log := logger.FromContext(ctx).With(slog.String("short_key", link.Short))

	rec.wg.Add(1)
	go func() {
		defer rec.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rec.opts.Timeout)
		defer cancel()

		rec.store(ctx, log, visit)
	}()
}

// Build assembles the request derived part of a visit.
func (rec *Recorder) Build(link *domain.Link, r *http.Request) *domain.Visit {
	client := detector.Detect(r)
	query := r.URL.Query()

	return &domain.Visit{
		LinkID:          link.ID,
		ShortKey:        link.Short,
		VisitedAt:       rec.now().UTC(),
		IPAddress:       domain.StringPtr(rec.clientIP(r)),
		UserAgent:       domain.StringPtr(r.UserAgent()),
		Browser:         domain.StringPtr(client.Browser),
		BrowserVersion:  domain.StringPtr(client.BrowserVersion),
		Platform:        domain.StringPtr(client.Platform),
		Language:        domain.StringPtr(client.Language),
		Campaign:        domain.StringPtr(query.Get("utm_campaign")),
		CampaignSource:  domain.StringPtr(query.Get("utm_source")),
		CampaignMedium:  domain.StringPtr(query.Get("utm_medium")),
		CampaignTerm:    domain.StringPtr(query.Get("utm_term")),
		CampaignContent: domain.StringPtr(query.Get("utm_content")),
	}
}

func (rec *Recorder) clientIP(r *http.Request) string {
	if rec.opts.Debug {
		return rec.opts.DebugIP
	}
	return detector.ClientIP(r, rec.opts.IPHeader)
}

func (rec *Recorder) store(ctx context.Context, log *slog.Logger, visit *domain.Visit) {
	rec.locate(ctx, log, visit)

	if err := rec.sink.RecordVisit(ctx, visit); err != nil {
		metrics.Visits.WithLabelValues("failed").Inc()
		log.Error("Failed to record visit", "error", err)
		return
	}

	metrics.Visits.WithLabelValues("recorded").Inc()
	log.Debug("Visit recorded", "visit_id", visit.ID)
}

// locate fills the geo fields. A failed lookup leaves them absent.
func (rec *Recorder) locate(ctx context.Context, log *slog.Logger, visit *domain.Visit) {
	if visit.IPAddress == nil || rec.geo == nil {
		return
	}

	info, err := rec.geo.Resolve(ctx, *visit.IPAddress)
	switch {
	case err != nil:
		metrics.GeoLookups.WithLabelValues("error").Inc()
		log.Warn("Geo lookup failed", "ip", *visit.IPAddress, "error", err)
	case info == nil:
		metrics.GeoLookups.WithLabelValues("miss").Inc()
	default:
		metrics.GeoLookups.WithLabelValues("hit").Inc()
		visit.ApplyGeo(info)
	}
}

// Wait blocks until every visit handed to Record has been stored or dropped.
func (rec *Recorder) Wait() {
	rec.wg.Wait()
}
