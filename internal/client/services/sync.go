package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/vincent-petithory/dataurl"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/storykeeper/internal/client/blobs"
	"github.com/dmitrijs2005/storykeeper/internal/client/client"
	"github.com/dmitrijs2005/storykeeper/internal/client/connectivity"
	"github.com/dmitrijs2005/storykeeper/internal/client/models"
	"github.com/dmitrijs2005/storykeeper/internal/logging"
)

var tracer = otel.Tracer("github.com/dmitrijs2005/storykeeper/internal/client/services")

// OutboxStore is the part of the local store the sync engine needs.
type OutboxStore interface {
	PendingEntries(ctx context.Context) iter.Seq[models.OutboxEntry]
	DeleteOutbox(ctx context.Context, key int64) error
	MarkOutboxAttempt(ctx context.Context, key int64, attempts int, nextAt time.Time, lastErr string) error
	MarkOutboxDelivered(ctx context.Context, key int64) error
}

// SyncConfig tunes retry and pacing of outbox delivery.
type SyncConfig struct {
	// RetryBackoff is the delay after the first failed attempt; it doubles
	// per attempt up to RetryMaxDelay.
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
	// MaxAttempts parks an entry after that many failures. Parked entries
	// stay in the outbox. Zero means retry forever.
	MaxAttempts int
	// UploadRate is the sustained number of uploads per second; zero
	// disables pacing.
	UploadRate  float64
	UploadBurst int
}

const (
	defaultRetryBackoff  = 5 * time.Second
	defaultRetryMaxDelay = 10 * time.Minute
)

// SyncReport summarises one pass over the outbox.
type SyncReport struct {
	Skipped  bool // offline, nothing attempted
	Sent     int
	Failed   int
	Deferred int // waiting for their backoff to elapse
	Parked   int // reached MaxAttempts
}

func (r SyncReport) String() string {
	if r.Skipped {
		return "sync skipped: offline"
	}
	return fmt.Sprintf("sent %d, failed %d, deferred %d, parked %d", r.Sent, r.Failed, r.Deferred, r.Parked)
}

// Syncer drains the outbox into the remote API.
//
// Entries are submitted one at a time in ascending key order. An accepted
// entry is deleted; a failed one is kept with its attempt count and next
// attempt time, and the pass moves on. When an accepted entry cannot be
// deleted it is marked delivered and removed, without another upload, by a
// later pass.
//
// Concurrent calls to SyncOutbox share a single pass. The pass keeps running
// while at least one caller is still waiting for it.
type Syncer struct {
	store   OutboxStore
	client  client.Client
	online  connectivity.Checker
	blobs   blobs.Store
	cfg     SyncConfig
	limiter *rate.Limiter
	log     logging.Logger
	now     func() time.Time

	group   singleflight.Group
	mu      sync.Mutex
	current *pass
}

// pass is the context shared by the callers waiting on one sync pass. It is
// cancelled when the last of them gives up.
type pass struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (s *Syncer) join(ctx context.Context) *pass {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		pctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.current = &pass{ctx: pctx, cancel: cancel}
	}
	s.current.waiters++
	return s.current
}

func (s *Syncer) leave(p *pass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.waiters--
	if p.waiters > 0 {
		return
	}
	p.cancel()
	if s.current == p {
		s.current = nil
	}
}

// NewSyncer builds a Syncer. blobStore may be nil when outbox photos are
// always kept inline.
func NewSyncer(st OutboxStore, c client.Client, online connectivity.Checker, blobStore blobs.Store, cfg SyncConfig, log logging.Logger) *Syncer {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = defaultRetryMaxDelay
	}
	if log == nil {
		log = logging.Nop()
	}

	limit := rate.Inf
	burst := cfg.UploadBurst
	if cfg.UploadRate > 0 {
		limit = rate.Limit(cfg.UploadRate)
		if burst <= 0 {
			burst = 1
		}
	}

	return &Syncer{
		store:   st,
		client:  c,
		online:  online,
		blobs:   blobStore,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		log:     log.With("component", "sync"),
		now:     time.Now,
	}
}

// SyncOutbox runs one delivery pass. When offline it returns immediately
// with Skipped set. The error is non-nil only when the pass was cut short by
// the context.
//
// A caller that gives up gets its own context error back; the pass goes on
// for the callers still waiting.
func (s *Syncer) SyncOutbox(ctx context.Context) (SyncReport, error) {
	for {
		if err := ctx.Err(); err != nil {
			return SyncReport{}, err
		}

		p := s.join(ctx)
		ch := s.group.DoChan("outbox", func() (any, error) {
			return s.syncOnce(p.ctx)
		})

		select {
		case <-ctx.Done():
			s.leave(p)
			return SyncReport{}, ctx.Err()
		case res := <-ch:
			s.leave(p)
			if res.Shared {
				s.log.Debug(ctx, "joined running sync pass")
			}
			// The pass this caller joined was abandoned by everyone who was
			// waiting on it; start a fresh one.
			if errors.Is(res.Err, context.Canceled) && ctx.Err() == nil {
				continue
			}
			report, _ := res.Val.(SyncReport)
			if err := ctx.Err(); err != nil {
				return report, err
			}
			return report, res.Err
		}
	}
}

func (s *Syncer) syncOnce(ctx context.Context) (SyncReport, error) {
	ctx, span := tracer.Start(ctx, "outbox.sync")
	defer span.End()

	var report SyncReport

	if !s.online.Online(ctx) {
		report.Skipped = true
		span.SetAttributes(attribute.Bool("sync.skipped", true))
		return report, nil
	}

	for e := range s.store.PendingEntries(ctx) {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return report, err
		}

		if e.Delivered() {
			s.finish(ctx, e)
			continue
		}
		if !e.Due(s.now()) {
			report.Deferred++
			continue
		}
		if s.cfg.MaxAttempts > 0 && e.Attempts >= s.cfg.MaxAttempts {
			report.Parked++
			continue
		}

		if err := s.limiter.Wait(ctx); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return report, err
		}

		if err := s.deliver(ctx, e); err != nil {
			report.Failed++
			s.recordFailure(ctx, e, err)
			continue
		}
		report.Sent++
	}
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	span.SetAttributes(
		attribute.Int("sync.sent", report.Sent),
		attribute.Int("sync.failed", report.Failed),
		attribute.Int("sync.deferred", report.Deferred),
		attribute.Int("sync.parked", report.Parked),
	)
	if report.Sent > 0 || report.Failed > 0 {
		s.log.Info(ctx, "outbox sync finished",
			"sent", report.Sent, "failed", report.Failed, "deferred", report.Deferred, "parked", report.Parked)
	}
	return report, nil
}

func (s *Syncer) deliver(ctx context.Context, e models.OutboxEntry) error {
	story, err := s.toNewStory(ctx, e.Payload)
	if err != nil {
		return err
	}
	if err := s.client.AddStory(ctx, story); err != nil {
		return err
	}
	s.log.Debug(ctx, "outbox entry delivered", "key", e.Key, "client_ref", e.Payload.ClientRef)
	s.finish(ctx, e)
	return nil
}

// finish removes an accepted entry and its photo. It runs to completion even
// when ctx is cancelled. If the row cannot be deleted it is marked delivered
// so that it is never uploaded again.
func (s *Syncer) finish(ctx context.Context, e models.OutboxEntry) {
	ctx = context.WithoutCancel(ctx)

	if err := s.store.DeleteOutbox(ctx, e.Key); err != nil {
		s.log.Error(ctx, "accepted entry could not be removed from outbox", "key", e.Key, "error", err)
		if !e.Delivered() {
			if err := s.store.MarkOutboxDelivered(ctx, e.Key); err != nil {
				s.log.Error(ctx, "accepted entry could not be marked delivered", "key", e.Key, "error", err)
			}
		}
		return
	}
	if e.Payload.PhotoBlob != "" && s.blobs != nil {
		if err := s.blobs.Delete(ctx, e.Payload.PhotoBlob); err != nil {
			s.log.Warn(ctx, "failed to delete delivered photo", "key", e.Key, "blob", e.Payload.PhotoBlob, "error", err)
		}
	}
}

func (s *Syncer) recordFailure(ctx context.Context, e models.OutboxEntry, cause error) {
	attempts := e.Attempts + 1
	next := s.now().Add(RetryBackoff(s.cfg.RetryBackoff, s.cfg.RetryMaxDelay, attempts))

	s.log.Warn(ctx, "outbox entry not delivered",
		"key", e.Key, "attempts", attempts, "next_attempt_at", next, "error", cause)

	if err := s.store.MarkOutboxAttempt(ctx, e.Key, attempts, next, cause.Error()); err != nil {
		s.log.Error(ctx, "failed to record outbox attempt", "key", e.Key, "error", err)
	}
}

// toNewStory converts a stored payload into an upload request.
func (s *Syncer) toNewStory(ctx context.Context, p models.OutboxPayload) (models.NewStory, error) {
	story := models.NewStory{Description: p.Description, Lat: p.Lat, Lon: p.Lon}

	switch {
	case p.PhotoBlob != "":
		if s.blobs == nil {
			return story, fmt.Errorf("photo blob %s: no blob store configured", p.PhotoBlob)
		}
		data, contentType, err := s.blobs.Get(ctx, p.PhotoBlob)
		if err != nil {
			return story, fmt.Errorf("failed to load photo: %w", err)
		}
		story.Photo, story.PhotoType = data, contentType
	case p.PhotoDataURL != "":
		du, err := dataurl.DecodeString(p.PhotoDataURL)
		if err != nil {
			return story, fmt.Errorf("failed to decode photo data url: %w", err)
		}
		story.Photo, story.PhotoType = du.Data, du.MediaType.ContentType()
	}
	return story, nil
}

// RetryBackoff returns the delay before the next attempt after the given
// number of failures: base, 2*base, 4*base and so on, capped at maxDelay.
func RetryBackoff(base, maxDelay time.Duration, attempts int) time.Duration {
	if attempts <= 1 {
		return min(base, maxDelay)
	}
	shift := attempts - 1
	if shift >= 32 {
		return maxDelay
	}
	d := base << shift
	if d <= 0 || d > maxDelay {
		return maxDelay
	}
	return d
}
