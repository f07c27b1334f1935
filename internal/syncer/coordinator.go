// Package syncer pushes the pending photo queue to the remote when the device
// comes back online.
package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"housing_sync/internal/adapters/observability"
	"housing_sync/internal/domain"
	"housing_sync/internal/netstatus"
)

var (
	ErrPassInProgress = errors.New("sync pass already in progress")
	// ErrNotClaimable means the item was discarded, is not pending, or is
	// already being uploaded elsewhere.
	ErrNotClaimable = errors.New("photo is not available for upload")
)

// Queue is the part of the offline store a pass works on.
type Queue interface {
	PendingPhotos() []domain.PendingPhotoUpload
	ClaimPhoto(id string) (domain.PendingPhotoUpload, bool)
	ReleasePhoto(id string)
	UpdatePhotoStatus(id string, status domain.PhotoStatus) error
	DequeuePhoto(id string) error
	TouchSync() error
}

// Report summarises one pass.
type Report struct {
	Attempted int
	Uploaded  []string
	Failed    map[string]error
	Duration  time.Duration
}

func (r Report) OK() bool { return len(r.Failed) == 0 }

type Coordinator struct {
	q        Queue
	up       domain.PhotoUploader
	log      zerolog.Logger
	timeout  time.Duration
	running  atomic.Bool
	wg       sync.WaitGroup
	mu       sync.Mutex
	attempts map[string]int // per pending id, process lifetime only
	onPass   func(Report, error)
}

type Option func(*Coordinator)

// WithPassTimeout bounds passes started by a connectivity transition.
func WithPassTimeout(d time.Duration) Option { return func(c *Coordinator) { c.timeout = d } }

// WithPassHook is called after every pass started by Attach.
func WithPassHook(fn func(Report, error)) Option { return func(c *Coordinator) { c.onPass = fn } }

func New(q Queue, up domain.PhotoUploader, log zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		q:        q,
		up:       up,
		log:      log,
		timeout:  2 * time.Minute,
		attempts: make(map[string]int),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Attach subscribes to m; each offline->online transition starts a pass in
// the background. Nothing else triggers one.
func (c *Coordinator) Attach(m *netstatus.Monitor) (detach func()) {
	return m.Subscribe(func(s netstatus.State) {
		if s != netstatus.Online {
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			rep, err := c.Pass(ctx)
			if errors.Is(err, ErrPassInProgress) {
				c.log.Debug().Msg("online again while a pass is running; skipped")
			}
			if c.onPass != nil {
				c.onPass(rep, err)
			}
		}()
	})
}

// Wait blocks until passes started by Attach have returned.
func (c *Coordinator) Wait() { c.wg.Wait() }

// Running reports whether a pass is underway.
func (c *Coordinator) Running() bool { return c.running.Load() }

// Attempts is the failed-upload count for a pending id since process start.
func (c *Coordinator) Attempts(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[id]
}

// Pass uploads every pending item once, in enqueue order. Successes are
// committed as they happen; a failure is logged, counted and left queued,
// and the pass moves on. Each item is claimed right before its upload, so
// one discarded or already in flight meanwhile is skipped.
func (c *Coordinator) Pass(ctx context.Context) (Report, error) {
	if !c.running.CompareAndSwap(false, true) {
		observability.ObserveSyncPass("skipped")
		return Report{}, ErrPassInProgress
	}
	defer c.running.Store(false)

	start := time.Now()
	rep := Report{Failed: map[string]error{}}
	for _, p := range c.q.PendingPhotos() {
		if p.Status != domain.PhotoPending {
			continue
		}
		if err := ctx.Err(); err != nil {
			rep.Duration = time.Since(start)
			c.finish(rep)
			return rep, err
		}
		cur, ok := c.q.ClaimPhoto(p.ID)
		if !ok {
			c.log.Debug().Str("upload_id", p.ID).Msg("no longer claimable; skipped")
			continue
		}
		rep.Attempted++
		err := c.upload(ctx, cur)
		c.q.ReleasePhoto(p.ID)
		if err != nil {
			rep.Failed[p.ID] = err
			continue
		}
		rep.Uploaded = append(rep.Uploaded, p.ID)
	}
	if err := c.q.TouchSync(); err != nil {
		c.log.Warn().Err(err).Msg("record last sync")
	}
	rep.Duration = time.Since(start)
	c.finish(rep)
	return rep, nil
}

// UploadOne uploads a single queued item outside a pass, sharing the claim
// with passes so the same item is never sent twice at once.
func (c *Coordinator) UploadOne(ctx context.Context, id string) error {
	p, ok := c.q.ClaimPhoto(id)
	if !ok {
		return ErrNotClaimable
	}
	defer c.q.ReleasePhoto(id)
	return c.upload(ctx, p)
}

func (c *Coordinator) upload(ctx context.Context, p domain.PendingPhotoUpload) error {
	l := c.log.With().Str("upload_id", p.ID).Str("property_id", p.PropertyID).Logger()
	if err := c.up.UploadPhoto(ctx, p); err != nil {
		c.mu.Lock()
		c.attempts[p.ID]++
		n := c.attempts[p.ID]
		c.mu.Unlock()
		observability.ObserveSyncItem("failed")
		l.Warn().Err(err).Int("attempts", n).Msg("photo upload failed; kept in queue")
		return err
	}
	// the remote has it now; a local write failure below must not requeue it
	if err := c.q.UpdatePhotoStatus(p.ID, domain.PhotoUploaded); err != nil {
		l.Error().Err(err).Msg("mark uploaded")
	}
	if err := c.q.DequeuePhoto(p.ID); err != nil {
		l.Error().Err(err).Msg("dequeue uploaded photo")
	}
	c.mu.Lock()
	delete(c.attempts, p.ID)
	c.mu.Unlock()
	observability.ObserveSyncItem("uploaded")
	l.Info().Msg("photo uploaded")
	return nil
}

func (c *Coordinator) finish(rep Report) {
	result := "ok"
	if !rep.OK() {
		result = "partial"
	}
	observability.ObserveSyncPass(result)
	c.log.Info().
		Int("attempted", rep.Attempted).
		Int("uploaded", len(rep.Uploaded)).
		Int("failed", len(rep.Failed)).
		Dur("took", rep.Duration).
		Msg("sync pass finished")
}
