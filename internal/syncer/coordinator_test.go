package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"housing_sync/internal/domain"
	"housing_sync/internal/netstatus"
	"housing_sync/internal/offline"
)

type fakeUploader struct {
	mu     sync.Mutex
	fail   map[string]bool // by FileName
	seen   []string
	gate   chan struct{}
	gateOn string // only this FileName waits on gate; empty means all
	calls  atomic.Int32
}

func (f *fakeUploader) UploadPhoto(ctx context.Context, p domain.PendingPhotoUpload) error {
	f.calls.Add(1)
	if f.gate != nil && (f.gateOn == "" || f.gateOn == p.FileName) {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, p.FileName)
	if f.fail[p.FileName] {
		return errors.New("remote 500")
	}
	return nil
}

func newQueue(t *testing.T, n int) (*offline.Store, []string) {
	t.Helper()
	s, err := offline.Open(offline.NewMemoryKV())
	require.NoError(t, err)
	var ids []string
	for i := 1; i <= n; i++ {
		id, err := s.EnqueuePendingPhoto("3", domain.PhotoPayload{
			Data: "aGVsbG8=", FileName: fmt.Sprintf("%d.jpg", i), FileSize: 5, MIMEType: "image/jpeg",
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return s, ids
}

func TestPass_PartialSuccessKeepsOnlyFailures(t *testing.T) {
	q, ids := newQueue(t, 5)
	up := &fakeUploader{fail: map[string]bool{"4.jpg": true}}
	c := New(q, up, zerolog.Nop())

	rep, err := c.Pass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Attempted)
	assert.Len(t, rep.Uploaded, 4)
	assert.Contains(t, rep.Failed, ids[3])
	assert.Equal(t, []string{"1.jpg", "2.jpg", "3.jpg", "4.jpg", "5.jpg"}, up.seen)

	left := q.PendingPhotos()
	require.Len(t, left, 1)
	assert.Equal(t, ids[3], left[0].ID)
	assert.Equal(t, domain.PhotoPending, left[0].Status)
	assert.Equal(t, 1, c.Attempts(ids[3]))

	up.fail = nil
	rep, err = c.Pass(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Empty(t, q.PendingPhotos())
	assert.Zero(t, c.Attempts(ids[3]))
}

func TestPass_SkipsNonPendingItems(t *testing.T) {
	q, ids := newQueue(t, 2)
	require.NoError(t, q.UpdatePhotoStatus(ids[0], domain.PhotoFailed))
	up := &fakeUploader{}
	rep, err := New(q, up, zerolog.Nop()).Pass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Attempted)
	assert.Equal(t, []string{"2.jpg"}, up.seen)
	assert.Len(t, q.PendingPhotos(), 1)
}

func TestPass_GuardRejectsOverlap(t *testing.T) {
	q, _ := newQueue(t, 1)
	up := &fakeUploader{gate: make(chan struct{})}
	c := New(q, up, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Pass(context.Background())
	}()
	for up.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	_, err := c.Pass(context.Background())
	assert.ErrorIs(t, err, ErrPassInProgress)

	close(up.gate)
	<-done
	assert.False(t, c.Running())
	assert.EqualValues(t, 1, up.calls.Load())
}

func TestPass_SkipsItemDiscardedMidPass(t *testing.T) {
	q, ids := newQueue(t, 3)
	up := &fakeUploader{gate: make(chan struct{}), gateOn: "1.jpg"}
	c := New(q, up, zerolog.Nop())

	done := make(chan Report, 1)
	go func() {
		rep, _ := c.Pass(context.Background())
		done <- rep
	}()
	for up.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, q.DequeuePhoto(ids[1]))
	close(up.gate)

	rep := <-done
	assert.Equal(t, []string{"1.jpg", "3.jpg"}, up.seen)
	assert.Equal(t, 2, rep.Attempted)
	assert.Equal(t, []string{ids[0], ids[2]}, rep.Uploaded)
	assert.Empty(t, q.PendingPhotos())
}

func TestUploadOne_SharesClaimWithPass(t *testing.T) {
	q, ids := newQueue(t, 1)
	up := &fakeUploader{gate: make(chan struct{})}
	c := New(q, up, zerolog.Nop())
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() { errc <- c.UploadOne(ctx, ids[0]) }()
	for up.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	rep, err := c.Pass(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Attempted, "item in flight is not sent again")
	assert.ErrorIs(t, c.UploadOne(ctx, ids[0]), ErrNotClaimable)

	close(up.gate)
	require.NoError(t, <-errc)
	assert.EqualValues(t, 1, up.calls.Load())
	assert.Empty(t, q.PendingPhotos())
	assert.ErrorIs(t, c.UploadOne(ctx, ids[0]), ErrNotClaimable)
}

func TestAttach_OnlyOnlineTransitionTriggers(t *testing.T) {
	q, _ := newQueue(t, 2)
	up := &fakeUploader{}
	var passes atomic.Int32
	c := New(q, up, zerolog.Nop(), WithPassHook(func(Report, error) { passes.Add(1) }))
	m := netstatus.New(false)
	c.Attach(m)

	m.Set(false)
	m.Set(false)
	c.Wait()
	assert.Zero(t, passes.Load())
	assert.Len(t, q.PendingPhotos(), 2)

	m.Set(true)
	c.Wait()
	assert.EqualValues(t, 1, passes.Load())
	assert.Empty(t, q.PendingPhotos())

	m.Set(true)
	c.Wait()
	assert.EqualValues(t, 1, passes.Load())
}

func TestPass_EmptyQueue(t *testing.T) {
	q, _ := newQueue(t, 0)
	rep, err := New(q, &fakeUploader{}, zerolog.Nop()).Pass(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.OK())
	assert.Zero(t, rep.Attempted)
	assert.False(t, q.LastSync().IsZero())
}

func TestPass_StopsOnCancelledContext(t *testing.T) {
	q, _ := newQueue(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := New(q, &fakeUploader{}, zerolog.Nop()).Pass(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rep.Attempted)
	assert.Len(t, q.PendingPhotos(), 3)
}
