// Package offline keeps the device-local mirror: viewed and saved listings,
// photo blobs and the pending photo-upload queue. Every mutation is written
// through to a KV before the in-memory view changes.
package offline

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"housing_sync/internal/adapters/observability"
	"housing_sync/internal/domain"
	"housing_sync/internal/validation"
)

const (
	prefixProp    = "prop:"
	prefixSaved   = "saved:"
	prefixPhoto   = "photo:"
	prefixPending = "pending:"
	keyLastSync   = "meta:lastSync"
)

type savedKey struct{ user, prop string }

type Option func(*Store)

func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

func WithIDGenerator(fn func() string) Option { return func(s *Store) { s.newID = fn } }

type Store struct {
	kv    KV
	now   func() time.Time
	newID func() string

	mu       sync.RWMutex
	props    map[string]domain.Property
	saved    map[savedKey]domain.SavedProperty
	photos   map[string]string
	pending  map[string]domain.PendingPhotoUpload
	inflight map[string]struct{} // claimed for upload, never persisted
	seq      uint64
	lastSync time.Time

	lists
}

// Open rebuilds the in-memory view from kv.
func Open(kv KV, opts ...Option) (*Store, error) {
	s := &Store{
		kv:       kv,
		now:      time.Now,
		newID:    uuid.NewString,
		props:    make(map[string]domain.Property),
		saved:    make(map[savedKey]domain.SavedProperty),
		photos:   make(map[string]string),
		pending:  make(map[string]domain.PendingPhotoUpload),
		inflight: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	observability.SetPendingUploads(s.countPending())
	return s, nil
}

func (s *Store) load() error {
	err := s.kv.Scan(prefixProp, func(_ string, v []byte) error {
		var p domain.Property
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		s.props[p.ID] = p
		return nil
	})
	if err != nil {
		return fmt.Errorf("load properties: %w", err)
	}
	err = s.kv.Scan(prefixSaved, func(_ string, v []byte) error {
		var sp domain.SavedProperty
		if err := json.Unmarshal(v, &sp); err != nil {
			return err
		}
		s.saved[savedKey{sp.UserID, sp.PropertyID}] = sp
		return nil
	})
	if err != nil {
		return fmt.Errorf("load saved: %w", err)
	}
	err = s.kv.Scan(prefixPhoto, func(k string, v []byte) error {
		s.photos[strings.TrimPrefix(k, prefixPhoto)] = string(v)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load photos: %w", err)
	}
	err = s.kv.Scan(prefixPending, func(_ string, v []byte) error {
		var p domain.PendingPhotoUpload
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		s.pending[p.ID] = p
		if p.Seq > s.seq {
			s.seq = p.Seq
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load pending: %w", err)
	}
	if raw, ok, err := s.kv.Get(keyLastSync); err != nil {
		return fmt.Errorf("load lastSync: %w", err)
	} else if ok {
		if err := json.Unmarshal(raw, &s.lastSync); err != nil {
			return fmt.Errorf("decode lastSync: %w", err)
		}
	}
	return s.lists.load(s.kv)
}

func (s *Store) put(key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Set(key, b)
}

// touch records now as lastSync. Caller holds mu.
func (s *Store) touch() error {
	t := s.now().UTC()
	if err := s.put(keyLastSync, t); err != nil {
		return err
	}
	s.lastSync = t
	return nil
}

func savedKV(user, prop string) string { return prefixSaved + user + "\x00" + prop }

func pendingKV(seq uint64) string { return fmt.Sprintf("%s%020d", prefixPending, seq) }

// ---- property mirror ----

// SavePropertySnapshot upserts p by ID.
func (s *Store) SavePropertySnapshot(p domain.Property) error {
	if strings.TrimSpace(p.ID) == "" {
		ve := domain.ValidationError{}
		ve.Add("id", "is required")
		return ve.OrNil()
	}
	p = p.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.put(prefixProp+p.ID, p); err != nil {
		return err
	}
	s.props[p.ID] = p
	return s.touch()
}

// RemovePropertySnapshot is a no-op for unknown ids.
func (s *Store) RemovePropertySnapshot(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.props[id]; !ok {
		return nil
	}
	if err := s.kv.Delete(prefixProp + id); err != nil {
		return err
	}
	delete(s.props, id)
	return s.touch()
}

func (s *Store) Property(id string) (domain.Property, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.props[id]
	if !ok {
		return domain.Property{}, false
	}
	return p.Clone(), true
}

// Properties returns the mirror newest first.
func (s *Store) Properties() []domain.Property {
	s.mu.RLock()
	out := make([]domain.Property, 0, len(s.props))
	for _, p := range s.props {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ---- saved relation ----

// MarkSaved is idempotent; saving again refreshes SavedAt.
func (s *Store) MarkSaved(userID, propertyID string) error {
	if userID == "" || propertyID == "" {
		ve := domain.ValidationError{}
		if userID == "" {
			ve.Add("userId", "is required")
		}
		if propertyID == "" {
			ve.Add("propertyId", "is required")
		}
		return ve.OrNil()
	}
	sp := domain.SavedProperty{UserID: userID, PropertyID: propertyID, SavedAt: s.now().UTC()}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.put(savedKV(userID, propertyID), sp); err != nil {
		return err
	}
	s.saved[savedKey{userID, propertyID}] = sp
	return s.touch()
}

// UnmarkSaved is a no-op when the pair is not saved.
func (s *Store) UnmarkSaved(userID, propertyID string) error {
	k := savedKey{userID, propertyID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.saved[k]; !ok {
		return nil
	}
	if err := s.kv.Delete(savedKV(userID, propertyID)); err != nil {
		return err
	}
	delete(s.saved, k)
	return s.touch()
}

func (s *Store) IsSaved(userID, propertyID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.saved[savedKey{userID, propertyID}]
	return ok
}

// SavedRecords returns userID's saved pairs ordered by SavedAt, then property ID.
func (s *Store) SavedRecords(userID string) []domain.SavedProperty {
	s.mu.RLock()
	var out []domain.SavedProperty
	for k, sp := range s.saved {
		if k.user == userID {
			out = append(out, sp)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SavedAt.Equal(out[j].SavedAt) {
			return out[i].SavedAt.Before(out[j].SavedAt)
		}
		return out[i].PropertyID < out[j].PropertyID
	})
	return out
}

// ListSaved returns the mirrored listings userID saved, in SavedRecords
// order. Saved ids with no mirrored listing are skipped.
func (s *Store) ListSaved(userID string) []domain.Property {
	recs := s.SavedRecords(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Property, 0, len(recs))
	for _, r := range recs {
		if p, ok := s.props[r.PropertyID]; ok {
			out = append(out, p.Clone())
		}
	}
	return out
}

// ---- photo blobs ----

func (s *Store) StorePhotoBlob(propertyID string, index int, data string) error {
	if propertyID == "" || index < 0 {
		ve := domain.ValidationError{}
		ve.Add("photo", "property id and a non-negative index are required")
		return ve.OrNil()
	}
	k := domain.PhotoKey(propertyID, index)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(prefixPhoto+k, []byte(data)); err != nil {
		return err
	}
	s.photos[k] = data
	return s.touch()
}

func (s *Store) FetchPhotoBlob(propertyID string, index int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.photos[domain.PhotoKey(propertyID, index)]
	return v, ok
}

// NextPhotoIndex is the first free blob index for propertyID.
func (s *Store) NextPhotoIndex(propertyID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := 0
	for {
		if _, ok := s.photos[domain.PhotoKey(propertyID, i)]; !ok {
			return i
		}
		i++
	}
}

// ---- pending upload queue ----

// EnqueuePendingPhoto validates payload and appends it with status pending.
func (s *Store) EnqueuePendingPhoto(propertyID string, payload domain.PhotoPayload) (string, error) {
	if err := validation.Struct(payload); err != nil {
		return "", err
	}
	if propertyID == "" {
		ve := domain.ValidationError{}
		ve.Add("propertyId", "is required")
		return "", ve.OrNil()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := domain.PendingPhotoUpload{
		ID:         s.newID(),
		Seq:        s.seq + 1,
		PropertyID: propertyID,
		Data:       payload.Data,
		FileName:   payload.FileName,
		FileSize:   payload.FileSize,
		MIMEType:   payload.MIMEType,
		EnqueuedAt: s.now().UTC(),
		Status:     domain.PhotoPending,
	}
	if _, dup := s.pending[p.ID]; dup {
		return "", fmt.Errorf("pending id %s already queued", p.ID)
	}
	if err := s.put(pendingKV(p.Seq), p); err != nil {
		return "", err
	}
	s.seq = p.Seq
	s.pending[p.ID] = p
	observability.SetPendingUploads(s.countPending())
	return p.ID, nil
}

// UpdatePhotoStatus is a no-op for unknown ids.
func (s *Store) UpdatePhotoStatus(id string, status domain.PhotoStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid photo status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return nil
	}
	p.Status = status
	if err := s.put(pendingKV(p.Seq), p); err != nil {
		return err
	}
	s.pending[id] = p
	observability.SetPendingUploads(s.countPending())
	return nil
}

// DequeuePhoto removes id from the queue; unknown ids are a no-op.
func (s *Store) DequeuePhoto(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return nil
	}
	if err := s.kv.Delete(pendingKV(p.Seq)); err != nil {
		return err
	}
	delete(s.pending, id)
	observability.SetPendingUploads(s.countPending())
	return nil
}

// Pending looks up one queued item.
func (s *Store) Pending(id string) (domain.PendingPhotoUpload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[id]
	return p, ok
}

// ClaimPhoto marks id as being uploaded and returns its current state. It
// fails when id is no longer queued, is not pending, or is already claimed.
// Every successful claim must be paired with ReleasePhoto.
func (s *Store) ClaimPhoto(id string) (domain.PendingPhotoUpload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok || p.Status != domain.PhotoPending {
		return domain.PendingPhotoUpload{}, false
	}
	if _, busy := s.inflight[id]; busy {
		return domain.PendingPhotoUpload{}, false
	}
	s.inflight[id] = struct{}{}
	return p, true
}

func (s *Store) ReleasePhoto(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// PendingPhotos returns the whole queue in enqueue order, any status.
func (s *Store) PendingPhotos() []domain.PendingPhotoUpload {
	return s.pendingWhere(func(domain.PendingPhotoUpload) bool { return true })
}

func (s *Store) PendingPhotosFor(propertyID string) []domain.PendingPhotoUpload {
	return s.pendingWhere(func(p domain.PendingPhotoUpload) bool { return p.PropertyID == propertyID })
}

func (s *Store) pendingWhere(keep func(domain.PendingPhotoUpload) bool) []domain.PendingPhotoUpload {
	s.mu.RLock()
	out := make([]domain.PendingPhotoUpload, 0, len(s.pending))
	for _, p := range s.pending {
		if keep(p) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// countPending counts items still waiting. Caller holds mu.
func (s *Store) countPending() int {
	n := 0
	for _, p := range s.pending {
		if p.Status == domain.PhotoPending {
			n++
		}
	}
	return n
}

// ---- snapshot / lifecycle ----

func (s *Store) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync
}

// TouchSync records a successful return to connectivity.
func (s *Store) TouchSync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touch()
}

// Snapshot copies the mirror. Properties come back newest first and saved
// records ordered by user, then SavedAt.
func (s *Store) Snapshot() domain.OfflineSnapshot {
	snap := domain.OfflineSnapshot{Properties: s.Properties()}
	s.mu.RLock()
	snap.LastSync = s.lastSync
	snap.Photos = make(map[string]string, len(s.photos))
	for k, v := range s.photos {
		snap.Photos[k] = v
	}
	snap.SavedProperties = make([]domain.SavedProperty, 0, len(s.saved))
	for _, sp := range s.saved {
		snap.SavedProperties = append(snap.SavedProperties, sp)
	}
	s.mu.RUnlock()
	sort.Slice(snap.SavedProperties, func(i, j int) bool {
		a, b := snap.SavedProperties[i], snap.SavedProperties[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if !a.SavedAt.Equal(b.SavedAt) {
			return a.SavedAt.Before(b.SavedAt)
		}
		return a.PropertyID < b.PropertyID
	})
	return snap
}

// Reset wipes the mirror, the queue and the local lists.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, prefix := range append([]string{prefixProp, prefixSaved, prefixPhoto, prefixPending, keyLastSync}, listPrefixes...) {
		var keys []string
		if err := s.kv.Scan(prefix, func(k string, _ []byte) error {
			keys = append(keys, k)
			return nil
		}); err != nil {
			errs = append(errs, err)
			continue
		}
		for _, k := range keys {
			if err := s.kv.Delete(k); err != nil {
				errs = append(errs, err)
			}
		}
	}
	s.props = make(map[string]domain.Property)
	s.saved = make(map[savedKey]domain.SavedProperty)
	s.photos = make(map[string]string)
	s.pending = make(map[string]domain.PendingPhotoUpload)
	s.lastSync = time.Time{}
	s.lists.reset()
	observability.SetPendingUploads(0)
	return errors.Join(errs...)
}

func (s *Store) Close() error { return s.kv.Close() }
