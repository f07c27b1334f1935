// Package client is the device-side facade: browsing with offline fallback,
// saved listings, queued photos, comparison, recent searches, messages and
// role dashboards, all on top of the sync core.
package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"housing_sync/internal/domain"
	"housing_sync/internal/netstatus"
	"housing_sync/internal/offline"
	"housing_sync/internal/reqcache"
	"housing_sync/internal/syncer"
	"housing_sync/internal/validation"
)

const MaxPhotosPerProperty = 10

// ImageFetcher downloads listing images for offline viewing.
type ImageFetcher interface {
	FetchImage(ctx context.Context, ref string) ([]byte, string, error)
}

type Deps struct {
	Properties domain.PropertyService
	Uploader   domain.PhotoUploader
	Images     ImageFetcher
	Store      *offline.Store
	Monitor    *netstatus.Monitor
	Syncer     *syncer.Coordinator
	Session    *Session
	// IsUnreachable classifies errors that mean "no answer from the remote".
	IsUnreachable func(error) bool
	PrefetchLimit int
	Logger        zerolog.Logger
}

type Agent struct {
	props       domain.PropertyService
	uploader    domain.PhotoUploader
	images      ImageFetcher
	store       *offline.Store
	monitor     *netstatus.Monitor
	sync        *syncer.Coordinator
	session     *Session
	unreachable func(error) bool
	prefetch    int
	log         zerolog.Logger
}

func New(d Deps) (*Agent, error) {
	if d.Properties == nil || d.Store == nil || d.Monitor == nil || d.Session == nil {
		return nil, errors.New("client: properties, store, monitor and session are required")
	}
	if d.IsUnreachable == nil {
		d.IsUnreachable = defaultUnreachable
	}
	if d.PrefetchLimit <= 0 {
		d.PrefetchLimit = 4
	}
	return &Agent{
		props:       d.Properties,
		uploader:    d.Uploader,
		images:      d.Images,
		store:       d.Store,
		monitor:     d.Monitor,
		sync:        d.Syncer,
		session:     d.Session,
		unreachable: d.IsUnreachable,
		prefetch:    d.PrefetchLimit,
		log:         d.Logger,
	}, nil
}

func defaultUnreachable(err error) bool {
	var te *reqcache.TransportError
	return errors.As(err, &te)
}

func (a *Agent) Session() *Session { return a.session }

// Unreachable reports whether err means the remote gave no answer, using the
// classifier the agent was built with.
func (a *Agent) Unreachable(err error) bool { return a.unreachable(err) }

// ---- browsing ----

// BrowseResult is a filtered listing page. Offline is set when it came from
// the local mirror instead of the remote.
type BrowseResult struct {
	Properties []domain.Property `json:"properties"`
	Offline    bool              `json:"offline"`
}

// Browse lists properties matching f. Listings fetched from the remote are
// mirrored; when offline or unreachable the mirror answers instead.
// Non-empty filters are recorded as a recent search.
func (a *Agent) Browse(ctx context.Context, f domain.PropertyFilter) (BrowseResult, error) {
	var res BrowseResult
	all, err := a.remoteList(ctx)
	switch {
	case err == nil:
		res.Properties = all
	case a.unreachable(err):
		a.log.Info().Err(err).Msg("remote unreachable; browsing local mirror")
		res.Properties, res.Offline = a.store.Properties(), true
	default:
		return BrowseResult{}, err
	}
	res.Properties = domain.FilterProperties(res.Properties, f)
	if !f.IsZero() {
		if _, err := a.store.RecordSearch(f, len(res.Properties)); err != nil {
			a.log.Warn().Err(err).Msg("record recent search")
		}
	}
	return res, nil
}

func (a *Agent) remoteList(ctx context.Context) ([]domain.Property, error) {
	if !a.monitor.Online() {
		return nil, &reqcache.TransportError{Method: http.MethodGet, URL: "/properties", Err: errOffline}
	}
	ps, err := a.props.ListProperties(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		if err := a.store.SavePropertySnapshot(p); err != nil {
			a.log.Warn().Err(err).Str("property_id", p.ID).Msg("mirror property")
		}
	}
	return ps, nil
}

var errOffline = errors.New("device is offline")

// Property returns one listing, from the remote when possible.
func (a *Agent) Property(ctx context.Context, id string) (domain.Property, bool, error) {
	if a.monitor.Online() {
		p, err := a.props.GetProperty(ctx, id)
		if err == nil {
			if serr := a.store.SavePropertySnapshot(p); serr != nil {
				a.log.Warn().Err(serr).Str("property_id", id).Msg("mirror property")
			}
			return p, false, nil
		}
		if !a.unreachable(err) {
			return domain.Property{}, false, err
		}
	}
	p, ok := a.store.Property(id)
	if !ok {
		return domain.Property{}, true, domain.ErrNotFound
	}
	return p, true, nil
}

// ---- saved ----

// Save marks propertyID saved for userID and makes sure a snapshot of it is
// mirrored so the saved list works offline.
func (a *Agent) Save(ctx context.Context, userID, propertyID string) error {
	if userID == "" || propertyID == "" {
		return &domain.ValidationError{Fields: map[string]string{"propertyId": "user and property are required"}}
	}
	if _, ok := a.store.Property(propertyID); !ok {
		if _, _, err := a.Property(ctx, propertyID); err != nil {
			return fmt.Errorf("save %s: %w", propertyID, err)
		}
	}
	return a.store.MarkSaved(userID, propertyID)
}

func (a *Agent) Unsave(userID, propertyID string) error {
	return a.store.UnmarkSaved(userID, propertyID)
}

func (a *Agent) Saved(userID string) []domain.Property {
	return a.store.ListSaved(userID)
}

func (a *Agent) IsSaved(userID, propertyID string) bool {
	return a.store.IsSaved(userID, propertyID)
}

// ---- photos ----

// AddPhoto prepares a picked photo, keeps a local copy, queues it and, when
// online, tries to upload it right away. The item stays queued on failure.
func (a *Agent) AddPhoto(ctx context.Context, propertyID string, in domain.PhotoPayload) (domain.PendingPhotoUpload, error) {
	if propertyID == "" {
		return domain.PendingPhotoUpload{}, &domain.ValidationError{Fields: map[string]string{"propertyId": "is required"}}
	}
	have := len(a.store.PendingPhotosFor(propertyID))
	if p, ok := a.store.Property(propertyID); ok {
		have += len(p.Images)
	}
	if have >= MaxPhotosPerProperty {
		return domain.PendingPhotoUpload{}, &domain.ValidationError{Fields: map[string]string{
			"photos": fmt.Sprintf("a property can have at most %d photos", MaxPhotosPerProperty),
		}}
	}

	prepared, err := offline.PreparePhoto(in)
	if err != nil {
		return domain.PendingPhotoUpload{}, err
	}
	if err := a.store.StorePhotoBlob(propertyID, a.store.NextPhotoIndex(propertyID), prepared.Data); err != nil {
		return domain.PendingPhotoUpload{}, fmt.Errorf("store photo: %w", err)
	}
	id, err := a.store.EnqueuePendingPhoto(propertyID, prepared)
	if err != nil {
		return domain.PendingPhotoUpload{}, err
	}
	item, _ := a.store.Pending(id)
	if !a.monitor.Online() {
		return item, nil
	}

	if err := a.uploadNow(ctx, id); err != nil {
		a.log.Info().Err(err).Str("upload_id", id).Msg("photo queued for next sync")
		return item, nil
	}
	item.Status = domain.PhotoUploaded
	return item, nil
}

// uploadNow sends one queued item under the same claim a sync pass takes, so
// the two never upload it concurrently.
func (a *Agent) uploadNow(ctx context.Context, id string) error {
	if a.sync != nil {
		return a.sync.UploadOne(ctx, id)
	}
	if a.uploader == nil {
		return errors.New("no uploader configured")
	}
	p, ok := a.store.ClaimPhoto(id)
	if !ok {
		return syncer.ErrNotClaimable
	}
	defer a.store.ReleasePhoto(id)
	if err := a.uploader.UploadPhoto(ctx, p); err != nil {
		return err
	}
	if err := a.store.UpdatePhotoStatus(id, domain.PhotoUploaded); err != nil {
		return err
	}
	return a.store.DequeuePhoto(id)
}

// DiscardPhoto drops a queued upload the user no longer wants.
func (a *Agent) DiscardPhoto(id string) error { return a.store.DequeuePhoto(id) }

func (a *Agent) PendingPhotos(propertyID string) []domain.PendingPhotoUpload {
	if propertyID == "" {
		return a.store.PendingPhotos()
	}
	return a.store.PendingPhotosFor(propertyID)
}

// Prefetch downloads the listing images of the given properties into the
// local photo blobs, a few at a time. Images already stored are skipped.
func (a *Agent) Prefetch(ctx context.Context, properties []domain.Property) (int, error) {
	if a.images == nil || !a.monitor.Online() {
		return 0, nil
	}
	type job struct {
		propertyID string
		index      int
		ref        string
	}
	var jobs []job
	for _, p := range properties {
		for i, ref := range p.Images {
			if _, ok := a.store.FetchPhotoBlob(p.ID, i); ok || ref == "" {
				continue
			}
			jobs = append(jobs, job{p.ID, i, ref})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.prefetch)
	fetched := make([]bool, len(jobs))
	for i, j := range jobs {
		g.Go(func() error {
			if strings.HasPrefix(j.ref, "data:") {
				fetched[i] = true
				return a.store.StorePhotoBlob(j.propertyID, j.index, j.ref)
			}
			body, ct, err := a.images.FetchImage(gctx, j.ref)
			if err != nil {
				if a.unreachable(err) || errors.Is(err, context.Canceled) {
					return err
				}
				a.log.Debug().Err(err).Str("ref", j.ref).Msg("skip listing image")
				return nil
			}
			if ct == "" {
				ct = http.DetectContentType(body)
			}
			uri := "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(body)
			fetched[i] = true
			return a.store.StorePhotoBlob(j.propertyID, j.index, uri)
		})
	}
	err := g.Wait()
	n := 0
	for _, ok := range fetched {
		if ok {
			n++
		}
	}
	return n, err
}

// ---- comparison and recent searches ----

// Compare adds a listing to the comparison list, fetching it if needed.
func (a *Agent) Compare(ctx context.Context, propertyID string) ([]domain.Property, error) {
	p, _, err := a.Property(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	return a.store.AddToComparison(p)
}

func (a *Agent) Uncompare(propertyID string) error { return a.store.RemoveFromComparison(propertyID) }

func (a *Agent) Comparison() []domain.Property { return a.store.Comparison() }

func (a *Agent) ClearComparison() error { return a.store.ClearComparison() }

func (a *Agent) RecentSearches() []domain.RecentSearch { return a.store.RecentSearches() }

func (a *Agent) RemoveRecentSearch(id string) error { return a.store.RemoveRecentSearch(id) }

func (a *Agent) ClearRecentSearches() error { return a.store.ClearRecentSearches() }

// ---- messages ----

// ContactLandlord sends the contact request and opens (or reuses) a local
// thread with the landlord, noting the request in it.
func (a *Agent) ContactLandlord(ctx context.Context, propertyID, phone string) (domain.ContactResult, error) {
	req := domain.ContactRequest{PropertyID: propertyID, Phone: phone}
	if err := validation.Struct(req); err != nil {
		return domain.ContactResult{}, err
	}
	res, err := a.props.ContactLandlord(ctx, req)
	if err != nil {
		return domain.ContactResult{}, err
	}

	p, ok := a.store.Property(propertyID)
	if !ok || p.Landlord.ID == "" {
		return res, nil
	}
	th, ok := a.store.ThreadWith(p.Landlord.ID, p.Title)
	if !ok {
		th, err = a.store.UpsertThread(domain.MessageThread{
			ParticipantID:   p.Landlord.ID,
			ParticipantName: p.Landlord.Name,
			ParticipantRole: domain.RoleLandlord,
			PropertyTitle:   p.Title,
		})
		if err != nil {
			return res, fmt.Errorf("open thread: %w", err)
		}
	}
	me, _ := a.session.User()
	_, err = a.store.AppendMessage(domain.Message{
		ThreadID:   th.ID,
		SenderID:   me.ID,
		ReceiverID: p.Landlord.ID,
		PropertyID: p.ID,
		Content:    fmt.Sprintf("Contact request sent for %q (%s)", p.Title, phone),
		Kind:       domain.MessageSystem,
	}, me.ID)
	if err != nil {
		return res, fmt.Errorf("note contact request: %w", err)
	}
	return res, nil
}

func (a *Agent) Threads(query string) []domain.MessageThread { return a.store.Threads(query) }

// Messages returns a thread's messages and marks it read.
func (a *Agent) Messages(threadID string) ([]domain.Message, error) {
	if _, ok := a.store.Thread(threadID); !ok {
		return nil, domain.ErrNotFound
	}
	if err := a.store.MarkThreadRead(threadID); err != nil {
		return nil, err
	}
	return a.store.Messages(threadID), nil
}

// SendMessage appends a text message from the signed-in user.
func (a *Agent) SendMessage(threadID, content string) (domain.Message, error) {
	me, ok := a.session.User()
	if !ok {
		return domain.Message{}, domain.ErrUnauthorized
	}
	th, ok := a.store.Thread(threadID)
	if !ok {
		return domain.Message{}, domain.ErrNotFound
	}
	return a.store.AppendMessage(domain.Message{
		ThreadID:   threadID,
		SenderID:   me.ID,
		ReceiverID: th.ParticipantID,
		Content:    content,
		Kind:       domain.MessageText,
	}, me.ID)
}

// ---- status ----

type Status struct {
	Online         bool      `json:"online"`
	PendingUploads int       `json:"pendingUploads"`
	LastSync       time.Time `json:"lastSync"`
	Syncing        bool      `json:"syncing"`
	SignedIn       bool      `json:"signedIn"`
}

func (a *Agent) Status() Status {
	n := 0
	for _, p := range a.store.PendingPhotos() {
		if p.Status == domain.PhotoPending {
			n++
		}
	}
	_, signedIn := a.session.User()
	st := Status{
		Online:         a.monitor.Online(),
		PendingUploads: n,
		LastSync:       a.store.LastSync(),
		SignedIn:       signedIn,
	}
	if a.sync != nil {
		st.Syncing = a.sync.Running()
	}
	return st
}

// SetOnline feeds the platform connectivity signal to the monitor.
func (a *Agent) SetOnline(online bool) { a.monitor.Set(online) }

// Snapshot exports the offline mirror.
func (a *Agent) Snapshot() domain.OfflineSnapshot { return a.store.Snapshot() }

// ResetOffline wipes every locally mirrored item.
func (a *Agent) ResetOffline() error { return a.store.Reset() }
