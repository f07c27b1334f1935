package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"housing_sync/internal/credentials"
	"housing_sync/internal/domain"
	"housing_sync/internal/netstatus"
	"housing_sync/internal/offline"
	"housing_sync/internal/reqcache"
	"housing_sync/internal/syncer"
)

type fakeRemote struct {
	mu        sync.Mutex
	props     []domain.Property
	listCalls int
	listErr   error
	uploads   []domain.PendingPhotoUpload
	uploadErr error
	contacts  []domain.ContactRequest
	images    map[string][]byte

	// when set, UploadPhoto signals started and blocks until gate closes
	uploadGate    chan struct{}
	uploadStarted chan struct{}

	loginErr   error
	logoutErr  error
	userErr    error
	logins     int
	logouts    int
	refreshTok string
}

func (f *fakeRemote) ListProperties(context.Context) ([]domain.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.Property(nil), f.props...), nil
}

func (f *fakeRemote) GetProperty(_ context.Context, id string) (domain.Property, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return domain.Property{}, f.listErr
	}
	for _, p := range f.props {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Property{}, domain.ErrNotFound
}

func (f *fakeRemote) CreateProperty(_ context.Context, p domain.Property) (domain.Property, error) {
	return p, nil
}

func (f *fakeRemote) UpdateProperty(_ context.Context, p domain.Property) (domain.Property, error) {
	return p, nil
}

func (f *fakeRemote) ContactLandlord(_ context.Context, req domain.ContactRequest) (domain.ContactResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contacts = append(f.contacts, req)
	return domain.ContactResult{Success: true, Message: "Contact request sent successfully"}, nil
}

func (f *fakeRemote) UploadPhoto(_ context.Context, p domain.PendingPhotoUpload) error {
	if f.uploadGate != nil {
		f.uploadStarted <- struct{}{}
		<-f.uploadGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, p)
	return nil
}

func (f *fakeRemote) FetchImage(_ context.Context, ref string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.images[ref]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	return b, "image/png", nil
}

func (f *fakeRemote) Login(_ context.Context, req domain.LoginRequest) (domain.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.loginErr != nil {
		return domain.AuthResult{}, f.loginErr
	}
	return domain.AuthResult{Token: "tok-" + req.Email, User: domain.User{ID: "u-1", Email: req.Email, Role: domain.RoleTenant}}, nil
}

func (f *fakeRemote) Register(_ context.Context, req domain.RegisterRequest) (domain.AuthResult, error) {
	return domain.AuthResult{Token: "tok-new", User: domain.User{ID: "u-2", Name: req.Name, Email: req.Email, Role: req.Role}}, nil
}

func (f *fakeRemote) Logout(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return f.logoutErr
}

func (f *fakeRemote) CurrentUser(context.Context) (domain.User, error) {
	if f.userErr != nil {
		return domain.User{}, f.userErr
	}
	return domain.User{ID: "u-1", Name: "Remote Name", Role: domain.RoleTenant}, nil
}

func (f *fakeRemote) RefreshToken(context.Context) (string, error) { return f.refreshTok, nil }

type countingCache struct{ n int }

func (c *countingCache) Clear() { c.n++ }

var errDown = &reqcache.TransportError{Method: http.MethodGet, URL: "/properties", Err: context.DeadlineExceeded}

type rig struct {
	remote  *fakeRemote
	store   *offline.Store
	creds   *credentials.Store
	cache   *countingCache
	monitor *netstatus.Monitor
	sync    *syncer.Coordinator
	agent   *Agent
}

func newRig(t *testing.T, online bool) *rig {
	t.Helper()
	kv := offline.NewMemoryKV()
	store, err := offline.Open(kv)
	require.NoError(t, err)
	creds, err := credentials.New(kv, "device-secret")
	require.NoError(t, err)

	r := &rig{
		remote:  &fakeRemote{props: sampleProperties(), images: map[string][]byte{}},
		store:   store,
		creds:   creds,
		cache:   &countingCache{},
		monitor: netstatus.New(online),
	}
	r.sync = syncer.New(store, r.remote, zerolog.Nop())
	r.sync.Attach(r.monitor)
	sess := NewSession(r.remote, creds, r.cache, nil, zerolog.Nop())
	r.agent, err = New(Deps{
		Properties: r.remote,
		Uploader:   r.remote,
		Images:     r.remote,
		Store:      store,
		Monitor:    r.monitor,
		Syncer:     r.sync,
		Session:    sess,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	return r
}

func sampleProperties() []domain.Property {
	return []domain.Property{
		{ID: "1", Title: "Kololo Studio", Price: 400000, Currency: domain.CurrencyUGX, Bedrooms: 1, Available: true,
			Location: domain.Location{District: "Kampala"}, Landlord: domain.Landlord{ID: "l-1", Name: "Sarah", Verified: true}},
		{ID: "2", Title: "Entebbe Cottage", Price: 900000, Currency: domain.CurrencyUGX, Bedrooms: 2,
			Location: domain.Location{District: "Wakiso"}, Landlord: domain.Landlord{ID: "l-2", Name: "John"}},
		{ID: "3", Title: "Naguru Villa", Price: 2500000, Currency: domain.CurrencyUGX, Bedrooms: 4, Available: true,
			Location: domain.Location{District: "Kampala"}, Landlord: domain.Landlord{ID: "l-1", Name: "Sarah", Verified: true}},
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func photo(t *testing.T) domain.PhotoPayload {
	b := pngBytes(t, 20, 10)
	return domain.PhotoPayload{
		Data:     "data:image/png;base64," + base64.StdEncoding.EncodeToString(b),
		FileName: "front.png",
		FileSize: int64(len(b)),
		MIMEType: "image/png",
	}
}
