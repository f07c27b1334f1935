package httpserver_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	httpserver "housing_sync/internal/adapters/http_server"
	redisad "housing_sync/internal/adapters/redis"
	"housing_sync/internal/app"
	"housing_sync/internal/domain"
)

// memRepo is an in-memory PropertyRepository + UserRepository.
type memRepo struct {
	mu     sync.Mutex
	props  map[string]domain.Property
	photos map[string]domain.StoredPhoto
	users  map[string]domain.UserRecord
	next   int
}

func newMemRepo() *memRepo {
	return &memRepo{props: map[string]domain.Property{}, photos: map[string]domain.StoredPhoto{}, users: map[string]domain.UserRecord{}}
}

func (m *memRepo) id() string { m.next++; return strconv.Itoa(m.next) }

func (m *memRepo) CreateProperty(_ context.Context, p domain.Property) (domain.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	p.CreatedAt = time.Now().UTC()
	m.props[p.ID] = p
	return p.Clone(), nil
}

func (m *memRepo) UpdateProperty(_ context.Context, p domain.Property) (domain.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.props[p.ID]; !ok {
		return domain.Property{}, domain.ErrNotFound
	}
	m.props[p.ID] = p
	return p.Clone(), nil
}

func (m *memRepo) DeleteProperty(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.props[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.props, id)
	return nil
}

func (m *memRepo) AddPhoto(_ context.Context, propertyID string, ph domain.StoredPhoto) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := propertyID + "/" + ph.ID
	if _, dup := m.photos[k]; dup {
		return ph.ID, domain.ErrConflict
	}
	m.photos[k] = ph
	p := m.props[propertyID]
	p.Images = append(p.Images, domain.PhotoURL(propertyID, ph.ID))
	m.props[propertyID] = p
	return ph.ID, nil
}

func (m *memRepo) GetProperty(_ context.Context, id string) (domain.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.props[id]
	if !ok {
		return domain.Property{}, domain.ErrNotFound
	}
	return p.Clone(), nil
}

func (m *memRepo) ListProperties(_ context.Context) ([]domain.Property, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Property, 0, len(m.props))
	for _, p := range m.props {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) GetPhoto(_ context.Context, propertyID, photoID string) (domain.StoredPhoto, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ph, ok := m.photos[propertyID+"/"+photoID]
	if !ok {
		return domain.StoredPhoto{}, domain.ErrNotFound
	}
	return ph, nil
}

func (m *memRepo) CreateUser(_ context.Context, u domain.UserRecord) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.users {
		if x.Email == u.Email {
			return domain.User{}, domain.ErrConflict
		}
	}
	u.ID = m.id()
	m.users[u.ID] = u
	return u.User, nil
}

func (m *memRepo) GetUserByEmail(_ context.Context, email string) (domain.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.users {
		if x.Email == email {
			return x, nil
		}
	}
	return domain.UserRecord{}, domain.ErrNotFound
}

func (m *memRepo) GetUserByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u.User, nil
}

// ---- harness ----

type reply struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cache.Close() })

	repo := newMemRepo()
	auth, err := app.NewAuthService(repo, cache, app.AuthConfig{Secret: "test-secret", TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	srv := httpserver.New(5 * time.Second)
	srv.MountHandlers(&httpserver.Handlers{
		Q:    app.NewQueryService(repo, cache, time.Minute),
		C:    app.NewCommandService(repo, cache),
		Auth: auth,
	})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, method, path, token string, body any) (*http.Response, reply) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, ts.URL+path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	var out reply
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func register(t *testing.T, ts *httptest.Server, email string, role domain.Role) domain.AuthResult {
	t.Helper()
	res, body := call(t, ts, http.MethodPost, "/api/register", "", domain.RegisterRequest{
		Name: "Test " + string(role), Email: email, Password: "secret123", PasswordConfirmation: "secret123", Role: role,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %+v", res.StatusCode, body)
	}
	var ar domain.AuthResult
	if err := json.Unmarshal(body.Data, &ar); err != nil || ar.Token == "" {
		t.Fatalf("register data: %s %v", body.Data, err)
	}
	return ar
}

func listing() domain.Property {
	return domain.Property{
		Title: "Kololo Apartment", Description: "City views", Price: 800000, Bedrooms: 2, Bathrooms: 1,
		Location:  domain.Location{Address: "Kololo", District: "Kampala"},
		Amenities: []string{"WiFi"},
		Available: true,
	}
}

// ---- tests ----

func TestHealthz(t *testing.T) {
	ts := newAPI(t)
	for _, p := range []string{"/healthz", "/api/healthz"} {
		res, err := http.Get(ts.URL + p)
		if err != nil {
			t.Fatalf("GET %s: %v", p, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d", p, res.StatusCode)
		}
	}
}

func TestAuthFlow(t *testing.T) {
	ts := newAPI(t)
	ar := register(t, ts, "tenant@example.com", domain.RoleTenant)

	res, body := call(t, ts, http.MethodPost, "/api/login", "", domain.LoginRequest{Email: "tenant@example.com", Password: "wrong-pass"})
	if res.StatusCode != http.StatusUnauthorized || body.Success {
		t.Fatalf("bad password: status %d %+v", res.StatusCode, body)
	}

	res, body = call(t, ts, http.MethodPost, "/api/login", "", domain.LoginRequest{Email: "tenant@example.com", Password: "secret123"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d", res.StatusCode)
	}
	var login domain.AuthResult
	_ = json.Unmarshal(body.Data, &login)

	res, body = call(t, ts, http.MethodGet, "/api/user", login.Token, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("user status %d", res.StatusCode)
	}
	var u domain.User
	_ = json.Unmarshal(body.Data, &u)
	if u.ID != ar.User.ID || u.Role != domain.RoleTenant {
		t.Fatalf("unexpected user: %+v", u)
	}

	res, body = call(t, ts, http.MethodPost, "/api/refresh-token", login.Token, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("refresh status %d", res.StatusCode)
	}
	var fresh struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal(body.Data, &fresh)

	// the refreshed-away token is revoked
	if res, _ := call(t, ts, http.MethodGet, "/api/user", login.Token, nil); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old token still accepted: %d", res.StatusCode)
	}
	if res, _ := call(t, ts, http.MethodPost, "/api/logout", fresh.Token, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("logout status %d", res.StatusCode)
	}
	if res, _ := call(t, ts, http.MethodGet, "/api/user", fresh.Token, nil); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("logged-out token still accepted: %d", res.StatusCode)
	}
	if res, _ := call(t, ts, http.MethodGet, "/api/user", "", nil); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token: %d", res.StatusCode)
	}
}

func TestRegisterValidation(t *testing.T) {
	ts := newAPI(t)
	register(t, ts, "dup@example.com", domain.RoleTenant)

	res, body := call(t, ts, http.MethodPost, "/api/register", "", domain.RegisterRequest{
		Name: "Again", Email: "dup@example.com", Password: "secret123", PasswordConfirmation: "secret123", Role: domain.RoleTenant,
	})
	if res.StatusCode != http.StatusUnprocessableEntity || body.Errors["email"] == "" {
		t.Fatalf("duplicate email: %d %+v", res.StatusCode, body)
	}

	res, _ = call(t, ts, http.MethodPost, "/api/register", "", map[string]string{"name": "x"})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("incomplete body: %d", res.StatusCode)
	}
}

func TestPropertyLifecycle(t *testing.T) {
	ts := newAPI(t)
	landlord := register(t, ts, "landlord@example.com", domain.RoleLandlord)
	tenant := register(t, ts, "tenant@example.com", domain.RoleTenant)

	if res, _ := call(t, ts, http.MethodPost, "/api/properties", tenant.Token, listing()); res.StatusCode != http.StatusForbidden {
		t.Fatalf("tenant create: %d", res.StatusCode)
	}
	if res, _ := call(t, ts, http.MethodPost, "/api/properties", "", listing()); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous create: %d", res.StatusCode)
	}

	bad := listing()
	bad.Title = ""
	if res, body := call(t, ts, http.MethodPost, "/api/properties", landlord.Token, bad); res.StatusCode != http.StatusUnprocessableEntity || body.Errors["title"] == "" {
		t.Fatalf("invalid create: %d %+v", res.StatusCode, body)
	}

	res, body := call(t, ts, http.MethodPost, "/api/properties", landlord.Token, listing())
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %+v", res.StatusCode, body)
	}
	var p domain.Property
	_ = json.Unmarshal(body.Data, &p)
	if p.Landlord.ID != landlord.User.ID || p.Currency != domain.CurrencyUGX {
		t.Fatalf("unexpected created listing: %+v", p)
	}

	res, body = call(t, ts, http.MethodGet, "/api/properties", "", nil)
	if res.StatusCode != http.StatusOK || res.Header.Get("Cache-Control") != "public, max-age=60" {
		t.Fatalf("list: %d cache-control=%q", res.StatusCode, res.Header.Get("Cache-Control"))
	}
	var list []domain.Property
	_ = json.Unmarshal(body.Data, &list)
	if len(list) != 1 || list[0].ID != p.ID {
		t.Fatalf("unexpected list: %+v", list)
	}

	// conditional GET
	etag := res.Header.Get("ETag")
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/properties", nil)
	req.Header.Set("If-None-Match", etag)
	cond, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional GET: %v", err)
	}
	cond.Body.Close()
	if etag == "" || cond.StatusCode != http.StatusNotModified {
		t.Fatalf("want 304 for etag %q, got %d", etag, cond.StatusCode)
	}

	upd := p
	upd.Title = "Kololo Apartment (furnished)"
	if res, _ := call(t, ts, http.MethodPut, "/api/properties/"+p.ID, tenant.Token, upd); res.StatusCode != http.StatusForbidden {
		t.Fatalf("tenant update: %d", res.StatusCode)
	}
	res, body = call(t, ts, http.MethodPut, "/api/properties/"+p.ID, landlord.Token, upd)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update: %d %+v", res.StatusCode, body)
	}

	// list cache was invalidated by the update
	_, body = call(t, ts, http.MethodGet, "/api/properties", "", nil)
	_ = json.Unmarshal(body.Data, &list)
	if list[0].Title != "Kololo Apartment (furnished)" {
		t.Fatalf("stale list after update: %+v", list[0])
	}

	if res, _ := call(t, ts, http.MethodDelete, "/api/properties/"+p.ID, landlord.Token, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", res.StatusCode)
	}
	if res, _ := call(t, ts, http.MethodGet, "/api/properties/"+p.ID, "", nil); res.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: %d", res.StatusCode)
	}
}

func TestPhotoUploadIsIdempotent(t *testing.T) {
	ts := newAPI(t)
	landlord := register(t, ts, "landlord@example.com", domain.RoleLandlord)
	_, body := call(t, ts, http.MethodPost, "/api/properties", landlord.Token, listing())
	var p domain.Property
	_ = json.Unmarshal(body.Data, &p)

	raw := []byte("\xff\xd8\xff\xe0 jpeg bytes")
	up := app.PhotoUpload{
		ID:       "upload-1",
		Data:     "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(raw),
		FileName: "front.jpg",
		MIMEType: "image/jpeg",
	}
	for i := 0; i < 2; i++ {
		res, body := call(t, ts, http.MethodPost, "/api/properties/"+p.ID+"/photos", landlord.Token, up)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("upload %d: %d %+v", i, res.StatusCode, body)
		}
	}

	_, body = call(t, ts, http.MethodGet, "/api/properties/"+p.ID, "", nil)
	_ = json.Unmarshal(body.Data, &p)
	if len(p.Images) != 1 || p.Images[0] != domain.PhotoURL(p.ID, "upload-1") {
		t.Fatalf("want one photo url, got %v", p.Images)
	}

	res, err := http.Get(ts.URL + "/api" + p.Images[0])
	if err != nil {
		t.Fatalf("GET photo: %v", err)
	}
	defer res.Body.Close()
	var got bytes.Buffer
	_, _ = got.ReadFrom(res.Body)
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != "image/jpeg" || !bytes.Equal(got.Bytes(), raw) {
		t.Fatalf("photo: %d %q %q", res.StatusCode, res.Header.Get("Content-Type"), got.Bytes())
	}

	up.MIMEType = "application/pdf"
	up.ID = "upload-2"
	if res, _ := call(t, ts, http.MethodPost, "/api/properties/"+p.ID+"/photos", landlord.Token, up); res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("non-image upload: %d", res.StatusCode)
	}
}

func TestContactLandlord(t *testing.T) {
	ts := newAPI(t)
	landlord := register(t, ts, "landlord@example.com", domain.RoleLandlord)
	tenant := register(t, ts, "tenant@example.com", domain.RoleTenant)
	_, body := call(t, ts, http.MethodPost, "/api/properties", landlord.Token, listing())
	var p domain.Property
	_ = json.Unmarshal(body.Data, &p)

	req := domain.ContactRequest{PropertyID: p.ID, Phone: "+256700000001"}
	if res, _ := call(t, ts, http.MethodPost, "/api/contact-landlord", "", req); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous contact: %d", res.StatusCode)
	}
	res, body := call(t, ts, http.MethodPost, "/api/contact-landlord", tenant.Token, req)
	if res.StatusCode != http.StatusOK || !body.Success || body.Message != "Contact request sent successfully" {
		t.Fatalf("contact: %d %+v", res.StatusCode, body)
	}
	req.PropertyID = "999"
	if res, _ := call(t, ts, http.MethodPost, "/api/contact-landlord", tenant.Token, req); res.StatusCode != http.StatusNotFound {
		t.Fatalf("contact unknown listing: %d", res.StatusCode)
	}
}
