package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"housing_sync/internal/client"
	"housing_sync/internal/domain"
	"housing_sync/internal/reqcache"
)

// AgentHandlers expose the device agent to a local UI.
type AgentHandlers struct {
	A *client.Agent
	// IsUnreachable overrides the agent's own classifier for 503 answers.
	IsUnreachable func(error) bool
}

func (s *Server) MountAgent(h *AgentHandlers) {
	s.mux.Get("/healthz", health)
	s.mux.Route("/local", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Put("/network", h.setNetwork)

		r.Get("/session", h.me)
		r.Post("/session/login", h.login)
		r.Post("/session/register", h.register)
		r.Post("/session/refresh", h.refresh)
		r.Delete("/session", h.logout)
		r.Get("/dashboard", h.dashboard)

		r.Get("/properties", h.browse)
		r.Get("/properties/{id}", h.property)
		r.Post("/properties/{id}/photos", h.addPhoto)
		r.Post("/prefetch", h.prefetch)
		r.Get("/uploads", h.uploads)
		r.Delete("/uploads/{id}", h.discardUpload)

		r.Get("/saved", h.saved)
		r.Put("/saved/{id}", h.save)
		r.Delete("/saved/{id}", h.unsave)

		r.Get("/compare", h.comparison)
		r.Put("/compare/{id}", h.compare)
		r.Delete("/compare/{id}", h.uncompare)
		r.Delete("/compare", h.clearComparison)

		r.Get("/searches", h.searches)
		r.Delete("/searches/{id}", h.removeSearch)
		r.Delete("/searches", h.clearSearches)

		r.Post("/contact", h.contact)
		r.Get("/threads", h.threads)
		r.Get("/threads/{id}/messages", h.messages)
		r.Post("/threads/{id}/messages", h.sendMessage)

		r.Get("/snapshot", h.snapshot)
		r.Delete("/snapshot", h.resetSnapshot)
	})
}

// fail adds the remote-unreachable case to writeError.
func (h *AgentHandlers) fail(w http.ResponseWriter, err error) {
	if h.unreachable(err) {
		writeMessage(w, http.StatusServiceUnavailable, "Remote service unreachable")
		return
	}
	writeError(w, err)
}

func (h *AgentHandlers) unreachable(err error) bool {
	switch {
	case err == nil:
		return false
	case h.IsUnreachable != nil:
		return h.IsUnreachable(err)
	case h.A != nil:
		return h.A.Unreachable(err)
	}
	var te *reqcache.TransportError
	return errors.As(err, &te)
}

func (h *AgentHandlers) currentUserID(w http.ResponseWriter) (string, bool) {
	u, ok := h.A.Session().User()
	if !ok {
		h.fail(w, domain.ErrUnauthorized)
		return "", false
	}
	return u.ID, true
}

// ---- status ----

func (h *AgentHandlers) status(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.A.Status())
}

func (h *AgentHandlers) setNetwork(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Online bool `json:"online"`
	}
	if err := decode(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	h.A.SetOnline(in.Online)
	writeData(w, http.StatusOK, h.A.Status())
}

// ---- session ----

type loginBody struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

func (h *AgentHandlers) login(w http.ResponseWriter, r *http.Request) {
	var in loginBody
	if err := decode(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	u, err := h.A.Session().Login(r.Context(), in.Email, in.Password, in.RememberMe)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, u)
}

func (h *AgentHandlers) register(w http.ResponseWriter, r *http.Request) {
	var in struct {
		domain.RegisterRequest
		RememberMe bool `json:"rememberMe"`
	}
	if err := decode(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	u, err := h.A.Session().Register(r.Context(), in.RegisterRequest, in.RememberMe)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusCreated, u)
}

func (h *AgentHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.A.Session().Refresh(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Token refreshed")
}

func (h *AgentHandlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.A.Session().Logout(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (h *AgentHandlers) me(w http.ResponseWriter, r *http.Request) {
	u, err := h.A.Session().Me(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, u)
}

func (h *AgentHandlers) dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.A.Dashboard(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, d)
}

// ---- browsing ----

// parseFilter reads q, district, minBedrooms, minPrice, maxPrice and available.
func parseFilter(r *http.Request) (domain.PropertyFilter, error) {
	q := r.URL.Query()
	f := domain.PropertyFilter{
		Query:    strings.TrimSpace(q.Get("q")),
		District: strings.TrimSpace(q.Get("district")),
	}
	ve := domain.ValidationError{}
	if s := q.Get("minBedrooms"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			ve.Add("minBedrooms", "must be a non-negative integer")
		}
		f.MinBedrooms = n
	}
	for name, dst := range map[string]**float64{"minPrice": &f.MinPrice, "maxPrice": &f.MaxPrice} {
		if s := q.Get(name); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil || v < 0 {
				ve.Add(name, "must be a non-negative number")
				continue
			}
			*dst = &v
		}
	}
	if s := q.Get("available"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			ve.Add("available", "must be true or false")
		}
		f.Available = b
	}
	return f, ve.OrNil()
}

func (h *AgentHandlers) browse(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.A.Browse(r.Context(), f)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *AgentHandlers) property(w http.ResponseWriter, r *http.Request) {
	p, offline, err := h.A.Property(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"property": p, "offline": offline})
}

// ---- photos ----

func (h *AgentHandlers) addPhoto(w http.ResponseWriter, r *http.Request) {
	var in domain.PhotoPayload
	if err := decode(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	up, err := h.A.AddPhoto(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusAccepted, up)
}

func (h *AgentHandlers) uploads(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.A.PendingPhotos(r.URL.Query().Get("propertyId")))
}

func (h *AgentHandlers) discardUpload(w http.ResponseWriter, r *http.Request) {
	if err := h.A.DiscardPhoto(chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AgentHandlers) prefetch(w http.ResponseWriter, r *http.Request) {
	n, err := h.A.Prefetch(r.Context(), h.A.Snapshot().Properties)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"stored": n})
}

// ---- saved ----

func (h *AgentHandlers) saved(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.currentUserID(w)
	if !ok {
		return
	}
	writeData(w, http.StatusOK, h.A.Saved(uid))
}

func (h *AgentHandlers) save(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.currentUserID(w)
	if !ok {
		return
	}
	if err := h.A.Save(r.Context(), uid, chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, h.A.Saved(uid))
}

func (h *AgentHandlers) unsave(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.currentUserID(w)
	if !ok {
		return
	}
	if err := h.A.Unsave(uid, chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, h.A.Saved(uid))
}

// ---- comparison and searches ----

func (h *AgentHandlers) comparison(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.A.Comparison())
}

func (h *AgentHandlers) compare(w http.ResponseWriter, r *http.Request) {
	out, err := h.A.Compare(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, out)
}

func (h *AgentHandlers) uncompare(w http.ResponseWriter, r *http.Request) {
	if err := h.A.Uncompare(chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, h.A.Comparison())
}

func (h *AgentHandlers) clearComparison(w http.ResponseWriter, r *http.Request) {
	if err := h.A.ClearComparison(); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AgentHandlers) searches(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.A.RecentSearches())
}

func (h *AgentHandlers) removeSearch(w http.ResponseWriter, r *http.Request) {
	if err := h.A.RemoveRecentSearch(chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, h.A.RecentSearches())
}

func (h *AgentHandlers) clearSearches(w http.ResponseWriter, r *http.Request) {
	if err := h.A.ClearRecentSearches(); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- messages ----

func (h *AgentHandlers) contact(w http.ResponseWriter, r *http.Request) {
	var in domain.ContactRequest
	if err := decode(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	res, err := h.A.ContactLandlord(r.Context(), in.PropertyID, in.Phone)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: res.Success, Message: res.Message})
}

func (h *AgentHandlers) threads(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.A.Threads(r.URL.Query().Get("q")))
}

func (h *AgentHandlers) messages(w http.ResponseWriter, r *http.Request) {
	out, err := h.A.Messages(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusOK, out)
}

func (h *AgentHandlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Content string `json:"content"`
	}
	if err := decode(r, &in); err != nil {
		h.fail(w, err)
		return
	}
	if strings.TrimSpace(in.Content) == "" {
		h.fail(w, &domain.ValidationError{Fields: map[string]string{"content": "is required"}})
		return
	}
	m, err := h.A.SendMessage(chi.URLParam(r, "id"), in.Content)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeData(w, http.StatusCreated, m)
}

// ---- mirror ----

func (h *AgentHandlers) snapshot(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.A.Snapshot())
}

func (h *AgentHandlers) resetSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := h.A.ResetOffline(); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
