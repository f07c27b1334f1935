package httpserver

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"housing_sync/internal/app"
	"housing_sync/internal/domain"
)

// Handlers serve the remote REST API the device agent talks to.
type Handlers struct {
	Q    *app.QueryService
	C    *app.CommandService
	Auth *app.AuthService
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", health)
	s.mux.Route("/api", func(r chi.Router) {
		r.Get("/healthz", health)
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Get("/properties", h.listProperties)
		r.Get("/properties/{id}", h.getProperty)
		r.Get("/properties/{id}/photos/{photoID}", h.getPhoto)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.Auth))
			r.Post("/logout", h.logout)
			r.Get("/user", h.user)
			r.Post("/refresh-token", h.refresh)
			r.Post("/properties", h.createProperty)
			r.Put("/properties/{id}", h.updateProperty)
			r.Delete("/properties/{id}", h.deleteProperty)
			r.Post("/properties/{id}/photos", h.addPhoto)
			r.Post("/contact-landlord", h.contactLandlord)
		})
	})
}

// ---- auth ----

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.Auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: res, Message: "Registration successful"})
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.Auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: res, Message: "Login successful"})
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.Logout(r.Context(), claimsFrom(r.Context())); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (h *Handlers) user(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, userFrom(r.Context()))
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	tok, err := h.Auth.Refresh(r.Context(), userFrom(r.Context()), claimsFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"token": tok})
}

// ---- properties ----

func (h *Handlers) listProperties(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.ListProperties(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeCacheable(w, r, out)
}

func (h *Handlers) getProperty(w http.ResponseWriter, r *http.Request) {
	p, err := h.Q.GetProperty(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeCacheable(w, r, p)
}

func (h *Handlers) createProperty(w http.ResponseWriter, r *http.Request) {
	var p domain.Property
	if err := decode(r, &p); err != nil {
		writeError(w, err)
		return
	}
	out, err := h.C.CreateProperty(r.Context(), userFrom(r.Context()), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, out)
}

func (h *Handlers) updateProperty(w http.ResponseWriter, r *http.Request) {
	var p domain.Property
	if err := decode(r, &p); err != nil {
		writeError(w, err)
		return
	}
	p.ID = chi.URLParam(r, "id")
	out, err := h.C.UpdateProperty(r.Context(), userFrom(r.Context()), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handlers) deleteProperty(w http.ResponseWriter, r *http.Request) {
	if err := h.C.DeleteProperty(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Property deleted successfully")
}

// ---- photos ----

func (h *Handlers) addPhoto(w http.ResponseWriter, r *http.Request) {
	var in app.PhotoUpload
	if err := decode(r, &in); err != nil {
		writeError(w, err)
		return
	}
	propID := chi.URLParam(r, "id")
	id, err := h.C.AddPhoto(r.Context(), userFrom(r.Context()), propID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]string{"id": id, "url": domain.PhotoURL(propID, id)})
}

func (h *Handlers) getPhoto(w http.ResponseWriter, r *http.Request) {
	ph, err := h.Q.GetPhoto(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "photoID"))
	if err != nil {
		writeError(w, err)
		return
	}
	mime := ph.MIMEType
	if mime == "" {
		mime = http.DetectContentType(ph.Data)
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(ph.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(ph.Data)
}

// ---- contact ----

func (h *Handlers) contactLandlord(w http.ResponseWriter, r *http.Request) {
	var req domain.ContactRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.C.ContactLandlord(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: res.Success, Message: res.Message})
}
