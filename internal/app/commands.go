package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"housing_sync/internal/domain"
	"housing_sync/internal/validation"
)

const MaxPhotosPerProperty = 10

var errBadPhotoData = errors.New("photo data is not valid base64")

// PhotoUpload is the body of POST /properties/{id}/photos. ID is chosen by
// the device so a resent upload is recognised.
type PhotoUpload struct {
	ID       string `json:"id" validate:"omitempty,max=64"`
	Data     string `json:"data"`
	FileName string `json:"fileName"`
	MIMEType string `json:"mimeType"`
}

type CommandService struct {
	repo  domain.PropertyRepository
	cache domain.Cache
}

func NewCommandService(r domain.PropertyRepository, cache domain.Cache) *CommandService {
	return &CommandService{repo: r, cache: cache}
}

func canList(u domain.User) bool {
	return u.Role == domain.RoleLandlord || u.Role == domain.RoleAdmin
}

// owns reports whether actor may change p.
func owns(actor domain.User, p domain.Property) bool {
	return actor.Role == domain.RoleAdmin || (actor.Role == domain.RoleLandlord && p.Landlord.ID == actor.ID)
}

// CreateProperty lists p for actor. Landlords always list as themselves.
func (s *CommandService) CreateProperty(ctx context.Context, actor domain.User, p domain.Property) (domain.Property, error) {
	if !canList(actor) {
		return domain.Property{}, domain.ErrForbidden
	}
	p = normalizeProperty(p)
	p.ID = ""
	if actor.Role == domain.RoleLandlord || p.Landlord.ID == "" {
		p.Landlord = domain.Landlord{ID: actor.ID, Name: actor.Name, Phone: actor.Phone, Verified: p.Landlord.Verified && actor.Role == domain.RoleAdmin}
	}
	if err := p.Validate(); err != nil {
		return domain.Property{}, err
	}
	out, err := s.repo.CreateProperty(ctx, p)
	if err != nil {
		return domain.Property{}, err
	}
	s.invalidateList(ctx)
	return out, nil
}

func (s *CommandService) UpdateProperty(ctx context.Context, actor domain.User, p domain.Property) (domain.Property, error) {
	stored, err := s.repo.GetProperty(ctx, p.ID)
	if err != nil {
		return domain.Property{}, err
	}
	if !owns(actor, stored) {
		return domain.Property{}, domain.ErrForbidden
	}
	next := mergeUpdate(stored, p)
	if err := next.Validate(); err != nil {
		return domain.Property{}, err
	}
	out, err := s.repo.UpdateProperty(ctx, next)
	if err != nil {
		return domain.Property{}, err
	}
	s.invalidateProperty(ctx, p.ID)
	return out, nil
}

func (s *CommandService) DeleteProperty(ctx context.Context, actor domain.User, id string) error {
	stored, err := s.repo.GetProperty(ctx, id)
	if err != nil {
		return err
	}
	if !owns(actor, stored) {
		return domain.ErrForbidden
	}
	if err := s.repo.DeleteProperty(ctx, id); err != nil {
		return err
	}
	s.invalidateProperty(ctx, id)
	return nil
}

// AddPhoto stores an uploaded photo and returns its id. Re-sending an id the
// server already holds is accepted without storing a second copy.
func (s *CommandService) AddPhoto(ctx context.Context, actor domain.User, propertyID string, in PhotoUpload) (string, error) {
	stored, err := s.repo.GetProperty(ctx, propertyID)
	if err != nil {
		return "", err
	}
	if !owns(actor, stored) {
		return "", domain.ErrForbidden
	}

	raw, uriMIME, err := decodePhotoData(in.Data)
	if err != nil {
		return "", &domain.ValidationError{Fields: map[string]string{"data": err.Error()}}
	}
	mime := in.MIMEType
	if mime == "" {
		mime = uriMIME
	}
	payload := domain.PhotoPayload{Data: in.Data, FileName: in.FileName, FileSize: int64(len(raw)), MIMEType: mime}
	if err := validation.Struct(payload); err != nil {
		return "", err
	}
	if err := validation.Struct(in); err != nil {
		return "", err
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	} else if photoListed(stored, id) {
		return id, nil
	}
	if len(stored.Images) >= MaxPhotosPerProperty {
		return "", &domain.ValidationError{Fields: map[string]string{
			"photos": fmt.Sprintf("a property can have at most %d photos", MaxPhotosPerProperty),
		}}
	}

	_, err = s.repo.AddPhoto(ctx, propertyID, domain.StoredPhoto{ID: id, FileName: in.FileName, MIMEType: mime, Data: raw})
	switch {
	case errors.Is(err, domain.ErrConflict):
		log.Info().Str("property_id", propertyID).Str("photo_id", id).Msg("duplicate photo upload accepted")
	case err != nil:
		return "", err
	}
	s.invalidateProperty(ctx, propertyID)
	return id, nil
}

func photoListed(p domain.Property, photoID string) bool {
	want := domain.PhotoURL(p.ID, photoID)
	for _, img := range p.Images {
		if img == want {
			return true
		}
	}
	return false
}

// ContactLandlord records interest in a listing. Delivery to the landlord is
// out of band; the response is an acknowledgement only.
func (s *CommandService) ContactLandlord(ctx context.Context, req domain.ContactRequest) (domain.ContactResult, error) {
	if err := validation.Struct(req); err != nil {
		return domain.ContactResult{}, err
	}
	p, err := s.repo.GetProperty(ctx, req.PropertyID)
	if err != nil {
		return domain.ContactResult{}, err
	}
	log.Info().Str("property_id", p.ID).Str("landlord_id", p.Landlord.ID).Msg("contact request")
	return domain.ContactResult{Success: true, Message: "Contact request sent successfully"}, nil
}

// invalidate property caches
func (s *CommandService) invalidateProperty(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, propertyKey(id))
	s.invalidateList(ctx)
}

func (s *CommandService) invalidateList(ctx context.Context) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, listKey)
}
