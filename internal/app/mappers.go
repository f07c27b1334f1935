package app

import (
	"encoding/base64"
	"strings"

	"housing_sync/internal/domain"
)

// normalizeProperty trims free text and fills the defaults a listing form
// leaves out.
func normalizeProperty(p domain.Property) domain.Property {
	p = p.Clone()
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.Location.Address = strings.TrimSpace(p.Location.Address)
	p.Location.District = strings.TrimSpace(p.Location.District)
	if p.Currency == "" {
		p.Currency = domain.CurrencyUGX
	}
	p.Currency = domain.Currency(strings.ToUpper(string(p.Currency)))
	p.Amenities = domain.NormalizeAmenities(p.Amenities)
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Video != nil && strings.TrimSpace(*p.Video) == "" {
		p.Video = nil
	}
	return p
}

// mergeUpdate applies an edit to the stored listing. Ownership, identity and
// creation time always come from the stored row.
func mergeUpdate(stored, in domain.Property) domain.Property {
	out := normalizeProperty(in)
	out.ID = stored.ID
	out.Landlord = stored.Landlord
	out.CreatedAt = stored.CreatedAt
	if in.Images == nil {
		out.Images = append([]string(nil), stored.Images...)
	}
	return out
}

// decodePhotoData accepts a data URI or bare base64 and returns the bytes
// plus the MIME type named by the URI, if any.
func decodePhotoData(s string) ([]byte, string, error) {
	mime := ""
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 || !strings.HasSuffix(s[:i], ";base64") {
			return nil, "", errBadPhotoData
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(s[:i], "data:"), ";base64")
		s = s[i+1:]
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", errBadPhotoData
	}
	return b, mime, nil
}
