package domain

import (
	"net/url"
	"strings"
	"time"
)

type Currency string

const (
	CurrencyUGX Currency = "UGX"
	CurrencyUSD Currency = "USD"
)

func (c Currency) Valid() bool { return c == CurrencyUGX || c == CurrencyUSD }

type Location struct {
	Address   string  `json:"address"`
	District  string  `json:"district"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Landlord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Verified bool   `json:"verified"`
}

// Property is a listing as seen by tenants.
type Property struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Currency    Currency  `json:"currency"`
	Bedrooms    int       `json:"bedrooms"`
	Bathrooms   int       `json:"bathrooms"`
	Location    Location  `json:"location"`
	Images      []string  `json:"images"`
	Video       *string   `json:"video,omitempty"`
	Amenities   []string  `json:"amenities"`
	Landlord    Landlord  `json:"landlord"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PhotoURL is the API path an uploaded listing photo is served from.
func PhotoURL(propertyID, photoID string) string {
	return "/properties/" + url.PathEscape(propertyID) + "/photos/" + url.PathEscape(photoID)
}

// Validate checks the listing invariants. Bedrooms >= 1 is a convention only.
func (p Property) Validate() error {
	ve := ValidationError{}
	if strings.TrimSpace(p.Title) == "" {
		ve.Add("title", "is required")
	}
	if p.Price < 0 {
		ve.Add("price", "must be non-negative")
	}
	if !p.Currency.Valid() {
		ve.Add("currency", "must be UGX or USD")
	}
	if p.Bedrooms < 0 {
		ve.Add("bedrooms", "must be non-negative")
	}
	if p.Bathrooms < 0 {
		ve.Add("bathrooms", "must be non-negative")
	}
	return ve.OrNil()
}

// Clone returns a deep copy so cached or mirrored values are never aliased.
func (p Property) Clone() Property {
	out := p
	if p.Images != nil {
		out.Images = append([]string(nil), p.Images...)
	}
	if p.Amenities != nil {
		out.Amenities = append([]string(nil), p.Amenities...)
	}
	if p.Video != nil {
		v := *p.Video
		out.Video = &v
	}
	return out
}

// NormalizeAmenities trims and de-duplicates tags, keeping the first occurrence.
func NormalizeAmenities(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		k := strings.ToLower(a)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}

// PropertyFilter mirrors the browse screen's search box and filter chips.
type PropertyFilter struct {
	Query       string   `json:"query,omitempty"`
	District    string   `json:"district,omitempty"`
	MinBedrooms int      `json:"minBedrooms,omitempty"`
	MinPrice    *float64 `json:"minPrice,omitempty"`
	MaxPrice    *float64 `json:"maxPrice,omitempty"`
	Available   bool     `json:"available,omitempty"`
}

func (f PropertyFilter) IsZero() bool {
	return f.Query == "" && f.District == "" && f.MinBedrooms == 0 &&
		f.MinPrice == nil && f.MaxPrice == nil && !f.Available
}

func (f PropertyFilter) Match(p Property) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		hay := strings.ToLower(p.Title + " " + p.Description + " " + p.Location.Address + " " + p.Location.District)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	if f.District != "" && !strings.EqualFold(f.District, p.Location.District) {
		return false
	}
	if f.MinBedrooms > 0 && p.Bedrooms < f.MinBedrooms {
		return false
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	if f.Available && !p.Available {
		return false
	}
	return true
}

// FilterProperties keeps input order.
func FilterProperties(in []Property, f PropertyFilter) []Property {
	if f.IsZero() {
		return in
	}
	out := make([]Property, 0, len(in))
	for _, p := range in {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

type ContactRequest struct {
	PropertyID string `json:"propertyId" validate:"required"`
	Phone      string `json:"phone" validate:"required,min=7,max=20"`
}

type ContactResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
