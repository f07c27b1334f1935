package shared

import "housing_sync/internal/domain"

// SeedProperties are the sample listings loaded by cmd/seed.
var SeedProperties = []domain.Property{
	{
		Title:       "Modern 2-Bedroom Apartment in Kampala",
		Description: "Beautiful modern apartment with city views, fully furnished with modern amenities.",
		Price:       800000, Currency: domain.CurrencyUGX, Bedrooms: 2, Bathrooms: 1,
		Location:  domain.Location{Address: "Kololo, Kampala", District: "Kampala", Latitude: 0.3476, Longitude: 32.5825},
		Amenities: []string{"WiFi", "Parking", "Security", "Water Supply"},
		Landlord:  domain.Landlord{ID: "1", Name: "John Ssemakula", Phone: "+256 700 123456", Verified: true},
		Available: true,
	},
	{
		Title:       "Spacious 3-Bedroom House in Ntinda",
		Description: "Large family house with garden, perfect for families. Close to schools and shopping centers.",
		Price:       1200000, Currency: domain.CurrencyUGX, Bedrooms: 3, Bathrooms: 2,
		Location:  domain.Location{Address: "Ntinda, Kampala", District: "Kampala", Latitude: 0.3540, Longitude: 32.6140},
		Amenities: []string{"WiFi", "Parking", "Garden", "Security", "Water Supply"},
		Landlord:  domain.Landlord{ID: "2", Name: "Mary Nakamura", Phone: "+256 701 234567", Verified: true},
		Available: true,
	},
	{
		Title:       "Studio Apartment in Muyenga",
		Description: "Cozy studio apartment perfect for single professionals. Great location with easy transport access.",
		Price:       400000, Currency: domain.CurrencyUGX, Bedrooms: 1, Bathrooms: 1,
		Location:  domain.Location{Address: "Muyenga, Kampala", District: "Kampala", Latitude: 0.2960, Longitude: 32.6150},
		Amenities: []string{"WiFi", "Security", "Water Supply"},
		Landlord:  domain.Landlord{ID: "3", Name: "David Musoke", Phone: "+256 702 345678"},
		Available: true,
	},
	{
		Title:       "4-Bedroom Villa in Bugolobi",
		Description: "Luxury villa with swimming pool, perfect for executives. Fully furnished with premium amenities.",
		Price:       2500000, Currency: domain.CurrencyUGX, Bedrooms: 4, Bathrooms: 3,
		Location:  domain.Location{Address: "Bugolobi, Kampala", District: "Kampala", Latitude: 0.3190, Longitude: 32.6160},
		Amenities: []string{"WiFi", "Parking", "Swimming Pool", "Security", "Water Supply", "Generator"},
		Landlord:  domain.Landlord{ID: "4", Name: "Sarah Namuli", Phone: "+256 703 456789", Verified: true},
		Available: true,
	},
	{
		Title:       "2-Bedroom Apartment in Jinja",
		Description: "Quiet apartment near the source of the Nile.",
		Price:       600000, Currency: domain.CurrencyUGX, Bedrooms: 2, Bathrooms: 1,
		Location:  domain.Location{Address: "Jinja Central", District: "Jinja", Latitude: 0.4244, Longitude: 33.2042},
		Amenities: []string{"WiFi", "Parking", "Security", "Water Supply"},
		Landlord:  domain.Landlord{ID: "5", Name: "Peter Waiswa", Phone: "+256 704 567890", Verified: true},
		Available: true,
	},
}
