package domain

import "context"

// ---- server side ----

type PropertyRepository interface {
	// Write paths
	CreateProperty(ctx context.Context, p Property) (Property, error)
	UpdateProperty(ctx context.Context, p Property) (Property, error)
	DeleteProperty(ctx context.Context, id string) error
	AddPhoto(ctx context.Context, propertyID string, ph StoredPhoto) (string, error)

	// Read paths
	GetProperty(ctx context.Context, id string) (Property, error)
	ListProperties(ctx context.Context) ([]Property, error)
	GetPhoto(ctx context.Context, propertyID, photoID string) (StoredPhoto, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, u UserRecord) (User, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, id string) (User, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// StoredPhoto is an uploaded listing photo as the server keeps it.
type StoredPhoto struct {
	ID       string
	FileName string
	MIMEType string
	Data     []byte
}

// ---- client side (collaborators of the sync core) ----

type PropertyService interface {
	ListProperties(ctx context.Context) ([]Property, error)
	GetProperty(ctx context.Context, id string) (Property, error)
	CreateProperty(ctx context.Context, p Property) (Property, error)
	UpdateProperty(ctx context.Context, p Property) (Property, error)
	ContactLandlord(ctx context.Context, req ContactRequest) (ContactResult, error)
}

type AuthService interface {
	Login(ctx context.Context, req LoginRequest) (AuthResult, error)
	Register(ctx context.Context, req RegisterRequest) (AuthResult, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (User, error)
	RefreshToken(ctx context.Context) (string, error)
}

// PhotoUploader is the port the sync coordinator pushes pending photos through.
type PhotoUploader interface {
	UploadPhoto(ctx context.Context, p PendingPhotoUpload) error
}

type CredentialStore interface {
	Token() (string, bool)
	SetToken(token string) error
	CurrentUser() (User, bool)
	SetUser(u User) error
	SaveCredentials(email, password string, remember bool) error
	SavedCredentials() (email, password string, ok bool)
	ClearSavedCredentials() error
	Clear() error
}
