package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/goccy/go-json"

	"housing_sync/internal/domain"
)

const errDuplicateKey = 1062

func valStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func valPtr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func valF64(f float64) any {
	if f == 0 {
		return nil
	}
	return f
}

func valJSON(v []string) any {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func isDuplicate(err error) bool {
	var me *gomysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateKey
}

// parseID maps non-numeric ids to ErrNotFound so they never reach SQL.
func parseID(id string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, domain.ErrNotFound
	}
	return n, nil
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

var (
	_ domain.PropertyRepository = (*Repo)(nil)
	_ domain.UserRepository     = (*Repo)(nil)
)

func (r *Repo) CreateProperty(ctx context.Context, p domain.Property) (domain.Property, error) {
	res, err := r.db.ExecContext(ctx, insertPropertySQL,
		p.Title,
		valStr(p.Description),
		p.Price,
		string(p.Currency),
		p.Bedrooms,
		p.Bathrooms,
		valStr(p.Location.Address),
		valStr(p.Location.District),
		valF64(p.Location.Latitude),
		valF64(p.Location.Longitude),
		valJSON(p.Images),
		valPtr(p.Video),
		valJSON(p.Amenities),
		valStr(p.Landlord.ID),
		valStr(p.Landlord.Name),
		valStr(p.Landlord.Phone),
		p.Landlord.Verified,
		p.Available,
	)
	if err != nil {
		return domain.Property{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Property{}, err
	}
	return r.GetProperty(ctx, strconv.FormatInt(id, 10))
}

// UpdateProperty rewrites the editable columns. Landlord identity is fixed at
// creation.
func (r *Repo) UpdateProperty(ctx context.Context, p domain.Property) (domain.Property, error) {
	id, err := parseID(p.ID)
	if err != nil {
		return domain.Property{}, err
	}
	// uploaded photo URLs are derived from property_photos, not stored
	own := make([]string, 0, len(p.Images))
	prefix := "/properties/" + p.ID + "/photos/"
	for _, img := range p.Images {
		if !strings.HasPrefix(img, prefix) {
			own = append(own, img)
		}
	}
	res, err := r.db.ExecContext(ctx, updatePropertySQL,
		p.Title,
		valStr(p.Description),
		p.Price,
		string(p.Currency),
		p.Bedrooms,
		p.Bathrooms,
		valStr(p.Location.Address),
		valStr(p.Location.District),
		valF64(p.Location.Latitude),
		valF64(p.Location.Longitude),
		valJSON(own),
		valPtr(p.Video),
		valJSON(p.Amenities),
		p.Landlord.Verified,
		p.Available,
		id,
	)
	if err != nil {
		return domain.Property{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports 0 for unchanged rows too; tell them apart
		if _, err := r.GetProperty(ctx, p.ID); err != nil {
			return domain.Property{}, err
		}
	}
	return r.GetProperty(ctx, p.ID)
}

func (r *Repo) DeleteProperty(ctx context.Context, id string) error {
	n, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, deletePropertySQL, n)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddPhoto returns domain.ErrConflict when the photo id is already stored for
// this property.
func (r *Repo) AddPhoto(ctx context.Context, propertyID string, ph domain.StoredPhoto) (string, error) {
	pid, err := parseID(propertyID)
	if err != nil {
		return "", err
	}
	if _, err := r.db.ExecContext(ctx, insertPhotoSQL, pid, ph.ID, ph.FileName, ph.MIMEType, ph.Data); err != nil {
		if isDuplicate(err) {
			return ph.ID, domain.ErrConflict
		}
		return "", err
	}
	return ph.ID, nil
}

func (r *Repo) GetProperty(ctx context.Context, id string) (domain.Property, error) {
	n, err := parseID(id)
	if err != nil {
		return domain.Property{}, err
	}
	p, err := scanProperty(r.db.QueryRowContext(ctx, getPropertySQL, n))
	if err == sql.ErrNoRows {
		return domain.Property{}, domain.ErrNotFound
	}
	return p, err
}

func (r *Repo) ListProperties(ctx context.Context) ([]domain.Property, error) {
	rows, err := r.db.QueryContext(ctx, listPropertiesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) GetPhoto(ctx context.Context, propertyID, photoID string) (domain.StoredPhoto, error) {
	pid, err := parseID(propertyID)
	if err != nil {
		return domain.StoredPhoto{}, err
	}
	var ph domain.StoredPhoto
	err = r.db.QueryRowContext(ctx, getPhotoSQL, pid, photoID).Scan(&ph.ID, &ph.FileName, &ph.MIMEType, &ph.Data)
	if err == sql.ErrNoRows {
		return domain.StoredPhoto{}, domain.ErrNotFound
	}
	return ph, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProperty(row scanner) (domain.Property, error) {
	var (
		p                                 domain.Property
		id                                uint64
		desc, addr, district, video       sql.NullString
		lat, lon                          sql.NullFloat64
		imagesJSON, amenitiesJSON         []byte
		landlordID, landlordName, llPhone sql.NullString
		photoIDs                          sql.NullString
		currency                          string
	)
	if err := row.Scan(
		&id,
		&p.Title,
		&desc,
		&p.Price,
		&currency,
		&p.Bedrooms,
		&p.Bathrooms,
		&addr, &district,
		&lat, &lon,
		&imagesJSON,
		&video,
		&amenitiesJSON,
		&landlordID, &landlordName, &llPhone,
		&p.Landlord.Verified,
		&p.Available,
		&p.CreatedAt,
		&p.UpdatedAt,
		&photoIDs,
	); err != nil {
		return domain.Property{}, err
	}
	p.ID = strconv.FormatUint(id, 10)
	p.Currency = domain.Currency(currency)
	p.Description = desc.String
	p.Location = domain.Location{Address: addr.String, District: district.String, Latitude: lat.Float64, Longitude: lon.Float64}
	if video.Valid && video.String != "" {
		v := video.String
		p.Video = &v
	}
	p.Landlord.ID = landlordID.String
	p.Landlord.Name = landlordName.String
	p.Landlord.Phone = llPhone.String

	p.Images = []string{}
	p.Amenities = []string{}
	if len(imagesJSON) > 0 {
		_ = json.Unmarshal(imagesJSON, &p.Images)
	}
	if len(amenitiesJSON) > 0 {
		_ = json.Unmarshal(amenitiesJSON, &p.Amenities)
	}
	if photoIDs.Valid && photoIDs.String != "" {
		for _, ph := range strings.Split(photoIDs.String, ",") {
			p.Images = append(p.Images, domain.PhotoURL(p.ID, ph))
		}
	}
	return p, nil
}

// ---- users ----

func (r *Repo) CreateUser(ctx context.Context, u domain.UserRecord) (domain.User, error) {
	res, err := r.db.ExecContext(ctx, insertUserSQL, u.Name, u.Email, valStr(u.Phone), string(u.Role), u.PasswordHash)
	if err != nil {
		if isDuplicate(err) {
			return domain.User{}, domain.ErrConflict
		}
		return domain.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.User{}, err
	}
	return r.GetUserByID(ctx, strconv.FormatInt(id, 10))
}

func (r *Repo) GetUserByEmail(ctx context.Context, email string) (domain.UserRecord, error) {
	return r.getUser(ctx, selectUserCols+`WHERE email = ?`, email)
}

func (r *Repo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	n, err := parseID(id)
	if err != nil {
		return domain.User{}, err
	}
	rec, err := r.getUser(ctx, selectUserCols+`WHERE id = ?`, n)
	return rec.User, err
}

func (r *Repo) getUser(ctx context.Context, q string, arg any) (domain.UserRecord, error) {
	var (
		rec   domain.UserRecord
		id    uint64
		phone sql.NullString
		role  string
	)
	err := r.db.QueryRowContext(ctx, q, arg).Scan(&id, &rec.Name, &rec.Email, &phone, &role, &rec.CreatedAt, &rec.UpdatedAt, &rec.PasswordHash)
	if err == sql.ErrNoRows {
		return domain.UserRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.UserRecord{}, err
	}
	rec.ID = strconv.FormatUint(id, 10)
	rec.Phone = phone.String
	rec.Role = domain.Role(role)
	return rec, nil
}
