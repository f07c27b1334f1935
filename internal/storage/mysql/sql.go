package mysql

const insertPropertySQL = `
INSERT INTO properties
  (title, description, price, currency, bedrooms, bathrooms, address, district, latitude, longitude,
   images, video, amenities, landlord_id, landlord_name, landlord_phone, landlord_verified, available)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const updatePropertySQL = `
UPDATE properties SET
  title             = ?,
  description       = ?,
  price             = ?,
  currency          = ?,
  bedrooms          = ?,
  bathrooms         = ?,
  address           = ?,
  district          = ?,
  latitude          = ?,
  longitude         = ?,
  images            = ?,
  video             = ?,
  amenities         = ?,
  landlord_verified = ?,
  available         = ?,
  updated_at        = CURRENT_TIMESTAMP
WHERE id = ?
`

const deletePropertySQL = `DELETE FROM properties WHERE id = ?`

const insertPhotoSQL = `
INSERT INTO property_photos (property_id, id, file_name, mime_type, data)
VALUES (?, ?, ?, ?, ?)
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

// Uploaded photo ids ride along as a comma list in upload order; the repo
// turns them into photo URLs after the listing's own image refs.
const selectPropertyCols = `
SELECT
  p.id,
  p.title,
  p.description,
  p.price,
  p.currency,
  p.bedrooms,
  p.bathrooms,
  p.address,
  p.district,
  p.latitude,
  p.longitude,
  p.images,
  p.video,
  p.amenities,
  p.landlord_id,
  p.landlord_name,
  p.landlord_phone,
  p.landlord_verified,
  p.available,
  p.created_at,
  p.updated_at,
  (SELECT GROUP_CONCAT(ph.id ORDER BY ph.created_at, ph.id SEPARATOR ',')
     FROM property_photos ph WHERE ph.property_id = p.id) AS photo_ids
FROM properties p
`

const getPropertySQL = selectPropertyCols + `WHERE p.id = ?`

const listPropertiesSQL = selectPropertyCols + `ORDER BY p.created_at DESC, p.id DESC`

const getPhotoSQL = `
SELECT id, file_name, mime_type, data
FROM property_photos
WHERE property_id = ? AND id = ?
`

const insertUserSQL = `
INSERT INTO users (name, email, phone, user_type, password_hash)
VALUES (?, ?, ?, ?, ?)
`

const selectUserCols = `SELECT id, name, email, phone, user_type, created_at, updated_at, password_hash FROM users `
