package offline

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"

	"housing_sync/internal/domain"
	"housing_sync/internal/validation"
)

const (
	MaxPhotoWidth = 800
	PhotoQuality  = 80
)

// PreparePhoto validates a picked photo and shrinks it to MaxPhotoWidth,
// re-encoding it as a data URI. The claimed FileSize is checked, then
// replaced by the decoded size of the original, which must also fit.
func PreparePhoto(in domain.PhotoPayload) (domain.PhotoPayload, error) {
	if err := validation.Struct(in); err != nil {
		return domain.PhotoPayload{}, err
	}
	tooLarge := fmt.Sprintf("must not be larger than %d bytes", domain.MaxPhotoBytes)
	// at least DecodedLen-2 bytes; refuse before allocating
	if base64.StdEncoding.DecodedLen(len(in.Data))-2 > domain.MaxPhotoBytes {
		return domain.PhotoPayload{}, photoErr("fileSize", tooLarge)
	}
	raw, err := DecodePhotoData(in.Data)
	if err != nil {
		return domain.PhotoPayload{}, photoErr("data", "must be base64 or a data URI")
	}
	if len(raw) > domain.MaxPhotoBytes {
		return domain.PhotoPayload{}, photoErr("fileSize", tooLarge)
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return domain.PhotoPayload{}, photoErr("data", "could not be decoded as an image")
	}
	if img.Bounds().Dx() > MaxPhotoWidth {
		img = imaging.Resize(img, MaxPhotoWidth, 0, imaging.Lanczos)
	}

	format, mime := imaging.JPEG, "image/jpeg"
	switch strings.ToLower(in.MIMEType) {
	case "image/png":
		format, mime = imaging.PNG, "image/png"
	case "image/gif":
		format, mime = imaging.GIF, "image/gif"
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(PhotoQuality)); err != nil {
		return domain.PhotoPayload{}, fmt.Errorf("encode photo: %w", err)
	}

	out := in
	out.FileSize = int64(len(raw))
	out.MIMEType = mime
	out.Data = "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	return out, nil
}

// DecodePhotoData accepts a data URI or bare base64.
func DecodePhotoData(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 || !strings.Contains(s[:i], ";base64") {
			return nil, fmt.Errorf("not a base64 data URI")
		}
		s = s[i+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}

func photoErr(field, msg string) error {
	ve := domain.ValidationError{}
	ve.Add(field, msg)
	return ve.OrNil()
}
