// Package media normalises what the browser reports about camera access and
// captured images. Device access itself happens client side.
package media

import (
	"encoding/base64"
	"strings"

	dErrors "idverify/pkg/domain-errors"
)

// CameraAccess is the normalised outcome of a camera permission request.
type CameraAccess string

const (
	CameraGranted     CameraAccess = "granted"
	CameraDenied      CameraAccess = "denied"
	CameraUnsupported CameraAccess = "unsupported"
	CameraUnknown     CameraAccess = "unknown"
)

func (a CameraAccess) Granted() bool { return a == CameraGranted }

// MaxPhotoBytes bounds a decoded photo.
const MaxPhotoBytes = 10 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Catalog keys for photos the browser sent but that cannot be used.
const (
	MsgPhotoInvalid     = "id.verification.photo.invalid"
	MsgPhotoUnsupported = "id.verification.photo.unsupported-type"
	MsgPhotoTooLarge    = "id.verification.photo.too-large"
	MsgPhotoEmpty       = "id.verification.photo.empty"
)

// Photo is one captured image.
type Photo struct {
	MediaType string
	Data      []byte
}

func (p Photo) Size() int { return len(p.Data) }

// Shim maps the assorted outcomes browsers report for getUserMedia (the
// standard promise API, the legacy vendor-prefixed callbacks, and missing
// support) onto one CameraAccess value.
type Shim struct{}

// Access normalises a client report. Values are matched case-insensitively;
// unrecognised reports are CameraUnknown.
func (Shim) Access(report string) CameraAccess {
	switch strings.ToLower(strings.TrimSpace(report)) {
	case "granted", "allowed", "true", "ok":
		return CameraGranted
	case "denied", "false", "notallowederror", "permissiondeniederror", "securityerror":
		return CameraDenied
	case "unsupported", "notfounderror", "devicesnotfounderror", "notsupportederror", "typeerror":
		return CameraUnsupported
	default:
		return CameraUnknown
	}
}

// DecodeDataURL parses a base64 image data URL as produced by
// canvas.toDataURL. Rejections are CodeValidation errors whose message is a
// catalog key.
func DecodeDataURL(raw string) (Photo, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(raw), "data:")
	if !ok {
		return Photo{}, dErrors.New(dErrors.CodeValidation, MsgPhotoInvalid)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Photo{}, dErrors.New(dErrors.CodeValidation, MsgPhotoInvalid)
	}
	mediaType, encoding, _ := strings.Cut(header, ";")
	mediaType = strings.ToLower(mediaType)
	if !allowedImageTypes[mediaType] {
		return Photo{}, dErrors.New(dErrors.CodeValidation, MsgPhotoUnsupported)
	}
	if encoding != "base64" {
		return Photo{}, dErrors.New(dErrors.CodeValidation, MsgPhotoInvalid)
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxPhotoBytes {
		return Photo{}, dErrors.New(dErrors.CodeValidation, MsgPhotoTooLarge)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Photo{}, dErrors.Wrap(err, dErrors.CodeValidation, MsgPhotoInvalid)
	}
	if len(data) == 0 {
		return Photo{}, dErrors.New(dErrors.CodeValidation, MsgPhotoEmpty)
	}
	return Photo{MediaType: mediaType, Data: data}, nil
}

// DataURL encodes p back into a data URL for previews.
func (p Photo) DataURL() string {
	return "data:" + p.MediaType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
}
