// Package media normalizes profile avatars and stores them in object storage.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"net/http"
	"strings"

	"replied/internal/models"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	MaxUploadBytes = 5 << 20
	AvatarSize     = 512
	WebPQuality    = 80
)

// Avatar validation messages.
const (
	MsgNoFile       = "No file uploaded"
	MsgTooLarge     = "File too large (max 5MB)"
	MsgInvalidType  = "Invalid image type"
	MsgInvalidImage = "Invalid image file"
)

// Normalize decodes a jpeg, png, gif or webp upload, crops it to a centred
// square no larger than AvatarSize and re-encodes it as WebP.
func Normalize(content []byte) ([]byte, error) {
	if len(content) == 0 {
		return nil, models.NewValidationError(MsgNoFile)
	}
	if len(content) > MaxUploadBytes {
		return nil, models.NewValidationError(MsgTooLarge)
	}
	if !allowedMIME(http.DetectContentType(content)) {
		return nil, models.NewValidationError(MsgInvalidType)
	}

	decoded, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, models.NewValidationError(MsgInvalidImage)
	}

	square := cropSquare(decoded)
	out := resize(square, AvatarSize)

	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, out, &webp.Options{Quality: WebPQuality}); err != nil {
		return nil, models.NewInternalError(fmt.Errorf("encode avatar: %w", err))
	}
	return buf.Bytes(), nil
}

func allowedMIME(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func cropSquare(src image.Image) image.Image {
	b := src.Bounds()
	side := min(b.Dx(), b.Dy())
	if side <= 0 {
		return src
	}
	x := b.Min.X + (b.Dx()-side)/2
	y := b.Min.Y + (b.Dy()-side)/2

	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(dst, dst.Bounds(), src, image.Point{X: x, Y: y}, draw.Src)
	return dst
}

// resize shrinks a square image to size; smaller images are kept as they are.
func resize(src image.Image, size int) image.Image {
	b := src.Bounds()
	if b.Dx() <= size {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}
