package inference

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var imageMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Image is a screenshot encoded for transport.
type Image struct {
	MIMEType string
	Base64   string
}

// DataURI renders the image as a data: URI.
func (i Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64
}

// LoadImage reads and base64-encodes an image. Unknown extensions
// are sent as PNG.
func LoadImage(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("load image: %w", err)
	}
	mime, ok := imageMIMETypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		mime = "image/png"
	}
	return Image{
		MIMEType: mime,
		Base64:   base64.StdEncoding.EncodeToString(data),
	}, nil
}
