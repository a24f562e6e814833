// Package qrx renders provisioning URLs as QR code images.
package qrx

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the image edge in pixels used when size is not positive.
const DefaultSize = 256

var ErrEmptyContent = errors.New("qrx: content cannot be empty")

// PNG encodes content as a QR code PNG with medium error recovery.
func PNG(content string, size int) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if size <= 0 {
		size = DefaultSize
	}

	png, err := skipqrcode.Encode(content, skipqrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}

// DataURI returns the PNG as a data:image/png;base64 URI for direct use in an <img> tag.
func DataURI(content string, size int) (string, error) {
	png, err := PNG(content, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
