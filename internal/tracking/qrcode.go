package tracking

import (
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

const defaultQRSize = 256

// QRGenerator renders the public tracking link of an order as a PNG.
type QRGenerator interface {
	Generate(orderNumber int64) ([]byte, error)
}

type DefaultQRGenerator struct {
	BaseURL string
	Size    int
}

func NewQRGenerator(baseURL string, size int) DefaultQRGenerator {
	if size <= 0 {
		size = defaultQRSize
	}
	return DefaultQRGenerator{BaseURL: strings.TrimRight(baseURL, "/"), Size: size}
}

func (g DefaultQRGenerator) URL(orderNumber int64) string {
	return fmt.Sprintf("%s/track/%d", g.BaseURL, orderNumber)
}

func (g DefaultQRGenerator) Generate(orderNumber int64) ([]byte, error) {
	return qrcode.Encode(g.URL(orderNumber), qrcode.Medium, g.Size)
}
