package qrcode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/makiuchi-d/gozxing"
	zxqrcode "github.com/makiuchi-d/gozxing/qrcode"
	"golang.org/x/image/draw"
)

var ErrNoCode = errors.New("no qr code found in image")

const (
	DefaultSize = 512
	quietZone   = 4
)

// Render encodes content as a square PNG of the given size.
func Render(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}

	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	modules := code.Bounds().Dx()
	factor := size / (modules + 2*quietZone)
	if factor < 1 {
		return nil, fmt.Errorf("size %d too small for %d modules", size, modules)
	}
	scaled, err := barcode.Scale(code, modules*factor, modules*factor)
	if err != nil {
		return nil, fmt.Errorf("scale qr: %w", err)
	}

	canvas := image.NewGray(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	offset := (size - modules*factor) / 2
	draw.Draw(canvas, scaled.Bounds().Add(image.Pt(offset, offset)), scaled, scaled.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodeBytes(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	return Decode(img)
}

func Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("binarize: %w", err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	result, err := zxqrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	return result.GetText(), nil
}
