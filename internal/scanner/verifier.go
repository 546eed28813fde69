package scanner

import (
	"context"
	"errors"
	"image"

	"wiselib/api/internal/envelope"
	"wiselib/api/internal/media/qrcode"
)

// QRDecoder reads QR symbols from camera frames.
type QRDecoder struct{}

func (QRDecoder) Decode(img image.Image) (string, error) {
	text, err := qrcode.Decode(img)
	if errors.Is(err, qrcode.ErrNoCode) {
		return "", ErrNoCode
	}
	return text, err
}

// EnvelopeVerifier checks payloads in-process with the shared validator.
type EnvelopeVerifier struct {
	Validator *envelope.Validator
}

func (v EnvelopeVerifier) Verify(ctx context.Context, payload string) (Match, error) {
	switch envelope.Detect(payload) {
	case envelope.VariantBook:
		book, err := envelope.ParseBook(payload)
		if err != nil {
			return Match{}, err
		}
		return Match{Variant: envelope.VariantBook.String(), BookID: book.ID}, nil
	default:
		res, err := v.Validator.Validate(ctx, payload)
		if err != nil {
			return Match{}, err
		}
		return Match{
			Variant:  envelope.VariantUser.String(),
			UserID:   res.User.ID,
			FullName: res.User.FullName,
			UserType: string(res.User.Type),
		}, nil
	}
}
