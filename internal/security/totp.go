package security

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

type TOTPSetup struct {
	Secret string
	URL    string
	QRCode []byte
}

func GenerateTOTP(issuer string, account string) (TOTPSetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      30,
		SecretSize:  32,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPSetup{}, fmt.Errorf("generate totp: %w", err)
	}

	img, err := key.Image(200, 200)
	if err != nil {
		return TOTPSetup{}, fmt.Errorf("totp image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return TOTPSetup{}, fmt.Errorf("encode totp image: %w", err)
	}

	return TOTPSetup{Secret: key.Secret(), URL: key.URL(), QRCode: buf.Bytes()}, nil
}

func ValidateTOTP(code string, secret string) bool {
	return totp.Validate(code, secret)
}
