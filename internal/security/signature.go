package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderDevice    = "X-Kiosk-Device"
	HeaderSignature = "X-Kiosk-Signature"
	HeaderDate      = "X-Kiosk-Date"
	HeaderNonce     = "X-Kiosk-Nonce"
)

func ComputeBodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func ComputeSignature(secret string, deviceID string, method string, path string, query string, bodyHash string, date string, nonce string) string {
	data := strings.Join([]string{
		deviceID,
		strings.ToUpper(method),
		path,
		query,
		bodyHash,
		date,
		nonce,
	}, "\n")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func ValidateSignature(secret string, deviceID string, signature string, method string, path string, query string, body []byte, date string, nonce string) bool {
	expected := ComputeSignature(secret, deviceID, method, path, query, ComputeBodyHash(body), date, nonce)
	return hmac.Equal([]byte(signature), []byte(expected))
}

type SignatureHeaders struct {
	DeviceID  string
	Date      string
	Nonce     string
	Signature string
}

func ExtractSignatureHeaders(h http.Header) (SignatureHeaders, error) {
	out := SignatureHeaders{
		DeviceID:  h.Get(HeaderDevice),
		Date:      h.Get(HeaderDate),
		Nonce:     h.Get(HeaderNonce),
		Signature: h.Get(HeaderSignature),
	}
	if out.DeviceID == "" || out.Date == "" || out.Nonce == "" || out.Signature == "" {
		return SignatureHeaders{}, fmt.Errorf("missing signature headers")
	}
	return out, nil
}

// SignRequest sets the kiosk signature headers on an outgoing request.
func SignRequest(req *http.Request, secret string, deviceID string, body []byte, now time.Time) {
	date := now.UTC().Format(time.RFC3339)
	nonce := uuid.NewString()
	sig := ComputeSignature(secret, deviceID, req.Method, req.URL.Path, req.URL.RawQuery, ComputeBodyHash(body), date, nonce)

	req.Header.Set(HeaderDevice, deviceID)
	req.Header.Set(HeaderDate, date)
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderSignature, sig)
}
