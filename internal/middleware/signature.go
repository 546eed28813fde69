package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"wiselib/api/internal/security"
)

const (
	KioskDeviceKey = "kiosk_device"

	signatureMaxAge  = 5 * time.Minute
	signatureMaxSkew = 2 * time.Minute
)

type NonceClaimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// KioskSignature admits requests signed by a kiosk device with the shared
// secret. Each nonce is accepted once within the signature window.
func KioskSignature(secret string, nonces NonceClaimer, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		headers, err := security.ExtractSignatureHeaders(c.Request.Header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "signature_required"})
			return
		}

		requestTime, err := time.Parse(time.RFC3339, headers.Date)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_date"})
			return
		}
		if time.Since(requestTime) > signatureMaxAge || time.Until(requestTime) > signatureMaxSkew {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "request_expired"})
			return
		}

		rawBody, err := c.GetRawData()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(rawBody))

		valid := security.ValidateSignature(
			secret,
			headers.DeviceID,
			headers.Signature,
			c.Request.Method,
			c.Request.URL.Path,
			c.Request.URL.RawQuery,
			rawBody,
			headers.Date,
			headers.Nonce,
		)
		if !valid {
			log.Warn().Str("device_id", headers.DeviceID).Str("path", c.Request.URL.Path).Msg("kiosk signature rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_signature"})
			return
		}

		first, err := nonces.Claim(c.Request.Context(), "sig:"+headers.DeviceID+":"+headers.Nonce, signatureMaxAge)
		if err != nil {
			log.Error().Err(err).Msg("nonce store unavailable")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "nonce_store_unavailable"})
			return
		}
		if !first {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "replay_detected"})
			return
		}

		c.Set(KioskDeviceKey, headers.DeviceID)
		c.Next()
	}
}
