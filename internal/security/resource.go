package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

func SignResource(secret string, parts ...string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, ":")))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// SignObjectLink signs a stored object key until expires.
func SignObjectLink(secret string, objectKey string, expires time.Time) (exp string, sig string) {
	exp = strconv.FormatInt(expires.Unix(), 10)
	return exp, SignResource(secret, objectKey, exp)
}

func VerifyObjectLink(secret string, objectKey string, exp string, sig string, now time.Time) bool {
	unix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil || now.Unix() > unix {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(SignResource(secret, objectKey, exp)))
}
