package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const CookieName = "sentinel_session"

// SignCookie binds the session id to the configured secret. The cookie
// value is "<id>.<hmac>"; a value that fails verification is treated as
// no session at all.
func SignCookie(sessionID, secret string) string {
	return sessionID + "." + cookieMAC(sessionID, secret)
}

func VerifyCookie(value, secret string) (string, bool) {
	i := strings.LastIndexByte(value, '.')
	if i <= 0 || i == len(value)-1 {
		return "", false
	}
	id, mac := value[:i], value[i+1:]
	if !hmac.Equal([]byte(mac), []byte(cookieMAC(id, secret))) {
		return "", false
	}
	return id, true
}

func cookieMAC(sessionID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}
