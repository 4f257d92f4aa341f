package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignQueryHex computes HMAC-SHA256 of query using secret and returns the
// hex-encoded signature. Binance-family APIs append this as the `signature`
// query parameter.
func SignQueryHex(secret, query string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}
