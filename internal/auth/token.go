package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// secretKey is replaced at startup via SetSecret; the default only exists so
// tests can mint tokens without configuration.
var secretKey = []byte("super-secret-key-change-me-in-production")

const tokenTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

func SetSecret(secret string) {
	if secret != "" {
		secretKey = []byte(secret)
	}
}

// MintToken issues an opaque bearer token for the given identity in the
// format "base64(userID:expiry)|base64(signature)".
func MintToken(userID int64) string {
	value := fmt.Sprintf("%d:%d", userID, time.Now().Add(tokenTTL).Unix())
	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(value))
	signature := mac.Sum(nil)
	return fmt.Sprintf("%s|%s", base64.URLEncoding.EncodeToString([]byte(value)), base64.URLEncoding.EncodeToString(signature))
}

// VerifyToken validates the signature and expiry and returns the identity the
// token was minted for.
func VerifyToken(token string) (int64, error) {
	parts := strings.Split(token, "|")
	if len(parts) != 2 {
		return 0, ErrInvalidToken
	}

	valueBytes, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return 0, ErrInvalidToken
	}
	value := string(valueBytes)

	signature, err := base64.URLEncoding.DecodeString(parts[1])
	if err != nil {
		return 0, ErrInvalidToken
	}

	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(value))
	if !hmac.Equal(signature, mac.Sum(nil)) {
		return 0, ErrInvalidToken
	}

	fields := strings.Split(value, ":")
	if len(fields) != 2 {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	expiry, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	if time.Now().Unix() > expiry {
		return 0, ErrInvalidToken
	}

	return userID, nil
}
