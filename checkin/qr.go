package checkin

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"festa/globals"
)

// GenerateQRPayload returns the string encoded into a visitor's QR:
// codeId|qrToken|signature. The signature makes casual token guessing
// detectable before any store lookup; the token stays the lookup key, so a
// saved QR never expires.
func GenerateQRPayload(codeID, qrToken string) string {
	data := fmt.Sprintf("%s|%s", codeID, qrToken)
	h := hmac.New(sha256.New, globals.QRSecret)
	h.Write([]byte(data))
	sig := base64.StdEncoding.EncodeToString(h.Sum(nil))
	return fmt.Sprintf("%s|%s", data, sig)
}

// ParseQRPayload accepts either a bare token (manual entry at the door) or
// a signed payload from a scanned QR, and returns the token.
func ParseQRPayload(payload string) (qrToken string, err error) {
	if !strings.Contains(payload, "|") {
		return payload, nil
	}
	parts := strings.Split(payload, "|")
	if len(parts) != 3 {
		return "", errors.New("invalid QR format")
	}
	codeID, token, signature := parts[0], parts[1], parts[2]

	data := fmt.Sprintf("%s|%s", codeID, token)
	h := hmac.New(sha256.New, globals.QRSecret)
	h.Write([]byte(data))
	expectedSig := base64.StdEncoding.EncodeToString(h.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expectedSig)) {
		return "", errors.New("invalid signature")
	}
	return token, nil
}
