// Package signer produces and checks the processor's request signatures.
//
// A signature is base64(hex(sha256(v1 + v2 + ... + secret))): the lowercase
// hex string of the digest is base64-encoded, not the raw digest bytes.
package signer

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

func Sign(values []string, secret string) string {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(v)
	}
	b.WriteString(secret)

	sum := sha256.Sum256([]byte(b.String()))
	return base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(sum[:])))
}

// Verify recomputes the signature and compares it to the supplied one.
func Verify(values []string, secret, signature string) bool {
	if signature == "" {
		return false
	}
	return Sign(values, secret) == signature
}
