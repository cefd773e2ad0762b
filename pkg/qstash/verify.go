package qstash

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "Upstash"

var ErrInvalidSignature = errors.New("invalid qstash signature")

// Claims is the payload of the Upstash-Signature JWT.
type Claims struct {
	Body string `json:"body"`
	jwt.RegisteredClaims
}

// Verify checks an Upstash-Signature header against body and the URL the
// request was delivered to. The current signing key is tried first, then the
// next one, so keys can be rotated.
func (c *Client) Verify(signature string, body []byte, deliveredURL string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("%w: missing signature", ErrInvalidSignature)
	}

	err := c.verifyWithKey(signature, body, deliveredURL, c.currentSigningKey)
	if err == nil {
		return nil
	}
	if c.nextSigningKey == "" {
		return err
	}
	if nextErr := c.verifyWithKey(signature, body, deliveredURL, c.nextSigningKey); nextErr != nil {
		return errors.Join(err, nextErr)
	}
	return nil
}

func (c *Client) verifyWithKey(signature string, body []byte, deliveredURL, key string) error {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(signature, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(key), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithLeeway(time.Second),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if deliveredURL != "" && claims.Subject != deliveredURL {
		return fmt.Errorf("%w: subject %q does not match %q", ErrInvalidSignature, claims.Subject, deliveredURL)
	}

	sum := sha256.Sum256(body)
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if strings.TrimRight(claims.Body, "=") != want {
		return fmt.Errorf("%w: body hash mismatch", ErrInvalidSignature)
	}
	return nil
}
