// Package security provides JWT token utilities for signed artifact URLs.
package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// GenerateArtifactToken creates a short-lived download token scoped to one
// stored object.
func GenerateArtifactToken(bucket, path, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"bucket": bucket,
		"path":   path,
		"iat":    time.Now().UTC().Unix(),
		"exp":    time.Now().UTC().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	result, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("security: signing artifact token: %w", err)
	}
	return result, nil
}

// ValidateArtifactToken validates a download token and returns the bucket
// and path it grants access to.
func ValidateArtifactToken(tokenString, secret string) (bucket, path string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", errors.New("security: invalid artifact token")
	}

	bucket, _ = claims["bucket"].(string)
	path, _ = claims["path"].(string)
	if bucket == "" || path == "" {
		return "", "", errors.New("security: artifact token missing object scope")
	}
	return bucket, path, nil
}
