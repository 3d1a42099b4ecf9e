package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"studyhall/internal/models"
)

// --- Helper Functions ---
func WriteJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// --- JWT Helpers ---

var ErrInvalidToken = errors.New("invalid identity token")

// GenerateIdentityToken mints the HS256 token the identity provider would
// hand a client. Used by the seed tooling and tests.
func GenerateIdentityToken(identity models.Identity, jwtSecret []byte) (string, error) {
	claims := jwt.MapClaims{
		"sub":    identity.ID,
		"name":   identity.DisplayName,
		"avatar": identity.AvatarRef,
		"exp":    time.Now().Add(24 * time.Hour).Unix(),
		"iat":    time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ParseIdentityToken validates tokenString and extracts the identity claims.
func ParseIdentityToken(tokenString string, jwtSecret []byte) (models.Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return models.Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, ErrInvalidToken
	}

	id, _ := claims["sub"].(string)
	if id == "" {
		return models.Identity{}, ErrInvalidToken
	}
	name, _ := claims["name"].(string)
	avatar, _ := claims["avatar"].(string)

	return models.Identity{ID: id, DisplayName: name, AvatarRef: avatar}, nil
}

// BearerToken pulls the token from the Authorization header or, for
// WebSocket requests that cannot set headers, the token query parameter.
func BearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
