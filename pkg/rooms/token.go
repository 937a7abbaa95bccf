package rooms

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VideoGrant mirrors the room-server access grant embedded in join tokens.
type VideoGrant struct {
	RoomJoin bool   `json:"roomJoin"`
	Room     string `json:"room"`
}

type accessClaims struct {
	jwt.RegisteredClaims
	Video    VideoGrant `json:"video"`
	Metadata string     `json:"metadata,omitempty"`
}

// MintAccessToken signs a short-lived join token for one participant in one
// room. The API key is the issuer; the room server validates with the shared
// secret.
func MintAccessToken(apiKey, apiSecret, identity, room string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(apiKey) == "" || strings.TrimSpace(apiSecret) == "" {
		return "", errors.New("rooms api key and secret are required")
	}
	if strings.TrimSpace(identity) == "" {
		return "", errors.New("participant identity is required")
	}
	if strings.TrimSpace(room) == "" {
		return "", errors.New("room name is required")
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	now := time.Now().UTC()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    apiKey,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Video: VideoGrant{
			RoomJoin: true,
			Room:     room,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(apiSecret))
}

// ParseAccessToken validates a join token and returns the identity and room it
// grants. Used by tests and the webhook signature path.
func ParseAccessToken(apiSecret, raw string) (identity, room string, err error) {
	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(apiSecret), nil
	})
	if err != nil {
		return "", "", err
	}
	if !parsed.Valid {
		return "", "", errors.New("invalid token")
	}
	return claims.Subject, claims.Video.Room, nil
}
