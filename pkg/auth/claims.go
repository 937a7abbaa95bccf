package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/interviewd-ai/interviewd-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	OrgID  *string
	Role   enums.APIRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients. OrgID is
// absent on legacy tokens minted before organizations were scoped.
type AccessTokenClaims struct {
	UserID uuid.UUID     `json:"user_id"`
	OrgID  *string       `json:"org_id,omitempty"`
	Role   enums.APIRole `json:"role"`
	jwt.RegisteredClaims
}
