package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/royaltyworks-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	// CreatorID is set for creator actors and scopes statement access.
	CreatorID *uuid.UUID
	JTI       string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID    uuid.UUID       `json:"user_id"`
	Role      enums.ActorRole `json:"role"`
	CreatorID *uuid.UUID      `json:"creator_id,omitempty"`
	jwt.RegisteredClaims
}
