package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a rep session.
type AccessTokenPayload struct {
	RepID   string
	RepCode string
	Name    string
	JTI     string
}

// AccessTokenClaims represents the typed JWT handed to the device.
type AccessTokenClaims struct {
	RepID   string `json:"rep_id"`
	RepCode string `json:"rep_code"`
	Name    string `json:"name,omitempty"`
	jwt.RegisteredClaims
}
