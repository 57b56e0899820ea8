package models

import (
	"github.com/golang-jwt/jwt/v4"
)

// ServiceClaims is the bearer token exchanged between the signal server and
// the account service. Both sides sign with the shared server secret.
type ServiceClaims struct {
	jwt.RegisteredClaims
	Service string `json:"service"`
}
