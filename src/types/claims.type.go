package types

import "github.com/golang-jwt/jwt/v4"

// SessionClaims is the payload of a Shopify session token. The shop the
// request acts on comes from the `dest` claim, never from the request body.
type SessionClaims struct {
	Dest string `json:"dest"`
	Sid  string `json:"sid"`
	jwt.RegisteredClaims
}
