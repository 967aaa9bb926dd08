package token

import "github.com/golang-jwt/jwt/v5"

type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// The subject identity travels in the registered "sub" claim.
// RotationID is set on refresh credentials only and names the server-side record.
type Claims struct {
	jwt.RegisteredClaims

	Kind       Kind   `json:"typ"`
	RotationID string `json:"tid,omitempty"`
}
