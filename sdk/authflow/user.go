package authflow

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// User is the signed-in identity as reported by the provider's ID token.
// The claims are not verified and must only be used for display.
type User struct {
	Subject string `json:"sub,omitempty"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
}

// UserFromIDToken reads the display claims of an ID token without checking its signature.
func UserFromIDToken(idToken string) (*User, error) {
	if idToken == "" {
		return nil, fmt.Errorf("id token is empty")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("parse id token: %w", err)
	}

	user := &User{
		Name:  stringClaim(claims, "name"),
		Email: stringClaim(claims, "email"),
	}
	user.Subject, _ = claims.GetSubject()
	if user.Name == "" {
		user.Name = stringClaim(claims, "preferred_username")
	}
	return user, nil
}

// DisplayName returns the best available label for the user.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return ""
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	default:
		return u.Subject
	}
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}
