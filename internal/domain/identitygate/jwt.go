package identitygate

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier is the default TokenVerifier: HS256 bearer tokens with a
// "sub" claim naming the user id. Token minting lives entirely outside the
// core (spec §1); this is the consuming half only.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier builds a verifier for HS256 tokens signed with secret. When
// issuer is non-empty, the "iss" claim is required to match it.
func NewJWTVerifier(secret []byte, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: secret, issuer: issuer}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (string, error) {
	opts := []jwt.ParserOption{}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("jwt: %w", err)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("jwt: token not valid")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("jwt: missing subject claim")
	}
	return sub, nil
}
