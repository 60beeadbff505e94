package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrAlgMismatch  = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrMissingClaim = errors.New("jwtx: missing required claim")
)

// signingMethod is fixed. Tokens are symmetric capabilities verified only by
// this service, so there is no algorithm negotiation.
var signingMethod = jwt.SigningMethodHS512

// Encode signs the claim set with the server secret.
func Encode(c Claims, secret []byte) (string, error) {
	return jwt.NewWithClaims(signingMethod, c).SignedString(secret)
}

// Decode verifies the signature and claim set of a serialized token.
//
// Verification requires all of jti/iat/nbf/exp/sub to be present and that
// now lies within [nbf-leeway, exp+leeway]. The returned error is one of the
// package sentinels.
func Decode(raw string, secret []byte, leeway time.Duration) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithLeeway(leeway),
	)

	_, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return Claims{}, mapParseError(err)
	}

	if err := claims.requireAll(); err != nil {
		return Claims{}, err
	}

	// The parser already enforced exp/nbf, but it treats a missing claim as
	// valid. Re-check the window explicitly now that presence is guaranteed.
	if err := claims.ValidateWindow(time.Now().UTC(), leeway); err != nil {
		return Claims{}, err
	}

	return claims, nil
}

// DebugDecode decodes a token without verifying anything. The result is for
// diagnostic logging only and must never feed an authorization decision.
func DebugDecode(raw string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, ErrMalformed
	}
	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	default:
		return ErrMalformed
	}
}
