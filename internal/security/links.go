package security

import (
	"crypto"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Link purposes; a token signed for one purpose is rejected for any other.
const (
	PurposeVerifyEmail = "verify_email"
)

// LinkClaims are carried by signed links sent by email.
type LinkClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
	// Binding is a fingerprint of the account state the link was issued against.
	Binding string `json:"bnd"`
}

// LinkSigner issues and checks signed, expiring, single-purpose link tokens.
// Single use comes from the binding: once the account state changes the fingerprint no longer matches.
type LinkSigner struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	ttl        time.Duration
}

// NewLinkSigner returns a LinkSigner; it may share the key pair used for session tokens.
func NewLinkSigner(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer string, ttl time.Duration) *LinkSigner {
	return &LinkSigner{privateKey: privateKey, publicKey: publicKey, issuer: issuer, ttl: ttl}
}

// Issue signs a link token for subject with the given purpose and binding.
func (s *LinkSigner) Issue(purpose, subject, binding string) (string, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	claims := LinkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   subject,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{purpose},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Purpose: purpose,
		Binding: binding,
	}
	return signWith(s.privateKey, claims)
}

// Parse validates the token for purpose and returns its subject and binding.
// Callers must still compare the binding with the current state (see BindingEqual).
func (s *LinkSigner) Parse(tokenString, purpose string) (subject, binding string, err error) {
	claims := &LinkClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, verifyKey(s.publicKey),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(purpose),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid || claims.Purpose != purpose || claims.Subject == "" {
		return "", "", ErrInvalidToken
	}
	return claims.Subject, claims.Binding, nil
}

// Fingerprint hashes the given state parts into a hex string suitable as a link binding.
func Fingerprint(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}

// BindingEqual compares two bindings in constant time.
func BindingEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
