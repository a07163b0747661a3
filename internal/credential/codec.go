// Package credential mints and verifies the signed session credentials
// (access and refresh) issued by this service. The codec is independent of
// transport: cookie handling lives in the cookie package.
package credential

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kuth-chi/eductionhub-sessions/internal/model"
)

var (
	ErrMalformed    = errors.New("malformed credential")
	ErrBadSignature = errors.New("credential signature invalid")
	ErrExpired      = errors.New("credential expired")
)

// Kind distinguishes the two credential flavors issued per login.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// maxCredentialLength caps accepted token size so oversized inputs are
// rejected before any cryptographic work.
const maxCredentialLength = 4096

// shapePattern is the structural form of a credential: exactly three
// dot-separated base64url segments.
var shapePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)

// ProfileSnapshot is the principal attribute snapshot embedded at issuance.
type ProfileSnapshot struct {
	ID        string `json:"id"`
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Active    bool   `json:"is_active"`
	Superuser bool   `json:"is_superuser,omitempty"`
}

// Claims is the versioned claim set shared by access and refresh
// credentials. The explicit Ver field guards against claim-shape drift
// between issuance and verification.
type Claims struct {
	Ver         int              `json:"ver"`
	Kind        Kind             `json:"kind"`
	IP          string           `json:"ip,omitempty"`
	UserAgent   string           `json:"ua,omitempty"`
	Roles       []string         `json:"roles,omitempty"`
	Permissions []string         `json:"permissions,omitempty"`
	Profile     *ProfileSnapshot `json:"profile,omitempty"`
	jwt.RegisteredClaims
}

const claimsVersion = 1

type Codec struct {
	secret []byte
	issuer string
}

func NewCodec(secret, issuer string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("credential codec requires a signing secret")
	}
	return &Codec{secret: []byte(secret), issuer: issuer}, nil
}

// Mint issues a signed credential of the given kind for the principal,
// embedding the client context and a principal attribute snapshot.
// Expiry is issued-at plus ttl.
func (c *Codec) Mint(p model.Principal, cctx model.ClientContext, kind Kind, ttl time.Duration) (string, *Claims, error) {
	if ttl <= 0 {
		return "", nil, fmt.Errorf("invalid ttl %s", ttl)
	}
	now := time.Now().UTC()
	claims := &Claims{
		Ver:         claimsVersion,
		Kind:        kind,
		IP:          cctx.IPAddress,
		UserAgent:   cctx.UserAgent,
		Roles:       p.Roles,
		Permissions: p.Permissions,
		Profile: &ProfileSnapshot{
			ID:        p.ID,
			Username:  p.Username,
			Email:     p.Email,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Active:    p.Active,
			Superuser: p.Superuser,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			// jti makes every issuance unique even within the same
			// second; rotation and per-token lookup depend on it.
			ID:        uuid.NewString(),
			Subject:   p.ID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse decodes claims without checking signature or expiry. Structural and
// length checks run first so garbage is rejected on a cheap path.
func (c *Codec) Parse(raw string) (*Claims, error) {
	if err := checkShape(raw); err != nil {
		return nil, err
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}

// Verify decodes claims and additionally requires a valid signature against
// the configured key and an unexpired credential.
func (c *Codec) Verify(raw string) (*Claims, error) {
	if err := checkShape(raw); err != nil {
		return nil, err
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	token, err := jwt.NewParser(options...).ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if !token.Valid {
		return nil, ErrBadSignature
	}
	return claims, nil
}

func checkShape(raw string) error {
	if raw == "" || len(raw) > maxCredentialLength {
		return ErrMalformed
	}
	if !shapePattern.MatchString(raw) {
		return ErrMalformed
	}
	return nil
}
