package credential

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kuth-chi/eductionhub-sessions/internal/model"
)

func testPrincipal() model.Principal {
	return model.Principal{
		ID:          "user-1",
		Username:    "sok.chan",
		Email:       "sok.chan@example.local",
		FirstName:   "Sok",
		LastName:    "Chan",
		Active:      true,
		Roles:       []string{"member"},
		Permissions: []string{"resume.view"},
	}
}

func TestMintVerifyRoundTrip(t *testing.T) {
	codec, err := NewCodec("test-secret", "test-issuer")
	if err != nil {
		t.Fatalf("codec error: %v", err)
	}

	cctx := model.ClientContext{IPAddress: "10.0.0.5", UserAgent: "Chrome/Windows"}
	for _, ttl := range []time.Duration{time.Second, time.Minute, 24 * time.Hour} {
		raw, minted, err := codec.Mint(testPrincipal(), cctx, KindRefresh, ttl)
		if err != nil {
			t.Fatalf("mint error: %v", err)
		}

		claims, err := codec.Verify(raw)
		if err != nil {
			t.Fatalf("verify error: %v", err)
		}
		if claims.Subject != "user-1" || claims.Kind != KindRefresh {
			t.Fatalf("unexpected claims: subject=%s kind=%s", claims.Subject, claims.Kind)
		}
		if claims.IP != "10.0.0.5" || claims.UserAgent != "Chrome/Windows" {
			t.Fatalf("context claims not embedded: ip=%s ua=%s", claims.IP, claims.UserAgent)
		}
		if claims.Profile == nil || claims.Profile.Email != "sok.chan@example.local" {
			t.Fatalf("profile snapshot not embedded")
		}
		if !claims.ExpiresAt.Time.Equal(minted.ExpiresAt.Time) {
			t.Fatalf("verify returned different expiry than minted")
		}
		if got := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time); got != ttl {
			t.Fatalf("expected ttl %s, got %s", ttl, got)
		}
	}
}

func TestMintIsUniquePerIssuance(t *testing.T) {
	codec, err := NewCodec("test-secret", "test-issuer")
	if err != nil {
		t.Fatalf("codec error: %v", err)
	}

	// Identical principal, context, kind and ttl within the same second
	// must still yield distinct credentials.
	cctx := model.ClientContext{IPAddress: "10.0.0.5", UserAgent: "Chrome/Windows"}
	first, firstClaims, err := codec.Mint(testPrincipal(), cctx, KindRefresh, time.Minute)
	if err != nil {
		t.Fatalf("mint error: %v", err)
	}
	second, secondClaims, err := codec.Mint(testPrincipal(), cctx, KindRefresh, time.Minute)
	if err != nil {
		t.Fatalf("mint error: %v", err)
	}

	if first == second {
		t.Fatal("back-to-back mints produced identical credentials")
	}
	if firstClaims.ID == "" || firstClaims.ID == secondClaims.ID {
		t.Fatalf("expected distinct non-empty token ids, got %q and %q", firstClaims.ID, secondClaims.ID)
	}
}

func TestParseDoesNotCheckSignature(t *testing.T) {
	codec, _ := NewCodec("test-secret", "test-issuer")
	other, _ := NewCodec("other-secret", "test-issuer")

	raw, _, err := other.Mint(testPrincipal(), model.ClientContext{}, KindAccess, time.Minute)
	if err != nil {
		t.Fatalf("mint error: %v", err)
	}

	if _, err := codec.Parse(raw); err != nil {
		t.Fatalf("parse should accept a well-formed foreign token: %v", err)
	}
	if _, err := codec.Verify(raw); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected bad signature, got %v", err)
	}
}

func TestStructuralRejection(t *testing.T) {
	codec, _ := NewCodec("test-secret", "")

	bad := []string{
		"",
		"onesegment",
		"two.segments",
		"a.b.c.d",
		"header.payload.sig!",
		"header..sig",
		"hea der.payload.sig",
		"<script>.alert.xyz",
		strings.Repeat("a", 5000) + ".b.c",
	}
	for _, raw := range bad {
		if _, err := codec.Parse(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("parse accepted %q", raw)
		}
		if _, err := codec.Verify(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("verify accepted %q", raw)
		}
	}
}

func TestVerifyExpired(t *testing.T) {
	codec, _ := NewCodec("test-secret", "test-issuer")

	now := time.Now().UTC()
	stale := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		Ver:  claimsVersion,
		Kind: KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "test-issuer",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	})
	raw, err := stale.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	if _, err := codec.Verify(raw); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	// Parse ignores expiry by contract.
	if _, err := codec.Parse(raw); err != nil {
		t.Fatalf("parse should ignore expiry: %v", err)
	}
}

func TestMintRejectsNonPositiveTTL(t *testing.T) {
	codec, _ := NewCodec("test-secret", "")
	if _, _, err := codec.Mint(testPrincipal(), model.ClientContext{}, KindAccess, 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
