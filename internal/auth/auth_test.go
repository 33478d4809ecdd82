package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	svc := NewService("test-secret-1234567890", time.Hour)

	token, err := svc.GenerateToken("ci-bot", []string{"/srv/projects/alpha"})
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Subject != "ci-bot" {
		t.Fatalf("claims.Subject = %q, want %q", claims.Subject, "ci-bot")
	}
	if len(claims.Roots) != 1 || claims.Roots[0] != "/srv/projects/alpha" {
		t.Fatalf("claims.Roots = %v, want [/srv/projects/alpha]", claims.Roots)
	}
}

func TestGenerateTokenRequiresSubject(t *testing.T) {
	svc := NewService("test-secret-1234567890", time.Hour)
	if _, err := svc.GenerateToken("  ", nil); err != ErrSubjectMissing {
		t.Fatalf("GenerateToken error = %v, want %v", err, ErrSubjectMissing)
	}
}

func TestValidateTokenExpired(t *testing.T) {
	svc := NewService("test-secret-1234567890", -time.Minute)

	token, err := svc.GenerateToken("expired", nil)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	_, err = svc.ValidateToken(token)
	if err != ErrTokenExpired {
		t.Fatalf("ValidateToken error = %v, want %v", err, ErrTokenExpired)
	}
}

func TestClaimsAllowsRoot(t *testing.T) {
	open := &Claims{}
	if !open.AllowsRoot("/anything") {
		t.Fatal("claims without roots should allow every root")
	}

	scoped := &Claims{Roots: []string{"/srv/projects/alpha", "/home/dev/"}}
	tests := []struct {
		root string
		want bool
	}{
		{root: "/srv/projects/alpha", want: true},
		{root: "/srv/projects/alpha/sub", want: true},
		{root: "/srv/projects/alphabet", want: false},
		{root: "/home/dev", want: true},
		{root: "/srv/projects", want: false},
	}
	for _, tc := range tests {
		if got := scoped.AllowsRoot(tc.root); got != tc.want {
			t.Fatalf("AllowsRoot(%q) = %v, want %v", tc.root, got, tc.want)
		}
	}

	var missing *Claims
	if missing.AllowsRoot("/srv") {
		t.Fatal("nil claims allowed a root")
	}
}
