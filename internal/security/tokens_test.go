package security

import (
	"testing"
	"time"
)

func TestTokenProvider_IssueAndValidate(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}

	access, exp, err := p.IssueAccess("s1", "a1", "PRIMARY")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if access == "" || exp.Before(time.Now()) {
		t.Fatalf("IssueAccess: token=%q exp=%v", access, exp)
	}
	id, err := p.ValidateAccess(access)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if id.SessionID != "s1" || id.AccountID != "a1" || id.Kind != "PRIMARY" {
		t.Errorf("ValidateAccess: got %+v", id)
	}

	refresh, jti, _, err := p.IssueRefresh("s1", "a1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	sid, jti2, aid, err := p.ValidateRefresh(refresh)
	if err != nil {
		t.Fatalf("ValidateRefresh: %v", err)
	}
	if sid != "s1" || jti2 != jti || aid != "a1" {
		t.Errorf("ValidateRefresh: got session=%q jti=%q account=%q", sid, jti2, aid)
	}
}

func TestTokenProvider_RejectsGarbage(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	if _, _, _, err := p.ValidateRefresh("invalid-token"); err != ErrInvalidToken {
		t.Errorf("ValidateRefresh: want ErrInvalidToken, got %v", err)
	}
	if _, err := p.ValidateAccess("invalid-token"); err != ErrInvalidToken {
		t.Errorf("ValidateAccess: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_WrongAudienceRejected(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	other := NewTokenProvider(p.privateKey, p.publicKey, "test-issuer", "someone-else", time.Minute, time.Hour)
	token, _, err := other.IssueAccess("s1", "a1", "MEMBER")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if _, err := p.ValidateAccess(token); err != ErrInvalidToken {
		t.Errorf("ValidateAccess with foreign audience: want ErrInvalidToken, got %v", err)
	}
}

func TestTokenProvider_ExpiredRejected(t *testing.T) {
	p, err := NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	expired := NewTokenProvider(p.privateKey, p.publicKey, "test-issuer", "test-audience", -time.Minute, -time.Minute)
	token, _, _, err := expired.IssueRefresh("s1", "a1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, _, _, err := p.ValidateRefresh(token); err != ErrInvalidToken {
		t.Errorf("ValidateRefresh expired: want ErrInvalidToken, got %v", err)
	}
}
