package middleware

import (
	"context"
	"testing"
)

func TestWithIdentity(t *testing.T) {
	ctx := WithIdentity(context.Background(), "acc-1", "PRIMARY", "sess-1")

	if id, ok := GetAccountID(ctx); !ok || id != "acc-1" {
		t.Errorf("GetAccountID = %q, %v", id, ok)
	}
	if kind, ok := GetAccountKind(ctx); !ok || kind != "PRIMARY" {
		t.Errorf("GetAccountKind = %q, %v", kind, ok)
	}
	if sid, ok := GetSessionID(ctx); !ok || sid != "sess-1" {
		t.Errorf("GetSessionID = %q, %v", sid, ok)
	}
}

func TestGetters_EmptyContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetAccountID(ctx); ok {
		t.Error("GetAccountID should be false on empty context")
	}
	if _, ok := GetAccountKind(ctx); ok {
		t.Error("GetAccountKind should be false on empty context")
	}
	if _, ok := GetSessionID(ctx); ok {
		t.Error("GetSessionID should be false on empty context")
	}
	if ip := ClientIPFromContext(ctx); ip != "" {
		t.Errorf("ClientIPFromContext = %q, want empty", ip)
	}
}

func TestGetters_EmptyValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "", "", "")
	if _, ok := GetAccountID(ctx); ok {
		t.Error("empty account id should report false")
	}
}
