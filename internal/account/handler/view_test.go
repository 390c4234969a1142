package handler

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"account-mirror/internal/account/domain"
)

func TestNewView_OmitsCredentials(t *testing.T) {
	bday := time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC)
	v := NewView(&domain.Account{
		ID: "a1", Email: "a@x.com", PasswordHash: "$2a$secret", Kind: domain.KindPrimary,
		Profile: domain.Profile{Birthday: &bday}, MirrorID: "tb-1",
	})
	if v.Birthday != "1990-04-02" || !v.Mirrored {
		t.Errorf("view = %+v", v)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "secret") || strings.Contains(string(b), "tb-1") {
		t.Errorf("view leaks internal fields: %s", b)
	}
}

func TestParseBirthday(t *testing.T) {
	if got, err := ParseBirthday(""); err != nil || got != nil {
		t.Errorf("empty: got %v, %v", got, err)
	}
	if _, err := ParseBirthday("02/04/1990"); err == nil {
		t.Error("wrong layout should fail")
	}
	got, err := ParseBirthday("1990-04-02")
	if err != nil || got.Year() != 1990 {
		t.Errorf("got %v, %v", got, err)
	}
}
