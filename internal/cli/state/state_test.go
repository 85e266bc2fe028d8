package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSaveLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	st, err := Load(path)
	if err != nil || st.AccessToken != "" {
		t.Fatalf("missing file should load empty state: %+v %v", st, err)
	}

	if err := Save(path, TokenState{AccessToken: "abc"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	st, err = Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if st.AccessToken != "abc" {
		t.Fatalf("unexpected token %q", st.AccessToken)
	}

	if err := Clear(path); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("Clear should ignore missing file: %v", err)
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	sign := func(exp time.Time) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)})
		raw, err := token.SignedString([]byte("secret"))
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return raw
	}

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{name: "empty", token: "", want: false},
		{name: "garbage", token: "not-a-jwt", want: false},
		{name: "valid", token: sign(now.Add(time.Hour)), want: false},
		{name: "expired", token: sign(now.Add(-time.Hour)), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (TokenState{AccessToken: tt.token}).Expired(now); got != tt.want {
				t.Fatalf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
