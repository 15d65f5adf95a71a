package auth

import (
	"bytes"
	"testing"
)

func TestSelfTest(t *testing.T) {
	if err := SelfTest(); err != nil {
		t.Fatal(err)
	}
}

func TestTestPassword(t *testing.T) {
	salt := bytes.Repeat([]byte{0x5A}, 32)
	authBlob := MakeAuth("hunter2", salt)

	tests := []struct {
		name     string
		auth     []byte
		password string
		want     bool
	}{
		{"match", authBlob, "hunter2", true},
		{"wrong password", authBlob, "hunter3", false},
		{"empty password", authBlob, "", false},
		{"not set", make([]byte, AuthSize), "hunter2", false},
		{"short blob", authBlob[:32], "hunter2", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TestPassword(tt.auth, tt.password); got != tt.want {
				t.Errorf("TestPassword() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHashDependsOnSalt(t *testing.T) {
	salt1 := bytes.Repeat([]byte{0x01}, 32)
	salt2 := bytes.Repeat([]byte{0x02}, 32)
	h1 := Hash("password", salt1)
	h2 := Hash("password", salt2)
	if h1 == h2 {
		t.Error("same digest for different salts")
	}
}
