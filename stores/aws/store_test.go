package aws

import (
	"collabnotes/core"
	"errors"
	"testing"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		kind, id string
		want     string
		wantErr  bool
	}{
		{"notes", "01HZX", "notes/01HZX.json", false},
		{"users", "abc", "users/abc.json", false},
		{"notes", "", "", true},
		{"notes", "..", "", true},
		{"notes", "../users/abc", "", true},
		{"notes", "a/b", "", true},
	}

	for _, tt := range tests {
		got, err := objectKey(tt.kind, tt.id)
		if tt.wantErr {
			if !errors.Is(err, core.ErrInvalidID) {
				t.Errorf("objectKey(%q, %q) error = %v, want ErrInvalidID", tt.kind, tt.id, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("objectKey(%q, %q) unexpected error: %v", tt.kind, tt.id, err)
		}
		if got != tt.want {
			t.Errorf("objectKey(%q, %q) = %q, want %q", tt.kind, tt.id, got, tt.want)
		}
	}
}

func TestIndexKeys(t *testing.T) {
	if got := emailKey("a@b.c"); got != "emails/a@b.c.json" {
		t.Errorf("emailKey() = %q", got)
	}
	if got := subjectKey("oidc:https://issuer/x"); got != "subjects/oidc:https:__issuer_x.json" {
		t.Errorf("subjectKey() = %q", got)
	}
}
