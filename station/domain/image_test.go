package domain

import (
	"errors"
	"testing"
)

func TestNormalizeImageRef(t *testing.T) {
	tests := []struct {
		name string
		ref  string
		want string
	}{
		{
			name: "bare key is prefixed",
			ref:  "023d2e8c4029412e1532319af131e6d0",
			want: "/api/stations/images/023d2e8c4029412e1532319af131e6d0",
		},
		{
			name: "reference form passes through",
			ref:  "/api/stations/images/023d2e8c4029412e1532319af131e6d0",
			want: "/api/stations/images/023d2e8c4029412e1532319af131e6d0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeImageRef(tt.ref); got != tt.want {
				t.Errorf("NormalizeImageRef(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestImageKeyFromRef(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{ref: "/api/stations/images/abc", want: "abc"},
		{ref: "abc", want: "abc"},
		{ref: "some/dir/abc", want: "abc"},
		{ref: "", want: ""},
	}

	for _, tt := range tests {
		if got := ImageKeyFromRef(tt.ref); got != tt.want {
			t.Errorf("ImageKeyFromRef(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestValidImageKey(t *testing.T) {
	if !ValidImageKey("023d2e8c4029412e1532319af131e6d0") {
		t.Error("expected md5 hex key to be valid")
	}
	for _, key := range []string{"", "../etc/passwd", "023D2E8C4029412E1532319AF131E6D0", "023d2e8c"} {
		if ValidImageKey(key) {
			t.Errorf("ValidImageKey(%q) = true, want false", key)
		}
	}
}

func TestErrImageMissingMatchesNotFound(t *testing.T) {
	if !errors.Is(ErrImageMissing, ErrNotFound) {
		t.Error("ErrImageMissing should match ErrNotFound")
	}
}
