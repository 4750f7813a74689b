package domainutil

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Example.COM", "example.com"},
		{"https://example.com/", "example.com"},
		{"http://example.com", "example.com"},
		{"  example.com  ", "example.com"},
		{"example.com//", "example.com"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in          string
		registrable string
		suffix      string
	}{
		{"example.com", "example", "com"},
		{"example.co.uk", "example", "co.uk"},
		{"sub.example.com", "example", "com"},
	}
	for _, tt := range tests {
		got := Parse(tt.in)
		if got.RegistrablePart != tt.registrable {
			t.Errorf("Parse(%q).RegistrablePart = %q, want %q", tt.in, got.RegistrablePart, tt.registrable)
		}
		if got.PublicSuffix != tt.suffix {
			t.Errorf("Parse(%q).PublicSuffix = %q, want %q", tt.in, got.PublicSuffix, tt.suffix)
		}
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		domain string
		want   bool
	}{
		{"good.com", true},
		{"my-shop.co.uk", true},
		{"бад.com", false},
		{"bad_.com", false},
		{"", false},
		{"nodot", false},
		{".com", false},
		{"trailing.", false},
		{"double..dot.com", false},
		{"has space.com", false},
		{"caf�.com", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.domain); got != tt.want {
			t.Errorf("IsValid(%q) = %v, want %v", tt.domain, got, tt.want)
		}
	}
}

func TestFilterPartitionsAndPreservesOrder(t *testing.T) {
	valid, invalid := Filter([]string{"good.com", "бад.com", "also-good.de", "bad_.com"})

	if !reflect.DeepEqual(valid, []string{"good.com", "also-good.de"}) {
		t.Errorf("unexpected valid set: %v", valid)
	}
	if !reflect.DeepEqual(invalid, []string{"бад.com", "bad_.com"}) {
		t.Errorf("unexpected invalid set: %v", invalid)
	}
}

func TestFilterIdempotent(t *testing.T) {
	valid, _ := Filter([]string{"good.com", "бад.com", "shop.de"})
	again, invalid := Filter(valid)

	if !reflect.DeepEqual(again, valid) {
		t.Errorf("second filter changed the valid set: %v vs %v", again, valid)
	}
	if len(invalid) != 0 {
		t.Errorf("second filter rejected previously valid domains: %v", invalid)
	}
}
