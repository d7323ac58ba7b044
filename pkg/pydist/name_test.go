// SPDX-License-Identifier: MPL-2.0

package pydist

import (
	"errors"
	"testing"
)

func TestDistName_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   DistName
		want DistName
	}{
		{"already canonical", "requests", "requests"},
		{"uppercase", "Flask", "flask"},
		{"underscores", "typing_extensions", "typing-extensions"},
		{"dots", "zope.interface", "zope-interface"},
		{"mixed run", "Foo__Bar..baz", "foo-bar-baz"},
		{"hyphen run", "a---b", "a-b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.in.Normalize(); got != tt.want {
				t.Errorf("DistName(%q).Normalize() = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDistName_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      DistName
		wantErr bool
	}{
		{"simple", "requests", false},
		{"single rune", "a", false},
		{"interior punctuation", "zope.interface", false},
		{"digits", "py3dns", false},
		{"empty is invalid", "", true},
		{"leading hyphen is invalid", "-requests", true},
		{"trailing dot is invalid", "requests.", true},
		{"spaces are invalid", "my package", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.in.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DistName(%q).Validate() returned nil, want error", tt.in)
				}
				if !errors.Is(err, ErrInvalidDistName) {
					t.Errorf("error should wrap ErrInvalidDistName, got: %v", err)
				}
				var nameErr *InvalidDistNameError
				if !errors.As(err, &nameErr) {
					t.Errorf("error should be *InvalidDistNameError, got: %T", err)
				}
			} else if err != nil {
				t.Errorf("DistName(%q).Validate() returned unexpected error: %v", tt.in, err)
			}
		})
	}
}
