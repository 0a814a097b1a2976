// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package envname

import (
	"strings"
	"testing"
)

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"CLAWLETS_TASK", true},
		{"API_KEY", true},
		{"_PRIVATE", true},
		{"A", true},
		{"KEY_2", true},
		{"", false},
		{"2KEY", false},              // digit first
		{"lower_case", false},        // lowercase
		{"HAS-DASH", false},          // dash
		{"HAS SPACE", false},         // space
		{"PATH=évil", false},         // non-ASCII and equals
		{"LD_PRELOAD\n", false},      // control character
		{strings.Repeat("A", 129), false},
		{strings.Repeat("A", 128), true},
	}

	for _, test := range tests {
		if got := Valid(test.name); got != test.want {
			t.Errorf("Valid(%q) = %v, want %v", test.name, got, test.want)
		}
	}
}

func TestCheckPublic(t *testing.T) {
	if err := CheckPublic("CLAWLETS_PERSONA"); err != nil {
		t.Errorf("CheckPublic(CLAWLETS_PERSONA) = %v, want nil", err)
	}
	if err := CheckPublic("PERSONA"); err == nil {
		t.Error("CheckPublic without CLAWLETS_ prefix should fail")
	}
	if err := CheckPublic("clawlets_persona"); err == nil {
		t.Error("CheckPublic with lowercase name should fail")
	}
}
