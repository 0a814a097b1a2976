// Copyright 2026 The Clawlets Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/clawlets/clf/lib/protocol"
)

func TestClassifyExit(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"explicit exit", &ExitError{Code: 7}, 7},
		{"usage", &UsageError{Message: "bad flag"}, ExitUser},
		{"wrapped usage", fmt.Errorf("context: %w", &UsageError{Message: "x"}), ExitUser},
		{"validation", &protocol.ServiceError{Code: protocol.CodeValidation}, ExitUser},
		{"not found", &protocol.ServiceError{Code: protocol.CodeNotFound}, ExitUser},
		{"server protocol", &protocol.ServiceError{Code: protocol.CodeProtocol}, ExitTransient},
		{"server internal", &protocol.ServiceError{Code: protocol.CodeInternal}, ExitFatal},
		{"version skew", &protocol.ProtocolError{Message: "mismatch"}, ExitTransient},
		{"plain error", errors.New("boom"), ExitFatal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyExit(tc.err); got != tc.want {
				t.Errorf("ClassifyExit(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
