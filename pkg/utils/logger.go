// Package utils holds small cross-cutting helpers shared by the binaries.
package utils

import (
	"fmt"

	"go.uber.org/zap"
)

// NewSugaredLogger builds the process logger. Verbose selects zap's
// development config (console encoder, debug level); otherwise the JSON
// production config is used.
func NewSugaredLogger(verbose bool) (*zap.SugaredLogger, error) {
	build := zap.NewProduction
	if verbose {
		build = zap.NewDevelopment
	}

	l, err := build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l.Sugar(), nil
}
