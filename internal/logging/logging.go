// Package logging builds the structured logger injected into every component.
package logging

import (
	"strings"

	"go.uber.org/zap"
)

// New returns a sugared zap logger configured for the given mode
// ("prod"/"production" selects the JSON production encoder, anything
// else the development console encoder).
func New(mode string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// NewNop returns a logger that discards everything. Used by tests and
// as a default when a component is constructed without a logger.
func NewNop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
