package main

import (
	"testing"

	"github.com/shopspring/decimal"

	"bakehouse/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.AppEnv = "production"
	cfg.Auth.Secret = "short"

	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.AppEnv = "production"
	cfg.Auth.Secret = "0123456789abcdef0123456789abcdef"

	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigAllowsEmptySecretInDevelopment(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.AppEnv = "development"

	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("expected development defaults to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRejectsNegativeEpsilon(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.AppEnv = "production"
	cfg.Auth.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Engine.ShortageEpsilon = decimal.NewFromFloat(-0.5)

	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatalf("expected negative shortage epsilon to be rejected")
	}
}
