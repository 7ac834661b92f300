package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDefaultConfig(t *testing.T) {
	require.NoError(t, ValidateWithDetails(DefaultConfig()))
}

func TestValidateRejectsBadEnums(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "loud"
	cfg.Storage.Type = "postgres"

	err := ValidateWithDetails(cfg)
	require.Error(t, err)

	details, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	assert.Len(t, details, 2)
}

func TestValidateCrossFields(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Badger.Path = ""

	err := ValidateWithDetails(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Badger.Path")

	cfg = DefaultConfig()
	cfg.Broker.Redis.Address = ""
	err = ValidateWithDetails(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Redis.Address")

	cfg = DefaultConfig()
	cfg.Saga.Deadline = 0
	err = ValidateWithDetails(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Deadline")
}
