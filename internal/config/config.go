package config

import (
	"github.com/vidsmith/vidsmith/internal/domain"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"   validate:"required"`
	Provider   ProviderConfig   `mapstructure:"provider"   validate:"required"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Generation GenerationConfig `mapstructure:"generation" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// PollPolicyConfig bounds the provider poll loop for one model class.
type PollPolicyConfig struct {
	IntervalSeconds   int `mapstructure:"interval_seconds"    validate:"gt=0"`
	MaxAttempts       int `mapstructure:"max_attempts"        validate:"gt=0"`
	MaxElapsedSeconds int `mapstructure:"max_elapsed_seconds" validate:"gte=0"`
}

// ProviderConfig contains the remote video API credentials and tuning.
type ProviderConfig struct {
	SecretID              string                      `mapstructure:"secret_id"  validate:"required"`
	SecretKey             string                      `mapstructure:"secret_key" validate:"required"`
	Host                  string                      `mapstructure:"host"       validate:"required,hostname"`
	Region                string                      `mapstructure:"region"`
	Version               string                      `mapstructure:"version"    validate:"required"`
	SubAppID              string                      `mapstructure:"sub_app_id"`
	TimeoutSeconds        int                         `mapstructure:"timeout_seconds"`
	MaxCreateRetries      int                         `mapstructure:"max_create_retries"`
	RetryBaseDelaySeconds int                         `mapstructure:"retry_base_delay_seconds"`
	PollPolicies          map[string]PollPolicyConfig `mapstructure:"poll_policies"`
}

// StorageConfig selects where reference images and finished outputs are
// re-hosted. With an empty UploadBaseURL the uploader degrades to a
// passthrough that leaves provider URLs in place.
type StorageConfig struct {
	// UploadBaseURL is the PUT endpoint prefix for durable storage.
	UploadBaseURL string `mapstructure:"upload_base_url" validate:"omitempty,url"`

	// PublicBaseURL is the prefix of the readable URL for an uploaded
	// object. Defaults to UploadBaseURL when empty.
	PublicBaseURL string `mapstructure:"public_base_url" validate:"omitempty,url"`

	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"gte=0"`
}

// GenerationConfig tunes the orchestrator and reconciler, and carries
// the model catalog.
type GenerationConfig struct {
	// GraceWindowSeconds is how long the reconciler waits before
	// declaring a job without a provider task id lost.
	GraceWindowSeconds int `mapstructure:"grace_window_seconds" validate:"gt=0"`

	// MaxConcurrent caps concurrently running jobs per submission.
	// Zero means unlimited.
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"gte=0"`

	Models []domain.ModelSpec `mapstructure:"models" validate:"required,min=1,dive"`
}

// Catalog builds the model catalog from the configured model list.
func (g GenerationConfig) Catalog() domain.ModelCatalog {
	catalog := make(domain.ModelCatalog, len(g.Models))
	for _, m := range g.Models {
		catalog[m.ID] = m
	}
	return catalog
}
