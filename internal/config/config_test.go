package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REPOSITORY_DRIVER", "")
	t.Setenv("JWT_TTL", "")
	t.Setenv("S3_BUCKET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Repository)
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL)
	assert.Equal(t, 10, cfg.Photos.MaxCount)
	assert.Equal(t, int64(2<<20), cfg.Photos.MaxBytes)
	assert.Equal(t, []string{"image/jpeg", "image/png"}, cfg.Photos.AllowedTypes)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REPOSITORY_DRIVER", "Memory")
	t.Setenv("JWT_TTL", "90m")
	t.Setenv("PHOTO_MAX_COUNT", "4")
	t.Setenv("PHOTO_ALLOWED_TYPES", "image/png, image/webp ,")
	t.Setenv("DB_NAME", "reports")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Repository)
	assert.Equal(t, 90*time.Minute, cfg.JWT.TTL)
	assert.Equal(t, 4, cfg.Photos.MaxCount)
	assert.Equal(t, []string{"image/png", "image/webp"}, cfg.Photos.AllowedTypes)
	assert.Contains(t, cfg.Database.DSN(), "dbname=reports")
}

func TestLoad_Rejects(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown driver":     {"REPOSITORY_DRIVER": "mongo"},
		"bad ttl":            {"JWT_TTL": "forever"},
		"bad photo count":    {"PHOTO_MAX_COUNT": "ten"},
		"zero photo count":   {"PHOTO_MAX_COUNT": "0"},
		"bucket without key": {"S3_BUCKET": "photos", "S3_ACCESS_KEY_ID": ""},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
