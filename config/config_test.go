package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("TRANSCRIPTION_PROVIDER", "")
	t.Setenv("RECORDING_STRICT_TRANSITIONS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "mock", cfg.Transcription.Provider)
	assert.Equal(t, 30, cfg.JWT.ExpireMinutes)
	assert.True(t, cfg.Recording.StrictTransitions)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RECORDING_STRICT_TRANSITIONS", "false")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("JWT_EXPIRE_MINUTES", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.False(t, cfg.Recording.StrictTransitions)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 30, cfg.JWT.ExpireMinutes, "unparsable value falls back")
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "rec", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/rec?sslmode=disable", c.DSN())

	c.URL = "postgres://elsewhere/x"
	assert.Equal(t, "postgres://elsewhere/x", c.DSN())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWT:           JWTConfig{Secret: "s", ExpireMinutes: 30},
			Storage:       StorageConfig{Backend: "local", LocalPath: "audio", MaxChunkBytes: 1},
			Transcription: TranscriptionConfig{Provider: "mock"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage.Backend = "s3" }, wantErr: "AWS_S3_AUDIO_BUCKET"},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "ftp" }, wantErr: "STORAGE_BACKEND"},
		{name: "openai without key", mutate: func(c *Config) { c.Transcription.Provider = "openai" }, wantErr: "OPENAI_API_KEY"},
		{name: "unknown provider", mutate: func(c *Config) { c.Transcription.Provider = "x" }, wantErr: "TRANSCRIPTION_PROVIDER"},
		{name: "empty secret", mutate: func(c *Config) { c.JWT.Secret = "" }, wantErr: "JWT_SECRET"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
