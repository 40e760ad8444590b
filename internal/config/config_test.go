package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "MATCH_THRESHOLD", "FACE_SIZE", "DETECTOR_BACKEND", "KNOWLEDGE_DIR", "TEMP_DIR", "REBUILD_ON_START"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 80.0, cfg.Recognition.MatchThreshold)
	assert.Equal(t, 200, cfg.Recognition.FaceSize)
	assert.Equal(t, DetectorOpenCV, cfg.Recognition.Detector)
	assert.Equal(t, 1, cfg.Recognition.LBPHRadius)
	assert.Equal(t, 8, cfg.Recognition.LBPHNeighbors)
	assert.Equal(t, 123.0, cfg.Recognition.LBPHThreshold)
	assert.Equal(t, "knowledge", cfg.Storage.KnowledgeDir)
	assert.Equal(t, "temp", cfg.Storage.TempDir)
	assert.True(t, cfg.Recognition.RebuildOnStart)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_HOST", "")
	t.Setenv("SERVER_PORT", "8081")
	t.Setenv("MATCH_THRESHOLD", "65.5")
	t.Setenv("FACE_SIZE", "128")
	t.Setenv("DETECTOR_BACKEND", DetectorRemote)
	t.Setenv("DETECTOR_URL", "http://detector:5000")
	t.Setenv("REBUILD_ON_START", "false")

	cfg := Load()
	assert.Equal(t, "0.0.0.0:8081", cfg.Server.Address())
	assert.Equal(t, 65.5, cfg.Recognition.MatchThreshold)
	assert.Equal(t, 128, cfg.Recognition.FaceSize)
	assert.Equal(t, DetectorRemote, cfg.Recognition.Detector)
	assert.False(t, cfg.Recognition.RebuildOnStart)
	assert.NoError(t, cfg.Validate())
}

func TestMalformedNumbersFallBack(t *testing.T) {
	t.Setenv("FACE_SIZE", "big")
	t.Setenv("MATCH_THRESHOLD", "eighty")

	cfg := Load()
	assert.Equal(t, 200, cfg.Recognition.FaceSize)
	assert.Equal(t, 80.0, cfg.Recognition.MatchThreshold)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Recognition.MatchThreshold = 0 }},
		{"negative face size", func(c *Config) { c.Recognition.FaceSize = -1 }},
		{"unknown backend", func(c *Config) { c.Recognition.Detector = "dlib" }},
		{"remote without url", func(c *Config) {
			c.Recognition.Detector = DetectorRemote
			c.Recognition.DetectorURL = ""
		}},
		{"empty knowledge dir", func(c *Config) { c.Storage.KnowledgeDir = "" }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Load()
			cfg.Recognition.Detector = DetectorOpenCV
			tc.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "faces", SSLMode: "disable"}
	require.Equal(t, "host=db port=5432 user=u password=p dbname=faces sslmode=disable", db.GetDSN())
}
