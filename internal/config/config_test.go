package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pable/go-val-metrics/internal/model"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "valmetrics.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefaultsValidate(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":8080"
  cors_origins: ["https://stats.example"]
database:
  driver: postgres
  dsn: postgres://u:p@localhost/val
extractor:
  timeout: 90s
logging:
  level: debug
  format: json
`)
	t.Setenv("EXTRACTOR_TIMEOUT", "45s")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SOME_UNRELATED_VAR", "ignored")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"https://stats.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 45*time.Second, cfg.Extractor.Timeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	// untouched defaults survive
	assert.Equal(t, int64(20<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, "Drahmenn", cfg.Roster.Male.IGL)
}

func TestLoadRosterFromEnv(t *testing.T) {
	t.Setenv("MALE_PLAYERS", "a, b ,c")
	t.Setenv("MALE_IGL", "b")
	t.Setenv("FEMALE_PLAYERS", "x,y")
	t.Setenv("FEMALE_IGL", "y")

	cfg, err := Load(writeFile(t, "{}"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Roster.Male.Players)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	assert.Equal(t, "y", reg.IGL(model.CohortFemale))
}

func TestLoadRejectsOverlappingRosters(t *testing.T) {
	t.Setenv("FEMALE_PLAYERS", "Drahmenn,sawako")
	t.Setenv("FEMALE_IGL", "sawako")

	_, err := Load(writeFile(t, "{}"))
	assert.Error(t, err)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"driver":  "database:\n  driver: mysql\n",
		"timeout": "extractor:\n  timeout: 0s\n",
		"level":   "logging:\n  level: loud\n",
		"igl":     "roster:\n  male:\n    igl: \"\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadAcceptsDriverAliases(t *testing.T) {
	for _, d := range []string{"sqlite", "sqlite3", "postgres", "postgresql", "pgx"} {
		t.Run(d, func(t *testing.T) {
			cfg, err := Load(writeFile(t, "database:\n  driver: "+d+"\n"))
			require.NoError(t, err)
			assert.Equal(t, d, cfg.Database.Driver)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestExtractConfig(t *testing.T) {
	cfg := Defaults()
	ec := cfg.ExtractConfig()
	assert.Equal(t, cfg.Extractor.Command, ec.Command)
	assert.Equal(t, 60*time.Second, ec.Timeout)
}
