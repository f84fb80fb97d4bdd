package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `mapstructure:"name"`
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`
	Symbols []string `mapstructure:"symbols"`
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := "name: demo\nhttp:\n  addr: \":8080\"\nsymbols: [TSLA, HIND]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo-svc.yaml"), []byte(yaml), 0o644))
	t.Setenv("DEMO_SVC_HTTP_ADDR", ":9999")

	var out sample
	_, err := Load("demo-svc", &out, dir)
	require.NoError(t, err)
	assert.Equal(t, "demo", out.Name)
	assert.Equal(t, ":9999", out.HTTP.Addr)
	assert.Equal(t, []string{"TSLA", "HIND"}, out.Symbols)
}

func TestLoad_MissingFile(t *testing.T) {
	var out sample
	_, err := Load("definitely-missing-service", &out, t.TempDir())
	assert.Error(t, err)
}
