package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const validToml = `
[pet]
sum = 0.4
update = 0.3

[pet.sum_quorum]
min_count = 3
max_count = 10
min_time = 1
max_time = 30

[pet.update_quorum]
min_count = 3
max_count = 10
min_time = 1
max_time = 30

[pet.sum2_quorum]
min_count = 3
max_count = 10
min_time = 1
max_time = 30

[mask]
group_type = "prime"
data_type = "f32"
bound_type = "b0"
model_type = "m3"

[model]
length = 10

[api]
bind_address = "0.0.0.0:8080"
tls_disable = true
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, validToml)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 0.4, cfg.Pet.SumProb)
	require.Equal(t, 0.3, cfg.Pet.UpdateProb)
	require.Equal(t, 3, cfg.Pet.Sum.MinCount)
	require.Equal(t, 10, cfg.Pet.Sum.MaxCount)
	require.Equal(t, 10, cfg.Pet.ModelLength)
	require.Equal(t, "0.0.0.0:8080", cfg.BindAddress)
	require.True(t, cfg.TLSDisable)
}

func TestLoadRejectsStarvingProbabilities(t *testing.T) {
	// 1.0 + 0.9 - 1.0*0.9 = 1.0 >= 1, violates the starvation guard.
	bad := strings.Replace(validToml, "sum = 0.4", "sum = 1.0", 1)
	bad = strings.Replace(bad, "update = 0.3", "update = 0.9", 1)

	path := writeTemp(t, bad)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsUnknownMaskType(t *testing.T) {
	bad := strings.Replace(validToml, `group_type = "prime"`, `group_type = "nonsense"`, 1)
	path := writeTemp(t, bad)
	_, err := Load(path)
	require.Error(t, err)
}
