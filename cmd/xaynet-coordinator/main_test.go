package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/xaynetwork/xaynet-coordinator/key"
)

func newTestApp() *cli.App {
	app := cli.NewApp()
	app.Commands = []*cli.Command{
		{
			Name:   "keygen",
			Flags:  []cli.Flag{identityFlag},
			Action: keygenCmd,
		},
		{
			Name:   "show-params",
			Flags:  []cli.Flag{configFlag},
			Action: showParamsCmd,
		},
	}
	return app
}

func TestKeygenWritesIdentityFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.toml")
	app := newTestApp()
	require.NoError(t, app.Run([]string{"xaynet-coordinator", "keygen", "--identity", path}))

	kp, err := key.LoadIdentity(path)
	require.NoError(t, err)
	require.NotEqual(t, key.SigningPublicKey{}, kp.Public)
}

func TestKeygenRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.toml")
	app := newTestApp()
	require.NoError(t, app.Run([]string{"xaynet-coordinator", "keygen", "--identity", path}))
	require.Error(t, app.Run([]string{"xaynet-coordinator", "keygen", "--identity", path}))
}

const testConfigToml = `
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

func TestShowParamsPrintsValidatedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigToml), 0o600))

	app := newTestApp()
	require.NoError(t, app.Run([]string{"xaynet-coordinator", "show-params", "--config", path}))
}
