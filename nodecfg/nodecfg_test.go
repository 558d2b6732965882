package nodecfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/input-output-hk/jorup/home"
	"github.com/input-output-hk/jorup/index"
)

func testBlockchain() *index.Blockchain {
	return &index.Blockchain{
		Channel:    "itn",
		Block0Hash: "8e4d2a343f3dcf93",
		TrustedPeers: []index.TrustedPeer{
			{Address: "/ip4/13.230.137.72/tcp/3000"},
		},
	}
}

func testInput(t *testing.T) Input {
	t.Helper()
	h, err := home.Open(t.TempDir())
	require.NoError(t, err)
	return Input{Channel: "itn", Blockchain: testBlockchain(), Home: h}
}

func TestRenderDefaults(t *testing.T) {
	in := testInput(t)
	in.Extra = []string{"--log-level", "debug"}

	launch, err := Render(UseDefaults, in)
	require.NoError(t, err)

	assert.Equal(t, in.Home.NodeConfigFile("itn"), launch.ConfigPath)
	assert.Equal(t, 8080, launch.RestPort)

	// Config file, genesis flag, then the user's extra flags in order.
	assert.Equal(t, []string{
		"--config", launch.ConfigPath,
		"--genesis-block-hash", "8e4d2a343f3dcf93",
		"--log-level", "debug",
	}, launch.Args)

	data, err := os.ReadFile(launch.ConfigPath)
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Contains(t, doc, "p2p")
	assert.Contains(t, doc, "rest")
	assert.Equal(t, in.Home.NodeStorageDir("itn"), doc["storage"])

	// The genesis hash was materialized for the channel.
	hash, err := os.ReadFile(in.Home.GenesisHashFile("itn"))
	require.NoError(t, err)
	assert.Equal(t, "8e4d2a343f3dcf93", string(hash))
}

func TestRenderOverrideBypassesDefaults(t *testing.T) {
	in := testInput(t)
	override := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(override, []byte("rest:\n  listen: 127.0.0.1:9999\n"), 0o644))
	in.OverrideFile = override
	in.Extra = []string{"--quiet"}

	launch, err := Render(UseOverride, in)
	require.NoError(t, err)

	// The override is used verbatim: no generated config, no genesis flag,
	// no merge of the network defaults.
	assert.Equal(t, []string{"--config", launch.ConfigPath, "--quiet"}, launch.Args)
	_, err = os.Stat(in.Home.NodeConfigFile("itn"))
	assert.True(t, os.IsNotExist(err))
}

func TestRenderOverrideMissingFile(t *testing.T) {
	in := testInput(t)
	in.OverrideFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Render(UseOverride, in)
	assert.Error(t, err)
}

func TestDefaultDocumentMergesFragment(t *testing.T) {
	in := testInput(t)
	in.Blockchain.DefaultConfig = map[string]interface{}{
		"rest":         map[string]interface{}{"listen": "127.0.0.1:9191"},
		"mempool_size": 42,
	}

	doc := DefaultDocument(in)
	rest := doc["rest"].(map[string]interface{})
	assert.Equal(t, "127.0.0.1:9191", rest["listen"])
	assert.Equal(t, 42, doc["mempool_size"])

	launch, err := Render(UseDefaults, in)
	require.NoError(t, err)
	assert.Equal(t, 9191, launch.RestPort)
}
