// Package nodecfg renders the configuration handed to the node process at
// launch. Two modes, never mixed: UseDefaults renders the network's default
// fragment into a generated config file, UseOverride passes a user file
// verbatim and adds nothing from the defaults. Extra flags are appended in
// both modes.
package nodecfg

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/input-output-hk/jorup/home"
	"github.com/input-output-hk/jorup/index"
)

// Mode selects between the convenience defaults and full user control.
type Mode int

const (
	UseDefaults Mode = iota
	UseOverride
)

const defaultRestListen = "127.0.0.1:8080"

// Input carries everything the renderer needs for one launch.
type Input struct {
	Channel      string
	Blockchain   *index.Blockchain
	Home         *home.Dir
	OverrideFile string
	Extra        []string
}

// Launch is the rendered outcome: the config path, the full ordered argument
// list and the REST port recorded for later info/shutdown calls (0 when it
// cannot be determined from an override file).
type Launch struct {
	ConfigPath string
	Args       []string
	RestPort   int
}

// Render produces the launch arguments for the given mode.
func Render(mode Mode, in Input) (Launch, error) {
	if _, err := in.Home.ChannelDir(in.Channel); err != nil {
		return Launch{}, err
	}
	if err := writeGenesisHash(in); err != nil {
		return Launch{}, err
	}

	if mode == UseOverride {
		path, err := filepath.Abs(in.OverrideFile)
		if err != nil {
			return Launch{}, fmt.Errorf("resolve config path: %w", err)
		}
		if _, err := os.Stat(path); err != nil {
			return Launch{}, fmt.Errorf("config file: %w", err)
		}
		args := append([]string{"--config", path}, in.Extra...)
		return Launch{ConfigPath: path, Args: args}, nil
	}

	doc := DefaultDocument(in)
	data, err := yaml.Marshal(doc)
	if err != nil {
		return Launch{}, fmt.Errorf("render node config: %w", err)
	}
	path := in.Home.NodeConfigFile(in.Channel)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Launch{}, fmt.Errorf("write node config: %w", err)
	}

	args := []string{"--config", path}
	if in.Blockchain != nil && in.Blockchain.Block0Hash != "" {
		args = append(args, "--genesis-block-hash", in.Blockchain.Block0Hash)
	}
	args = append(args, in.Extra...)
	return Launch{ConfigPath: path, Args: args, RestPort: restPort(doc)}, nil
}

// DefaultDocument builds the effective default configuration for a channel:
// the base document with the blockchain's config fragment shallow-merged on
// top. `jorup defaults` prints exactly this.
func DefaultDocument(in Input) map[string]interface{} {
	var peers []map[string]string
	if in.Blockchain != nil {
		for _, p := range in.Blockchain.TrustedPeers {
			peers = append(peers, map[string]string{"address": p.Address})
		}
	}

	doc := map[string]interface{}{
		"log": []map[string]string{
			{"output": "stderr", "level": "info", "format": "plain"},
		},
		"p2p": map[string]interface{}{
			"public_address": "/ip4/127.0.0.1/tcp/3000",
			"trusted_peers":  peers,
		},
		"rest": map[string]interface{}{
			"listen": defaultRestListen,
		},
		"storage": in.Home.NodeStorageDir(in.Channel),
	}
	if secret := in.Home.NodeSecretFile(in.Channel); fileExists(secret) {
		doc["secret_files"] = []string{secret}
	}

	if in.Blockchain != nil {
		for key, value := range in.Blockchain.DefaultConfig {
			doc[key] = value
		}
	}
	return doc
}

// writeGenesisHash materializes the channel's genesis hash file once, so a
// node launched in this directory can reference it.
func writeGenesisHash(in Input) error {
	if in.Blockchain == nil || in.Blockchain.Block0Hash == "" {
		return nil
	}
	path := in.Home.GenesisHashFile(in.Channel)
	if fileExists(path) {
		return nil
	}
	return os.WriteFile(path, []byte(in.Blockchain.Block0Hash), 0o644)
}

func restPort(doc map[string]interface{}) int {
	rest, ok := doc["rest"].(map[string]interface{})
	if !ok {
		return 0
	}
	listen, ok := rest["listen"].(string)
	if !ok {
		return 0
	}
	_, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
