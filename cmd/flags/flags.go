// Package flags holds the global configuration shared by every jorup
// command, bound to the root command's persistent flags.
package flags

// Config is the global command configuration.
type Config struct {
	// JorupHome is the root state directory (flag --jorup-home, env
	// JORUP_HOME, default ~/.jorup).
	JorupHome string
	// Offline disables every network access; resolution then works from
	// the cached index and installed releases only.
	Offline bool
	// JorFile, when set, is a local index document used verbatim instead
	// of the cached/synced one. Testing escape hatch.
	JorFile string
}

var GlobalConfig = &Config{}
