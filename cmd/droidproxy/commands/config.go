package commands

import (
	"github.com/urfave/cli/v3"

	"github.com/droid2api/droidproxy/internal/app"
)

// loadConfig loads the layered configuration and applies flags the user set
// explicitly on top of it.
func loadConfig(path string, cmd *cli.Command, environ func() []string) (*app.Config, error) {
	cfg, err := app.LoadConfig(path, environ)
	if err != nil {
		return nil, err
	}

	overridden := false
	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
		overridden = true
	}
	if isSetLocal(cmd, "log-format") {
		cfg.Log.Format = cmd.String("log-format")
		overridden = true
	}
	if isSetLocal(cmd, "log-exporter") {
		cfg.Log.Exporter = cmd.String("log-exporter")
		overridden = true
	}
	if isSetLocal(cmd, "host") {
		cfg.Host = cmd.String("host")
		overridden = true
	}
	if isSetLocal(cmd, "port") {
		cfg.Port = cmd.Int("port")
		overridden = true
	}

	if overridden {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// isSetLocal reports whether cmd defines the flag and the user set it.
func isSetLocal(cmd *cli.Command, name string) bool {
	for _, f := range cmd.Flags {
		for _, n := range f.Names() {
			if n == name {
				return cmd.IsSet(name)
			}
		}
	}
	return false
}
