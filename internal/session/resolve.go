package session

import "github.com/pveiga/skillswap/internal/config"

const DefaultSessionName = "main"

// Resolve picks the session to drive: the --session flag wins, then the
// default_session key in config.toml, then "main".
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return DefaultSessionName
}
