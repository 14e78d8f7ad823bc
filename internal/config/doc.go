// Package config handles configuration loading for draftkeep.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from DRAFTKEEP_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/draftkeep/config.yaml
//  3. ~/.config/draftkeep/config.yaml
//
// Files ending in .toml are read as TOML; every other file is YAML. Both
// formats use the same keys.
//
// # Environment Variable Expansion
//
//	auth:
//	  jwt_secret: "${DRAFTKEEP_JWT_SECRET}"
//
// Unset variables expand to the empty string. DRAFTKEEP_DB_PATH, when set,
// replaces database.path after parsing.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8484"
//
//	database:
//	  path: "~/.local/share/draftkeep/drafts.db"
//	  driver: "sqlite"        # sqlite (pure Go) or sqlite3 (cgo)
//
//	drafts:
//	  backend: "sqlite"       # sqlite, file, memory
//	  dir: ""                 # file backend directory
//	  delay: "500ms"          # quiet period before a write
//	  idle_ttl: "10m"         # close drafts untouched this long, 0 disables
//	  write_timeout: "5s"
//	  max_open: 1024
//
//	auth:
//	  jwt_secret: "${DRAFTKEEP_JWT_SECRET}"   # empty disables auth
//
//	tailscale:
//	  enabled: false
//	  hostname: "draftkeep"
//	  auth_key: "${TS_AUTHKEY}"
//	  funnel: false
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
