// Package config handles configuration loading for coco-gateway.
//
// # Configuration File
//
// The file is YAML unless its name ends in .toml. The serve command reads the
// path from the -config flag, then COCO_CONFIG, then ./coco.yaml.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${COCO_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
// COCO_DB_PATH, when set, overrides database.path.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  shutdown_timeout: "10s"
//
//	tailscale:
//	  enabled: false
//	  hostname: "coco"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//
//	database:
//	  path: "/var/lib/coco/coco.db"
//
//	auth:
//	  jwt_secret: "${COCO_JWT_SECRET}"  # empty: tokens are user IDs (development only)
//	  token_ttl: "24h"
//
//	domain:
//	  root: "coco"  # users must list this root; empty admits everyone
//
//	sessions:
//	  outbound_buffer: 256  # frames queued per connection before it is dropped
//	  write_timeout: "10s"
//
//	ingest:
//	  dedupe_ttl: "10m"
//	  dedupe_max: 100000
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// Durations use time.ParseDuration syntax. Zero values take the defaults
// exported by this package.
package config
