// Package config handles configuration loading for the channel relay.
//
// # Overview
//
// Configuration is loaded from a TOML file with environment variable
// expansion. Missing Matrix credentials are fatal at load time; an empty
// operator or source-channel set is allowed and only warned about at startup.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from RELAY_CONFIG environment variable
//  2. ~/.config/channel-relay/relay.toml
//
// # Environment Variable Expansion
//
// Values can reference environment variables with ${VAR} syntax:
//
//	[matrix]
//	access_token = "${RELAY_ACCESS_TOKEN}"
//
// # Sections
//
// Matrix connection:
//
//	[matrix]
//	homeserver = "https://matrix.example.org"
//	user_id = "@relay:example.org"
//	access_token = "${RELAY_ACCESS_TOKEN}"
//
// Relay topology and tunables:
//
//	[relay]
//	source_channels = ["!news:example.org"]
//	operators = ["@admin:example.org"]
//	policy_path = "/var/lib/channel-relay/policy.json"
//	directory_path = "/var/lib/channel-relay/directory.db"
//	recovery_delay = "15s"
//
// Logging:
//
//	[logging]
//	level = "info"   # debug, info, warn, error
package config
