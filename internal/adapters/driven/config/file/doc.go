// Package file provides the TOML-backed ConfigStore.
//
// The config file lives at <base>/config.toml and supplies defaults
// for settings the fetch command would otherwise need flags for:
//
//	[auth]
//	tokens = ["ghp_aaa", "ghp_bbb"]
//
//	[archive]
//	path = "/var/lib/chronicler/archives"
//
//	[client]
//	max_retries = 5
//	sleep_time = "45s"
//	sleep_for_rate = true
//	min_rate_to_sleep = 25
//
// Nested tables flatten into dot-notation keys ("client.sleep_time"),
// which is how the rest of the application addresses them.
package file
