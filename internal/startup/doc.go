// Package startup handles process bring-up: configuration loading from
// environment variables and an optional TOML file, the startup banner and
// system information log, HTTP route logging, and shutdown log helpers.
package startup
