// Package config loads ambient defaults for a gqlws Transport from disk,
// to be merged under whatever options the caller passes to NewTransport.
package config

import "time"

// Config holds the on-disk defaults for transport construction. Every
// field mirrors a Configuration option from the transport package; an
// explicit option passed to NewTransport always overrides these.
// NewTransport does not read Reconnect: the transport's Reconnect option
// is a plain bool that is never merged with the loaded Config.
type Config struct {
	ClientName             string        `yaml:"client_name"`
	ClientVersion          string        `yaml:"client_version"`
	Reconnect              bool          `yaml:"reconnect"`
	ReconnectionInterval   time.Duration `yaml:"reconnection_interval"`
	AllowSendingDuplicates bool          `yaml:"allow_sending_duplicates"`
	ConnectOnInit          bool          `yaml:"connect_on_init"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ClientName:             "gqlws",
		ClientVersion:          "dev",
		Reconnect:              true,
		ReconnectionInterval:   500 * time.Millisecond,
		AllowSendingDuplicates: true,
		ConnectOnInit:          true,
	}
}
