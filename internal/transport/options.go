package transport

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/sadopc/gqlws/internal/config"
)

// Options configures a Transport (spec.md §6.5's "Configuration"). Zero
// values are replaced by the defaults in NewTransport except where
// noted.
type Options struct {
	// SubProtocol selects graphql-ws or graphql-transport-ws. Required:
	// NewTransport returns ErrUnsupportedSubProtocol for
	// SubProtocolUnknown (SPEC_FULL.md §11.2).
	SubProtocol SubProtocol

	ClientName    string
	ClientVersion string

	// Reconnect enables automatic reconnection after a disconnect.
	// spec.md §6.5 lists no default for this option, so the Go zero
	// value (false) is the correct default and this field is not
	// merged with the loaded Config.
	Reconnect bool
	// ReconnectionInterval is the initial/minimum delay before a
	// reconnect attempt (default 500ms, from the loaded Config). See
	// SPEC_FULL.md §4.4: this is the backoff policy's starting
	// interval, not a fixed period.
	ReconnectionInterval time.Duration
	// AllowSendingDuplicates controls the reconnect-replay strategy of
	// spec.md §4.4. Defaults to true (from the loaded Config). A plain
	// bool cannot distinguish "not set" from an explicit false, so this
	// is a *bool: nil picks up the default, a non-nil pointer always
	// wins regardless of what it points to. Use BoolPtr to build one.
	AllowSendingDuplicates *bool
	// ConnectOnInit connects immediately when NewTransport returns.
	// Defaults to true (from the loaded Config); same nil-means-unset
	// rule as AllowSendingDuplicates.
	ConnectOnInit *bool
	// ConnectingPayload is sent as the connection_init payload.
	ConnectingPayload json.RawMessage

	RequestBody RequestBody
	IDCreator   IDCreator
	Socket      Socket
	Delegate    Delegate
	// Logger is optional; nil selects logging.New(nil) (stderr console
	// writer). Pass a pointer to logging.Discard() to silence it.
	Logger *zerolog.Logger
}

// BoolPtr returns a pointer to b, for populating Options.ConnectOnInit
// and Options.AllowSendingDuplicates.
func BoolPtr(b bool) *bool { return &b }

// setDefaults fills in zero-valued fields from cfg, the configuration
// loaded from ~/.config/gqlws/config.yaml merged over
// config.DefaultConfig() (SPEC_FULL.md §9). Explicit Options fields
// always win over cfg: a field is only replaced when it is at its Go
// zero value (nil for the two tri-state bools, "" for the strings, 0
// for the duration).
func (o *Options) setDefaults(cfg config.Config) {
	if o.ClientName == "" {
		o.ClientName = cfg.ClientName
	}
	if o.ClientVersion == "" {
		o.ClientVersion = cfg.ClientVersion
	}
	if o.ReconnectionInterval == 0 {
		o.ReconnectionInterval = cfg.ReconnectionInterval
	}
	if o.AllowSendingDuplicates == nil {
		o.AllowSendingDuplicates = BoolPtr(cfg.AllowSendingDuplicates)
	}
	if o.ConnectOnInit == nil {
		o.ConnectOnInit = BoolPtr(cfg.ConnectOnInit)
	}
	if o.RequestBody == nil {
		o.RequestBody = DefaultRequestBody
	}
}

// identificationHeaders returns the two client-identification headers
// written onto the socket request, per spec.md §4.5 "Header
// augmentation".
func identificationHeaders(clientName, clientVersion string) map[string]string {
	return map[string]string{
		"apollographql-client-name":    clientName,
		"apollographql-client-version": clientVersion,
	}
}
