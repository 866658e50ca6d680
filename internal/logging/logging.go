// Package logging sets up the structured logger used for transport
// diagnostics. Nothing here gates correctness -- it is purely
// observational.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New returns a console-writer logger in the style used elsewhere in the
// example corpus for long-running network services. Pass io.Discard as
// w to silence it entirely.
func New(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(console).With().Timestamp().Str("component", "gqlws").Logger()
}

// Discard returns a logger that drops every event, for callers who do
// not want transport diagnostics.
func Discard() zerolog.Logger {
	return zerolog.New(io.Discard)
}
