package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewWritesToGivenWriter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf)
	log.Info().Str("component", "test").Msg("hello")

	if buf.Len() == 0 {
		t.Fatal("expected the logger to write output")
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("output = %q, want it to contain hello", buf.String())
	}
}

func TestNewDefaultsToStderrWithNilWriter(t *testing.T) {
	// Must not panic when w is nil.
	log := New(nil)
	log.Debug().Msg("noop")
}

func TestDiscardProducesNoOutput(t *testing.T) {
	log := Discard()
	log.Error().Msg("should not appear anywhere observable")
}
