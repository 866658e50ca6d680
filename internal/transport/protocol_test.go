package transport

import "testing"

func TestSubProtocolWireName(t *testing.T) {
	tests := []struct {
		sp   SubProtocol
		want string
	}{
		{SubProtocolGraphQLWS, "graphql-ws"},
		{SubProtocolGraphQLTransportWS, "graphql-transport-ws"},
		{SubProtocolUnknown, ""},
	}
	for _, tt := range tests {
		if got := tt.sp.WireName(); got != tt.want {
			t.Errorf("%v.WireName() = %q, want %q", tt.sp, got, tt.want)
		}
	}
}

func TestParseSubProtocol(t *testing.T) {
	tests := []struct {
		name string
		want SubProtocol
	}{
		{"graphql-ws", SubProtocolGraphQLWS},
		{"graphql-transport-ws", SubProtocolGraphQLTransportWS},
		{"something-else", SubProtocolUnknown},
		{"", SubProtocolUnknown},
	}
	for _, tt := range tests {
		if got := ParseSubProtocol(tt.name); got != tt.want {
			t.Errorf("ParseSubProtocol(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestStartStopKindsBySubProtocol(t *testing.T) {
	if SubProtocolGraphQLWS.startKind() != kindStart {
		t.Error("graphql-ws startKind should be start")
	}
	if SubProtocolGraphQLWS.stopKind() != kindStop {
		t.Error("graphql-ws stopKind should be stop")
	}
	if SubProtocolGraphQLTransportWS.startKind() != kindSubscribe {
		t.Error("graphql-transport-ws startKind should be subscribe")
	}
	if SubProtocolGraphQLTransportWS.stopKind() != kindComplete {
		t.Error("graphql-transport-ws stopKind should be complete")
	}
}

func TestRecognizedInbound(t *testing.T) {
	recognized := []messageKind{
		kindData, kindNext, kindError, kindComplete,
		kindConnectionAck, kindConnectionKeepAlive, kindStartAck,
		kindPing, kindPong,
	}
	for _, k := range recognized {
		if !recognizedInbound(k) {
			t.Errorf("recognizedInbound(%v) = false, want true", k)
		}
	}
	if recognizedInbound(messageKind("bogus")) {
		t.Error("recognizedInbound(bogus) = true, want false")
	}
}

func TestIsOutboundEcho(t *testing.T) {
	outbound := []messageKind{kindConnectionInit, kindConnectionTerminate, kindSubscribe, kindStart, kindStop}
	for _, k := range outbound {
		if !isOutboundEcho(k) {
			t.Errorf("isOutboundEcho(%v) = false, want true", k)
		}
	}
	inbound := []messageKind{kindData, kindNext, kindError, kindConnectionAck}
	for _, k := range inbound {
		if isOutboundEcho(k) {
			t.Errorf("isOutboundEcho(%v) = true, want false", k)
		}
	}
}
