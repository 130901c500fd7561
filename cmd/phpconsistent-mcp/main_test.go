package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMessagePathFor(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/mcp/sse", "/mcp/message"},
		{"/events", "/events/message"},
		{"/events/", "/events/message"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, messagePathFor(tt.in), tt.in)
	}
}

func TestServeUnknownMode(t *testing.T) {
	err := serve(nil, "carrier-pigeon", "", "", zap.NewNop())
	assert.EqualError(t, err, "unknown mode: carrier-pigeon")
}

func TestCommandFlags(t *testing.T) {
	cmd := newCommand()
	for _, name := range []string{"mode", "addr", "path", "config"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "stdio", cmd.Flags().Lookup("mode").DefValue)
}
