package sshexec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected ErrorCategory
	}{
		{"connection timed out", "ssh: connect to host 198.51.100.10 port 22: Connection timed out", ErrorTransient},
		{"go dial timeout", "dial tcp 198.51.100.10:22: i/o timeout", ErrorTransient},
		{"connection refused", "dial tcp 198.51.100.10:22: connect: connection refused", ErrorTransient},
		{"connection reset", "read tcp: connection reset by peer", ErrorTransient},
		{"no route to host", "connect: no route to host", ErrorTransient},
		{"network unreachable", "connect: network is unreachable", ErrorTransient},
		{"broken pipe", "write tcp: broken pipe", ErrorTransient},
		{"kex identification", "kex_exchange_identification: Connection closed by remote host", ErrorTransient},
		{"handshake failed", "ssh: handshake failed: EOF after banner", ErrorTransient},
		{"temporarily unavailable", "resource temporarily unavailable", ErrorTransient},

		{"permission denied", "bash: /var/log/app.log: Permission denied", ErrorTerminal},
		{"command not found", "bash: pm2: command not found", ErrorTerminal},
		{"syntax error", "sh: syntax error near unexpected token", ErrorTerminal},
		{"missing file", "cat: /etc/app.conf: No such file or directory", ErrorTerminal},
		{"plain failure", "exit status 1", ErrorTerminal},
		{"empty", "", ErrorTerminal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyError(tt.text))
		})
	}
}

func TestClassifyErrorTerminalWins(t *testing.T) {
	// Terminal signatures short-circuit even when transient noise is present.
	text := "bash: pm2: command not found\nwrite tcp: broken pipe"
	assert.Equal(t, ErrorTerminal, ClassifyError(text))
}

func TestClassifyErrorCaseInsensitive(t *testing.T) {
	assert.Equal(t, ErrorTransient, ClassifyError("CONNECTION REFUSED"))
	assert.Equal(t, ErrorTerminal, ClassifyError("PERMISSION DENIED"))
}
