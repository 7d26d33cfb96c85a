package sshexec

import "strings"

// ErrorCategory is the closed classification of a remote execution failure.
// Transient failures may succeed on retry; terminal failures never will.
type ErrorCategory int

const (
	ErrorTerminal ErrorCategory = iota
	ErrorTransient
)

// transientPatterns is the fixed vocabulary of connection failure signatures
// that justify a retry. Matching is substring, case-insensitive.
var transientPatterns = []string{
	"connection timed out",
	"i/o timeout",
	"timed out",
	"operation timed out",
	"connection refused",
	"connection reset",
	"connection closed by remote host",
	"no route to host",
	"network is unreachable",
	"host is unreachable",
	"broken pipe",
	"kex_exchange_identification",
	"remote host identification",
	"handshake failed",
	"temporarily unavailable",
	"temporary failure",
}

// terminalPatterns short-circuit classification: these signatures indicate a
// problem a retry cannot fix, even when a transient pattern also matches
// (e.g. "sudo: command not found ... connection reset" noise).
var terminalPatterns = []string{
	"permission denied",
	"command not found",
	"syntax error",
	"no such file or directory",
}

// ClassifyError maps raw error text from a failed remote execution to an
// ErrorCategory. It is a pure function so the match table is testable
// independent of any I/O.
func ClassifyError(text string) ErrorCategory {
	lower := strings.ToLower(text)

	for _, p := range terminalPatterns {
		if strings.Contains(lower, p) {
			return ErrorTerminal
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(lower, p) {
			return ErrorTransient
		}
	}
	return ErrorTerminal
}
