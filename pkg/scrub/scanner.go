// Package scrub detects and redacts sensitive information in memory content
// before it is persisted or passed to an LLM.
package scrub

import (
	"io"
	"regexp"
)

// ScanResult reports whether text contained sensitive content and, if so,
// what it looks like with every match replaced.
type ScanResult struct {
	HasSensitive bool   `json:"has_sensitive"`
	RedactedText string `json:"redacted_text"`
}

// Scanner matches sensitive content against a set of patterns
type Scanner struct {
	patterns []*regexp.Regexp
}

// NewScanner creates a scanner with default patterns
func NewScanner() *Scanner {
	return &Scanner{
		patterns: []*regexp.Regexp{
			// API keys
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),

			// Bearer tokens
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

			// Passwords
			regexp.MustCompile(`password["\s:=]+[^\s"]+`),
			regexp.MustCompile(`pwd["\s:=]+[^\s"]+`),

			// Auth tokens
			regexp.MustCompile(`token["\s:=]+[a-zA-Z0-9._-]{20,}`),

			// AWS keys
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),

			// Private key blocks
			regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),

			// Generic secrets
			regexp.MustCompile(`secret["\s:=]+[^\s"]+`),
		},
	}
}

// AddPattern adds a custom pattern
func (s *Scanner) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.patterns = append(s.patterns, re)
	return nil
}

// Scan checks text for sensitive content and returns the redacted form
func (s *Scanner) Scan(text string) ScanResult {
	redacted := s.Redact(text)
	return ScanResult{
		HasSensitive: redacted != text,
		RedactedText: redacted,
	}
}

// Redact replaces every sensitive match with a placeholder
func (s *Scanner) Redact(text string) string {
	result := text
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// Wrap wraps an io.Writer so everything written through it is redacted
func (s *Scanner) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, scanner: s}
}

type redactingWriter struct {
	writer  io.Writer
	scanner *Scanner
}

func (w *redactingWriter) Write(p []byte) (n int, err error) {
	redacted := w.scanner.Redact(string(p))
	return w.writer.Write([]byte(redacted))
}
