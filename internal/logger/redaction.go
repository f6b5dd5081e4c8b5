package logger

import (
	"io"

	"github.com/harun/mnemo/pkg/scrub"
)

// Redactor redacts sensitive information from logs. It shares its
// pattern set with the content scanner so anything the engine refuses to
// store also never reaches a log line.
type Redactor struct {
	scanner *scrub.Scanner
}

// NewRedactor creates a new redactor with the default patterns
func NewRedactor() *Redactor {
	return &Redactor{scanner: scrub.NewScanner()}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	return r.scanner.AddPattern(pattern)
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	return r.scanner.Redact(s)
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return r.scanner.Wrap(w)
}
