package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/secure-banking-ledger/internal/crypto"
	"github.com/secure-banking-ledger/internal/domain/auditevent"
)

const lineTimeLayout = "2006-01-02 15:04:05"

// FileSink appends one line per event to a text file
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// OpenFileSink opens path for appending, creating it and its directory if
// needed.
func OpenFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &FileSink{file: file}, nil
}

func (f *FileSink) Name() string {
	return "file"
}

// Write issues a single write per line so concurrent writers never interleave.
func (f *FileSink) Write(_ context.Context, event *auditevent.Event) error {
	line := FormatLine(event)

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write audit line: %w", err)
	}
	return nil
}

func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}

// FormatLine renders an event as
//
//	[2006-01-02 15:04:05] SUCCESS - Ana S**** - LOGIN_SUCCESS - acct=****-**78
//
// Timestamps are UTC. The account number is masked here; the acct part is
// omitted when the account is unknown.
func FormatLine(event *auditevent.Event) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(event.OccurredAt.UTC().Format(lineTimeLayout))
	b.WriteString("] ")
	b.WriteString(event.Outcome())
	b.WriteString(" - ")
	b.WriteString(oneLine(event.Subject))
	b.WriteString(" - ")
	b.WriteString(string(event.Action))
	if event.AccountNumber != nil && *event.AccountNumber != "" {
		b.WriteString(" - acct=")
		b.WriteString(oneLine(crypto.Mask(*event.AccountNumber, crypto.MaskAccount)))
	}
	b.WriteString("\n")
	return b.String()
}

func oneLine(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}
