package clidrive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Transcript is the append-only log of a session: input sent, buffer state
// at each match or failure, and an outcome marker per wait.
type Transcript []string

// Outcome markers written at the end of each wait.
const (
	markSuccess       = "SUCCESS"
	markPrematureExit = "PREMATURE EXIT"
	markTimeout       = "TIMEOUT"
)

func outcomeLine(mark string, at time.Time) string {
	return fmt.Sprintf("------ %s %d", mark, at.UnixMilli())
}

// String returns the transcript one entry per line.
func (t Transcript) String() string {
	return strings.Join(t, "\n")
}

// WriteFile writes the transcript to path, creating parent directories.
// The header, if any, is written first, followed by a blank line.
func (t Transcript) WriteFile(path, header string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("clidrive: transcript: failed to create directory: %w", err)
	}

	var b strings.Builder
	if header != "" {
		b.WriteString(strings.TrimRight(header, "\n"))
		b.WriteString("\n\n")
	}
	for _, line := range t {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("clidrive: transcript: failed to write %s: %w", path, err)
	}
	return nil
}

// transcriptPath returns where a test's transcript is written under dir.
// Uses <dir>/<sanitized-test-name>-<hash>.log where hash ensures uniqueness.
func transcriptPath(dir, testName string) string {
	h := sha256.Sum256([]byte(testName))
	hash := hex.EncodeToString(h[:4])
	return filepath.Join(dir, sanitizeName(testName)+"-"+hash+".log")
}

// sanitizeName replaces characters that are not filesystem-safe.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}
