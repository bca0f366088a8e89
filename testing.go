package clidrive

import (
	"errors"
	"os"
	"testing"
)

// transcriptDirEnv names a directory where RunT saves every transcript.
const transcriptDirEnv = "CLIDRIVE_TRANSCRIPTS"

// RunT runs a session inside a test and calls t.Fatal with the full failure
// report if any step fails. The session is returned for further inspection.
//
// Set CLIDRIVE_TRANSCRIPTS to a directory to save the transcript of every
// RunT session there, whether it passed or failed.
func RunT(t testing.TB, cmdLine string, steps []Step, opts ...Option) *Session {
	t.Helper()

	s := New(cmdLine, steps, opts...)
	err := s.Run(t.Context())

	if dir := os.Getenv(transcriptDirEnv); dir != "" {
		path := transcriptPath(dir, t.Name())
		if werr := s.Transcript().WriteFile(path, s.Header()); werr != nil {
			t.Logf("%v", werr)
		} else {
			t.Logf("clidrive: transcript written to %s", path)
		}
	}

	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			t.Fatalf("%s", e.Report())
		} else {
			t.Fatalf("%v", err)
		}
	}
	return s
}
