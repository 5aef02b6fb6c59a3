package speech

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func fakeFFmpeg(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stub requires a unix shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestTranscoderPassesArguments(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	bin := fakeFFmpeg(t, `echo "$@" > `+argsFile)

	tc := NewTranscoder(bin)
	if !tc.Available() {
		t.Fatalf("Available() = false, want true")
	}
	if err := tc.ToOpusOGG(context.Background(), "in.wav", "out.ogg"); err != nil {
		t.Fatalf("ToOpusOGG() error = %v", err)
	}
	raw, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	args := strings.TrimSpace(string(raw))
	for _, want := range []string{"-y", "-i in.wav", "libopus", "out.ogg"} {
		if !strings.Contains(args, want) {
			t.Fatalf("args = %q, missing %q", args, want)
		}
	}
}

func TestTranscoderReportsStderr(t *testing.T) {
	bin := fakeFFmpeg(t, `echo "in.ogg: Invalid data found" >&2; exit 1`)
	err := NewTranscoder(bin).ToMP3(context.Background(), "in.ogg", "out.mp3")
	if err == nil {
		t.Fatalf("ToMP3() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "Invalid data found") || !strings.Contains(err.Error(), "exited with 1") {
		t.Fatalf("ToMP3() error = %q", err)
	}
}

func TestTranscoderMissingBinary(t *testing.T) {
	tc := NewTranscoder(filepath.Join(t.TempDir(), "nope"))
	if tc.Available() {
		t.Fatalf("Available() = true, want false")
	}
	if err := tc.ToMP3(context.Background(), "a", "b"); err == nil {
		t.Fatalf("ToMP3() error = nil, want error")
	}
}
