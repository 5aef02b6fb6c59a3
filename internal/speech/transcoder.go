package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Transcoder shells out to ffmpeg.
type Transcoder struct {
	path string
}

func NewTranscoder(ffmpegPath string) *Transcoder {
	ffmpegPath = strings.TrimSpace(ffmpegPath)
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Transcoder{path: ffmpegPath}
}

// Available reports whether the ffmpeg binary can be found.
func (t *Transcoder) Available() bool {
	_, err := exec.LookPath(t.path)
	return err == nil
}

// ToMP3 converts a Telegram voice note to 16 kHz mono MP3 for recognition.
func (t *Transcoder) ToMP3(ctx context.Context, in, out string) error {
	return t.run(ctx, "-i", in, "-vn", "-ac", "1", "-ar", "16000", "-codec:a", "libmp3lame", "-b:a", "64k", out)
}

// ToOpusOGG converts synthesized WAV to an OGG/Opus file Telegram plays as a
// voice note.
func (t *Transcoder) ToOpusOGG(ctx context.Context, in, out string) error {
	return t.run(ctx, "-i", in, "-vn", "-ac", "1", "-ar", "48000", "-codec:a", "libopus", "-b:a", "32k", "-f", "ogg", out)
}

func (t *Transcoder) run(ctx context.Context, args ...string) error {
	args = append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)
	cmd := exec.CommandContext(ctx, t.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 2<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(2<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("ffmpeg exited with %d: %s", exitErr.ExitCode(), detail)
		}
		return fmt.Errorf("ffmpeg: %s", detail)
	}
	return nil
}
