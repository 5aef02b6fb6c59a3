package speech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ent0n29/speakbot/internal/audio"
)

const azureOutputFormat = "riff-24khz-16bit-mono-pcm"

// AzureSynthesizer calls the Cognitive Services text-to-speech REST endpoint.
type AzureSynthesizer struct {
	key      string
	endpoint string
	client   *http.Client
}

func NewAzureSynthesizer(key, region string, timeout time.Duration) *AzureSynthesizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AzureSynthesizer{
		key:      strings.TrimSpace(key),
		endpoint: fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", strings.TrimSpace(region)),
		client:   &http.Client{Timeout: timeout},
	}
}

func (s *AzureSynthesizer) Name() string { return "azure" }

func (s *AzureSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) error {
	text := SanitizeText(req.Text)
	if text == "" {
		return errEmptyText
	}
	body, err := buildSSML(text, req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", s.key)
	httpReq.Header.Set("Content-Type", "application/ssml+xml")
	httpReq.Header.Set("X-Microsoft-OutputFormat", azureOutputFormat)
	httpReq.Header.Set("User-Agent", "speakbot")

	res, err := s.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return &StatusError{Provider: "azure", Code: res.StatusCode, Detail: strings.TrimSpace(string(detail))}
	}

	reader := bufio.NewReader(res.Body)
	header, _ := reader.Peek(audio.HeaderSize)
	if _, err := audio.ReadFormat(bytes.NewReader(header)); err != nil {
		return fmt.Errorf("azure returned %s: %w", res.Header.Get("Content-Type"), err)
	}
	return writeFile(req.OutputPath, reader)
}

func buildSSML(text string, req SynthesisRequest) ([]byte, error) {
	locale := req.Profile.SynthesisLocale
	if locale == "" {
		locale = "en-US"
	}
	rate := strings.TrimSpace(req.Rate)
	if rate == "" {
		rate = "0.00%"
	}

	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(text)); err != nil {
		return nil, fmt.Errorf("escape ssml text: %w", err)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s">`, locale)
	fmt.Fprintf(&buf, `<voice name="%s"><prosody rate="%s">`, req.Profile.SynthesisVoice, rate)
	buf.Write(escaped.Bytes())
	buf.WriteString(`</prosody></voice></speak>`)
	return buf.Bytes(), nil
}

// StatusError is a non-2xx reply from a speech provider.
type StatusError struct {
	Provider string
	Code     int
	Detail   string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s tts status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s tts status %d: %s", e.Provider, e.Code, e.Detail)
}

func (e *StatusError) HTTPStatus() int { return e.Code }

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	return f.Close()
}
