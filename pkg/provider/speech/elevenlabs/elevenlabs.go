// Package elevenlabs provides an ElevenLabs-backed speech provider using the
// ElevenLabs streaming WebSocket API. Each dialogue line opens one
// stream-input connection, sends the full text, and drains the audio until
// the stream finishes, yielding a complete clip with a duration estimate.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/panelvox/panelvox/pkg/provider/speech"
	"github.com/panelvox/panelvox/pkg/types"
)

const (
	wsEndpointFmt    = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s"
	voicesEndpoint   = "https://api.elevenlabs.io/v1/voices"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "mp3_44100_128"
)

// Compile-time interface check.
var _ speech.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g. "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g. "mp3_44100_128",
// "pcm_16000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithVoicesEndpoint overrides the voices listing URL. Used by tests.
func WithVoicesEndpoint(url string) Option {
	return func(p *Provider) {
		p.voicesURL = url
	}
}

// Provider implements speech.Provider backed by the ElevenLabs streaming API.
// Safe for concurrent use; each Synthesize call owns its own connection.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	voicesURL    string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		voicesURL:    voicesEndpoint,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded audio chunk
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// Synthesize implements speech.Provider. It opens a stream-input WebSocket,
// sends the line followed by the end-of-input flush, and collects audio
// chunks until the stream reports completion.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) (*types.Clip, error) {
	if voice == "" {
		return nil, errors.New("elevenlabs: voice must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}

	wsURL := fmt.Sprintf(wsEndpointFmt, voice, p.model, p.outputFormat)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// BOI handshake: a non-empty first text value with credentials.
	boi := textMessage{
		Text: " ",
		VoiceSettings: &voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
		XiAPIKey: p.apiKey,
	}
	if err := writeJSON(ctx, conn, boi); err != nil {
		return nil, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}
	if err := writeJSON(ctx, conn, textMessage{Text: text + " "}); err != nil {
		return nil, fmt.Errorf("elevenlabs: send text: %w", err)
	}
	// Empty text signals end of input and flushes the stream.
	if err := writeJSON(ctx, conn, textMessage{Text: ""}); err != nil {
		return nil, fmt.Errorf("elevenlabs: send flush: %w", err)
	}

	var buf bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			// The server closes the socket once the final chunk is sent;
			// a normal closure with audio in hand is success.
			if buf.Len() > 0 && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			if buf.Len() > 0 && ctx.Err() == nil {
				break
			}
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err == nil {
				buf.Write(chunk)
			}
		}
		if resp.IsFinal {
			break
		}
	}

	if buf.Len() == 0 {
		return nil, errors.New("elevenlabs: no audio received")
	}
	return &types.Clip{
		Audio:    buf.Bytes(),
		Duration: EstimateDuration(p.outputFormat, buf.Len()),
		Format:   p.outputFormat,
	}, nil
}

// EstimateDuration derives playback length from the byte count of a clip in
// the given ElevenLabs output format. MP3 formats encode their bitrate in
// the format name ("mp3_44100_128" is 128 kbps); PCM formats are 16-bit
// mono at the named sample rate.
func EstimateDuration(format string, n int) time.Duration {
	parts := strings.Split(format, "_")
	switch {
	case strings.HasPrefix(format, "mp3") && len(parts) == 3:
		kbps, err := strconv.Atoi(parts[2])
		if err != nil || kbps <= 0 {
			kbps = 128
		}
		bytesPerSec := float64(kbps*1000) / 8
		return time.Duration(float64(n) / bytesPerSec * float64(time.Second))
	case strings.HasPrefix(format, "pcm") && len(parts) == 2:
		rate, err := strconv.Atoi(parts[1])
		if err != nil || rate <= 0 {
			rate = 16000
		}
		return time.Duration(float64(n) / float64(rate*2) * float64(time.Second))
	default:
		// Unknown format: assume 128 kbps.
		return time.Duration(float64(n) / 16000 * float64(time.Second))
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// ---- Voices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// Voices implements speech.Provider.
func (p *Provider) Voices(ctx context.Context) ([]types.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.voicesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return vr.toVoices(), nil
}

func (vr voicesResponse) toVoices() []types.Voice {
	voices := make([]types.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		voices = append(voices, types.Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return voices
}
