// Package deepgram implements [stt.Provider] on Deepgram's streaming
// WebSocket API.
//
// Casting is bursty: a player shouts an incantation, then stays quiet for
// several turns. Streams therefore send KeepAlive frames while no audio
// flows, and library incantations travel as vocabulary hints when the
// stream opens (keyterm for nova-3, boosted keywords for older models).
package deepgram

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/glyphcast/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-2"
	defaultLanguage   = "zh-CN"
	defaultSampleRate = 16000
	defaultKeepAlive  = 5 * time.Second
)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the recognition model, e.g. "nova-2" or "nova-3".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default BCP-47 language. A stream's own language
// takes precedence.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithSampleRate sets the default input rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithEndpointing sets how long Deepgram waits after speech stops before
// finalising a hypothesis. Zero keeps the server default.
func WithEndpointing(d time.Duration) Option {
	return func(p *Provider) { p.endpointing = d }
}

// WithKeepAlive sets the idle period after which a KeepAlive frame is sent.
// Non-positive values disable keep-alives.
func WithKeepAlive(d time.Duration) Option {
	return func(p *Provider) { p.keepAlive = d }
}

// WithEndpoint points the provider at another listen URL, such as a
// self-hosted deployment.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// Provider opens Deepgram streams.
type Provider struct {
	apiKey      string
	endpoint    string
	model       string
	language    string
	sampleRate  int
	endpointing time.Duration
	keepAlive   time.Duration
}

var _ stt.Provider = (*Provider)(nil)

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   deepgramEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		keepAlive:  defaultKeepAlive,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream dials Deepgram and returns the live stream. ctx bounds the
// dial and the lifetime of the stream's goroutines.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	target, err := p.listenURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: listen url: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Token " + p.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}
	return openStream(ctx, conn, p.keepAlive), nil
}

// listenURL returns the endpoint with the query for one stream.
func (p *Provider) listenURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, vs := range p.query(cfg) {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// query holds the listen parameters for cfg, falling back to the
// provider defaults.
func (p *Provider) query(cfg stt.StreamConfig) url.Values {
	lang := cmp.Or(cfg.Language, p.language)
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = p.sampleRate
	}

	q := url.Values{
		"model":           {p.model},
		"language":        {lang},
		"encoding":        {"linear16"},
		"interim_results": {"true"},
		"sample_rate":     {strconv.Itoa(rate)},
	}
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if p.endpointing > 0 {
		q.Set("endpointing", strconv.FormatInt(p.endpointing.Milliseconds(), 10))
	}

	// nova-3 replaced boosted keywords with plain key terms.
	nova3 := strings.HasPrefix(p.model, "nova-3")
	seen := make(map[string]bool, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		if kw.Keyword == "" || seen[kw.Keyword] {
			continue
		}
		seen[kw.Keyword] = true
		if nova3 {
			q.Add("keyterm", kw.Keyword)
		} else {
			q.Add("keywords", kw.Keyword+":"+strconv.FormatFloat(kw.Boost, 'g', -1, 64))
		}
	}
	return q
}

