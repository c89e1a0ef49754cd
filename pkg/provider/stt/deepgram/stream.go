package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/coder/websocket"

	"github.com/MrWong99/glyphcast/pkg/provider/stt"
	"github.com/MrWong99/glyphcast/pkg/types"
)

// Control frames understood by the listen endpoint.
var (
	frameKeepAlive   = []byte(`{"type":"KeepAlive"}`)
	frameCloseStream = []byte(`{"type":"CloseStream"}`)
)

var errClosed = errors.New("deepgram: stream is closed")

// stream is one live listen connection.
type stream struct {
	conn      *websocket.Conn
	keepAlive time.Duration

	partials chan types.Transcript
	finals   chan types.Transcript
	audio    chan []byte

	done      chan struct{}
	closeOnce sync.Once
	loops     sync.WaitGroup
}

var _ stt.SessionHandle = (*stream)(nil)

func openStream(ctx context.Context, conn *websocket.Conn, keepAlive time.Duration) *stream {
	s := &stream{
		conn:      conn,
		keepAlive: keepAlive,
		partials:  make(chan types.Transcript, 64),
		finals:    make(chan types.Transcript, 64),
		audio:     make(chan []byte, 256),
		done:      make(chan struct{}),
	}
	s.loops.Add(2)
	go s.receive(ctx)
	go s.transmit(ctx)
	return s
}

// SendAudio queues chunk. The stream keeps the slice, so callers must not
// reuse it.
func (s *stream) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errClosed
	}
}

func (s *stream) Partials() <-chan types.Transcript { return s.partials }

func (s *stream) Finals() <-chan types.Transcript { return s.finals }

// SetKeywords always fails: vocabulary hints are fixed when the stream
// opens, so a library reload needs a new stream.
func (s *stream) SetKeywords([]types.KeywordBoost) error {
	return fmt.Errorf("deepgram: mid-stream keyword update: %w", stt.ErrNotSupported)
}

// Close flushes queued audio, asks Deepgram to finish and waits for both
// loops. Both transcript channels are closed afterwards.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.loops.Wait()
	})
	return nil
}

// transmit forwards audio and sends KeepAlive frames once the player has
// been silent for a full keep-alive period.
func (s *stream) transmit(ctx context.Context) {
	defer s.loops.Done()

	var idle <-chan time.Time
	if s.keepAlive > 0 {
		t := time.NewTicker(s.keepAlive)
		defer t.Stop()
		idle = t.C
	}
	spoke := false

	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				slog.Debug("deepgram: write audio failed", "err", err)
				s.conn.CloseNow()
				return
			}
			spoke = true
		case <-idle:
			if !spoke {
				if err := s.conn.Write(ctx, websocket.MessageText, frameKeepAlive); err != nil {
					slog.Debug("deepgram: keep-alive failed", "err", err)
					s.conn.CloseNow()
					return
				}
			}
			spoke = false
		case <-s.done:
			s.flush(ctx)
			return
		case <-ctx.Done():
			s.conn.CloseNow()
			return
		}
	}
}

// flush sends whatever audio is still queued, then CloseStream, then closes
// the socket. receive drains the last results until the socket goes away.
func (s *stream) flush(ctx context.Context) {
	for len(s.audio) > 0 {
		_ = s.conn.Write(ctx, websocket.MessageBinary, <-s.audio)
	}
	_ = s.conn.Write(ctx, websocket.MessageText, frameCloseStream)
	_ = s.conn.Close(websocket.StatusNormalClosure, "stream closed")
}

// receive decodes result messages until the socket closes.
func (s *stream) receive(ctx context.Context) {
	defer s.loops.Done()
	defer close(s.finals)
	defer close(s.partials)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		tr, ok := decodeResult(msg)
		if !ok {
			continue
		}
		out := s.partials
		if tr.IsFinal {
			out = s.finals
		}
		select {
		case out <- tr:
		case <-s.done:
			// Nobody reads once Close started; keep draining the socket so
			// the close handshake completes.
		}
	}
}

// ---- results ----

type resultWord struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

type resultAlternative struct {
	Transcript string       `json:"transcript"`
	Confidence float64      `json:"confidence"`
	Words      []resultWord `json:"words"`
}

// resultMessage is the subset of a listen message glyphcast reads.
type resultMessage struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []resultAlternative `json:"alternatives"`
	} `json:"channel"`
}

// decodeResult turns a Results message into a transcript. Other message
// types, malformed JSON and hypotheses without text are skipped: Deepgram
// emits empty results for silence and those carry nothing to match.
func decodeResult(data []byte) (types.Transcript, bool) {
	var m resultMessage
	if err := json.Unmarshal(data, &m); err != nil || m.Type != "Results" {
		return types.Transcript{}, false
	}
	if len(m.Channel.Alternatives) == 0 {
		return types.Transcript{}, false
	}
	alt := m.Channel.Alternatives[0]
	text := joinHan(alt.Transcript)
	if text == "" {
		return types.Transcript{}, false
	}

	tr := types.Transcript{
		Text:       text,
		IsFinal:    m.IsFinal,
		Confidence: alt.Confidence,
		Timestamp:  seconds(m.Start),
		Duration:   seconds(m.Duration),
	}
	if len(alt.Words) > 0 {
		tr.Words = make([]types.WordDetail, len(alt.Words))
		for i, w := range alt.Words {
			tr.Words[i] = types.WordDetail{
				Word:       w.Word,
				Start:      seconds(w.Start),
				End:        seconds(w.End),
				Confidence: w.Confidence,
			}
		}
	}
	return tr, true
}

// joinHan trims text and drops the spaces Chinese models put between Han
// characters, so "比 那 黑" reads as "比那黑". Spaces next to other scripts
// are kept.
func joinHan(text string) string {
	text = strings.TrimSpace(text)
	if !strings.ContainsFunc(text, unicode.IsSpace) {
		return text
	}
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(runes); {
		if !unicode.IsSpace(runes[i]) {
			b.WriteRune(runes[i])
			i++
			continue
		}
		j := i
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		// Trimmed, so a run always has neighbours on both sides.
		if !unicode.Is(unicode.Han, runes[i-1]) || !unicode.Is(unicode.Han, runes[j]) {
			b.WriteString(string(runes[i:j]))
		}
		i = j
	}
	return b.String()
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
