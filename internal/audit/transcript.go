package audit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/antonkrylov/simrelay/internal/relay"
)

// Transcript appends one JSON object per event to a zstd stream. Each
// event is flushed so a killed process leaves a readable prefix.
type Transcript struct {
	mu     sync.Mutex
	enc    *zstd.Encoder
	closer io.Closer
	logger *slog.Logger
	closed bool
}

// OpenTranscript creates (or truncates) a transcript file.
func OpenTranscript(path string, logger *slog.Logger) (*Transcript, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	t, err := NewTranscript(f, logger)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	t.closer = f
	return t, nil
}

// NewTranscript writes to w. Closing the transcript does not close w.
func NewTranscript(w io.Writer, logger *slog.Logger) (*Transcript, error) {
	if logger == nil {
		logger = slog.Default()
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &Transcript{enc: enc, logger: logger}, nil
}

func (t *Transcript) Observe(_ context.Context, ev relay.Event) {
	if err := t.Write(ev); err != nil {
		t.logger.Warn("transcript write failed", "err", err)
	}
}

func (t *Transcript) Write(ev relay.Event) error {
	msg, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	line, err := protojson.Marshal(msg)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("transcript closed")
	}
	if _, err := t.enc.Write(append(line, '\n')); err != nil {
		return err
	}
	return t.enc.Flush()
}

func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.enc.Close()
	if t.closer != nil {
		err = errors.Join(err, t.closer.Close())
	}
	return err
}

// ReadTranscript decodes every event in a transcript stream.
func ReadTranscript(r io.Reader) ([]relay.Event, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	var events []relay.Event
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 4*relay.DefaultMaxLineBytes)
	for sc.Scan() {
		var msg structpb.Struct
		if err := protojson.Unmarshal(sc.Bytes(), &msg); err != nil {
			return events, fmt.Errorf("transcript record %d: %w", len(events)+1, err)
		}
		ev, err := DecodeEvent(&msg)
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, sc.Err()
}
