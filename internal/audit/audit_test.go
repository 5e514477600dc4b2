package audit

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/antonkrylov/simrelay/internal/audit/mocks"
	"github.com/antonkrylov/simrelay/internal/relay"
)

func sampleEvents() []relay.Event {
	at := time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC)
	return []relay.Event{
		{Channel: relay.ConsoleChannel, Line: "list", Result: relay.Success("sim-1\nsim-2"), Time: at},
		{Channel: "c0ffee", Remote: "127.0.0.1:5000", Line: "boot --udid X", Result: relay.Failure("simulator not found: X"), Time: at.Add(time.Second)},
	}
}

func sameEvent(a, b relay.Event) bool {
	return a.Channel == b.Channel && a.Remote == b.Remote && a.Line == b.Line &&
		a.Result == b.Result && a.Time.Equal(b.Time)
}

func TestEncodeDecodeEvent(t *testing.T) {
	for _, ev := range sampleEvents() {
		s, err := EncodeEvent(ev)
		if err != nil {
			t.Fatal(err)
		}
		got, err := DecodeEvent(s)
		if err != nil {
			t.Fatal(err)
		}
		if !sameEvent(got, ev) {
			t.Fatalf("got %+v want %+v", got, ev)
		}
	}
	bad, _ := structpb.NewStruct(map[string]any{"kind": "maybe"})
	if _, err := DecodeEvent(bad); err == nil {
		t.Fatalf("unknown kind accepted")
	}
}

func TestNATSSink_PublishesByKind(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	events := sampleEvents()

	decode := func(data []byte) relay.Event {
		var s structpb.Struct
		if err := proto.Unmarshal(data, &s); err != nil {
			t.Fatalf("payload: %v", err)
		}
		ev, err := DecodeEvent(&s)
		if err != nil {
			t.Fatal(err)
		}
		return ev
	}

	gomock.InOrder(
		pub.EXPECT().Publish("simrelay.events.success", gomock.Any()).DoAndReturn(func(_ string, data []byte) error {
			if ev := decode(data); !sameEvent(ev, events[0]) {
				t.Fatalf("published %+v", ev)
			}
			return nil
		}),
		pub.EXPECT().Publish("simrelay.events.failure", gomock.Any()).Return(errors.New("nats: connection closed")),
	)

	sink := NewNATSSink(pub, "simrelay.events.", nil)
	for _, ev := range events {
		sink.Observe(context.Background(), ev)
	}
	sink.Close()
}

func TestTranscript_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	tr, err := NewTranscript(&buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	events := sampleEvents()
	for _, ev := range events {
		tr.Observe(context.Background(), ev)
	}

	if buf.Len() == 0 {
		t.Fatalf("events were not flushed")
	}

	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Write(events[0]); err == nil {
		t.Fatalf("write after close succeeded")
	}
	got, err := ReadTranscript(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(events) {
		t.Fatalf("read %d events", len(got))
	}
	for i := range events {
		if !sameEvent(got[i], events[i]) {
			t.Fatalf("event %d: got %+v want %+v", i, got[i], events[i])
		}
	}
}

func TestOpenTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "session.jsonl.zst")
	tr, err := OpenTranscript(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	tr.Observe(context.Background(), sampleEvents()[1])
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := ReadTranscript(f)
	if err != nil || len(got) != 1 || got[0].Result.OK() {
		t.Fatalf("got %+v err=%v", got, err)
	}
}

func TestMulti(t *testing.T) {
	var seen []string
	rec := func(name string) relay.Observer {
		return relay.ObserverFunc(func(_ context.Context, ev relay.Event) { seen = append(seen, name+":"+ev.Line) })
	}
	Multi{rec("a"), nil, rec("b")}.Observe(context.Background(), relay.Event{Line: "list"})
	if len(seen) != 2 || seen[0] != "a:list" || seen[1] != "b:list" {
		t.Fatalf("seen=%v", seen)
	}
}
