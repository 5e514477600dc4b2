// Package audit records relay traffic. Sinks implement relay.Observer and
// receive one event per answered line.
package audit

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/antonkrylov/simrelay/internal/relay"
)

// EncodeEvent converts an event into a protobuf Struct. The time is kept as
// the seconds/nanos pair of a protobuf Timestamp.
func EncodeEvent(ev relay.Event) (*structpb.Struct, error) {
	ts := timestamppb.New(ev.Time)
	return structpb.NewStruct(map[string]any{
		"channel": ev.Channel,
		"remote":  ev.Remote,
		"line":    ev.Line,
		"kind":    ev.Result.Kind.String(),
		"message": ev.Result.Message,
		"time": map[string]any{
			"seconds": ts.GetSeconds(),
			"nanos":   ts.GetNanos(),
		},
	})
}

// DecodeEvent reverses EncodeEvent.
func DecodeEvent(s *structpb.Struct) (relay.Event, error) {
	f := s.GetFields()
	ev := relay.Event{
		Channel: f["channel"].GetStringValue(),
		Remote:  f["remote"].GetStringValue(),
		Line:    f["line"].GetStringValue(),
	}
	switch kind := f["kind"].GetStringValue(); kind {
	case relay.KindSuccess.String():
		ev.Result = relay.Success(f["message"].GetStringValue())
	case relay.KindFailure.String():
		ev.Result = relay.Failure(f["message"].GetStringValue())
	default:
		return relay.Event{}, fmt.Errorf("audit: unknown result kind %q", kind)
	}
	tf := f["time"].GetStructValue().GetFields()
	ts := &timestamppb.Timestamp{
		Seconds: int64(tf["seconds"].GetNumberValue()),
		Nanos:   int32(tf["nanos"].GetNumberValue()),
	}
	if err := ts.CheckValid(); err != nil {
		return relay.Event{}, fmt.Errorf("audit: event time: %w", err)
	}
	ev.Time = ts.AsTime().In(time.Local)
	return ev, nil
}

// Multi fans an event out to every non-nil sink in order.
type Multi []relay.Observer

func (m Multi) Observe(ctx context.Context, ev relay.Event) {
	for _, o := range m {
		if o != nil {
			o.Observe(ctx, ev)
		}
	}
}
