package client

import (
	"errors"
	"strings"
	"testing"
)

func TestReadEvents(t *testing.T) {
	body := ": keepalive\n\n" +
		"id:1\nevent:gate.session.started\ndata:{\"user\":\"guard1\"}\n\n" +
		"id:2\nevent:gate.entry.created\ndata:{\"a\":1,\ndata:\"b\":2}\n\n"

	var got []StreamEvent
	err := ReadEvents(strings.NewReader(body), func(e StreamEvent) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].ID != "1" || got[0].Topic != "gate.session.started" {
		t.Errorf("event 0 = %+v", got[0])
	}
	if string(got[1].Data) != "{\"a\":1,\n\"b\":2}" {
		t.Errorf("event 1 data = %q", got[1].Data)
	}
}

func TestReadEvents_StopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	body := "id:1\nevent:a\ndata:x\n\nid:2\nevent:b\ndata:y\n\n"
	n := 0
	err := ReadEvents(strings.NewReader(body), func(StreamEvent) error {
		n++
		return stop
	})
	if !errors.Is(err, stop) || n != 1 {
		t.Errorf("err=%v calls=%d", err, n)
	}
}
