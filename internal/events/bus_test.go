package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan PipelineEvent, 1)

	unsub := bus.Subscribe(func(e PipelineEvent) {
		received <- e
	})
	defer unsub()

	ev := PipelineEvent{Kind: PipelineError, SessionID: "s1", Source: "v4l2src0", Code: 3, Message: "busy"}
	bus.Publish(ev)

	select {
	case got := <-received:
		if got.SessionID != "s1" || got.Kind != PipelineError || got.Code != 3 {
			t.Errorf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_PreservesOrderPerSubscriber(t *testing.T) {
	bus := New()
	received := make(chan PipelineEventKind, 3)

	unsub := bus.Subscribe(func(e PipelineEvent) {
		time.Sleep(5 * time.Millisecond)
		received <- e.Kind
	})
	defer unsub()

	bus.Publish(PipelineEvent{Kind: PipelineWarning})
	bus.Publish(PipelineEvent{Kind: PipelineCredentialsExpiring})
	bus.Publish(PipelineEvent{Kind: PipelineEnd})

	want := []PipelineEventKind{PipelineWarning, PipelineCredentialsExpiring, PipelineEnd}
	for i, kind := range want {
		select {
		case got := <-received:
			if got != kind {
				t.Errorf("event %d: got %s, want %s", i, got, kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	received1 := make(chan StreamStateChangedEvent, 1)
	received2 := make(chan StreamStateChangedEvent, 1)

	defer bus.Subscribe(func(e StreamStateChangedEvent) { received1 <- e })()
	defer bus.Subscribe(func(e StreamStateChangedEvent) { received2 <- e })()

	bus.Publish(StreamStateChangedEvent{SessionID: "s1", Active: true})

	for _, ch := range []chan StreamStateChangedEvent{received1, received2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan StreamRestartEvent, 1)

	unsub := bus.Subscribe(func(e StreamRestartEvent) {
		received <- e
	})

	bus.Publish(StreamRestartEvent{Reason: "error"})
	<-received

	unsub()

	bus.Publish(StreamRestartEvent{Reason: "credentials_expiring"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_UnknownHandlerIsNoop(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan ResponsePublishedEvent, 1)
	unsub := SubscribeToChannel(bus, ch)
	defer unsub()

	bus.Publish(ResponsePublishedEvent{Status: "SUCCESS", Message: "Stream started"})

	select {
	case got := <-ch:
		if got.Message != "Stream started" {
			t.Errorf("unexpected event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel event")
	}
}

func TestPipelineEventKindTerminal(t *testing.T) {
	tests := map[PipelineEventKind]bool{
		PipelineEnd:                 true,
		PipelineError:               true,
		PipelineWarning:             false,
		PipelineCredentialsExpiring: false,
	}
	for kind, want := range tests {
		if got := kind.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", kind, got, want)
		}
	}
}

func TestPipelineEventJSON(t *testing.T) {
	data, err := json.Marshal(PipelineEvent{Kind: PipelineWarning, SessionID: "s1", Source: "kvssink0"})
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["kind"] != "warning" || decoded["source"] != "kvssink0" {
		t.Errorf("unexpected JSON: %s", data)
	}
	if _, ok := decoded["code"]; ok {
		t.Errorf("zero code should be omitted: %s", data)
	}
}
