package cluster

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestWriteMessageEncodesAsOneJSONLine(t *testing.T) {
	var buf bytes.Buffer
	writeMessage(&buf, Message{Type: MessageShutdown, WorkerID: "worker-0"})

	if !strings.HasSuffix(buf.String(), "\n") {
		t.Fatalf("expected a trailing newline, got %q", buf.String())
	}
	var msg Message
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != MessageShutdown || msg.WorkerID != "worker-0" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestRelayMessagesClosesDoneOnEOF(t *testing.T) {
	s := &Supervisor{logger: testLogger()}
	stdout := strings.NewReader(`{"type":"metrics","worker_id":"worker-0"}` + "\n")
	done := make(chan struct{})

	s.relayMessages("worker-0", stdout, done)

	select {
	case <-done:
	default:
		t.Fatal("expected done to be closed after stdout EOF")
	}
}

func TestRelayMessagesSkipsMalformedLines(t *testing.T) {
	s := &Supervisor{logger: testLogger()}
	stdout := strings.NewReader("not json\n" + `{"type":"status","worker_id":"worker-0"}` + "\n")
	done := make(chan struct{})

	s.relayMessages("worker-0", stdout, done)

	select {
	case <-done:
	default:
		t.Fatal("expected relayMessages to finish despite the malformed line")
	}
}
