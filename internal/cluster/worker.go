package cluster

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"
)

// Worker is the child-process side of the cluster protocol. It listens on
// the supervisor's pipe for shutdown and status_request messages and
// reports its own status and errors back over stdout.
type Worker struct {
	id     string
	out    *json.Encoder
	logger *slog.Logger
}

// NewWorker wraps stdout in a JSON encoder for status/error reporting.
func NewWorker(id string, stdout io.Writer, logger *slog.Logger) *Worker {
	return &Worker{
		id:     id,
		out:    json.NewEncoder(stdout),
		logger: logger.With(slog.String("component", "cluster_worker"), slog.String("worker_id", id)),
	}
}

// Listen reads newline-delimited JSON messages from stdin until EOF or ctx
// is cancelled. A shutdown message calls cancel, which callers should wire
// to a child context derived from their own run context so the quote engine
// stops the same way it would on SIGTERM. A status_request message triggers
// an immediate status reply. Malformed lines are logged and skipped.
func (w *Worker) Listen(ctx context.Context, stdin io.Reader, cancel context.CancelFunc) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(line), &msg); err != nil {
				w.logger.Warn("malformed supervisor message", slog.String("error", err.Error()))
				continue
			}
			switch msg.Type {
			case MessageShutdown:
				w.logger.Info("shutdown requested by supervisor")
				cancel()
				return
			case MessageStatusRequest:
				w.ReportStatus("running")
			}
		}
	}
}

// ReportStatus sends a status message carrying the given free-form state.
func (w *Worker) ReportStatus(state string) {
	_ = w.out.Encode(Message{
		Type:      MessageStatus,
		WorkerID:  w.id,
		Timestamp: time.Now(),
		Metrics:   map[string]any{"state": state},
	})
}

// ReportError sends an error message. Encoding errors are swallowed: a
// broken pipe here means the supervisor already gave up on this worker.
func (w *Worker) ReportError(err error) {
	_ = w.out.Encode(Message{
		Type:      MessageError,
		WorkerID:  w.id,
		Timestamp: time.Now(),
		Error:     err.Error(),
	})
}
