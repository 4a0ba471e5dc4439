// Package cluster implements the optional multi-process supervisor that
// runs one worker per disjoint market group when a single-threaded engine
// cannot keep up with every configured market. A Supervisor forks one OS
// process per config.ClusterConfig.ProcessGroups entry and exchanges
// newline-delimited JSON messages with it over stdin/stdout; a Worker runs
// inside that child process and answers the other end of the pipe. Neither
// side inspects quote decisions — this is process liveness plumbing, not
// part of the quoting pipeline itself.
package cluster

import "time"

// MessageType enumerates the cluster IPC protocol's message kinds.
type MessageType string

const (
	MessageStatus        MessageType = "status"
	MessageError         MessageType = "error"
	MessageMetrics       MessageType = "metrics"
	MessageShutdown      MessageType = "shutdown"
	MessageStatusRequest MessageType = "status_request"
)

// Message is one line of the JSON-lines protocol exchanged between a
// Supervisor and its worker subprocesses.
type Message struct {
	Type      MessageType    `json:"type"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Timestamp time.Time      `json:"timestamp,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metrics   map[string]any `json:"metrics,omitempty"`
}
