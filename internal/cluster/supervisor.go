package cluster

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nkassim/perpmm/internal/config"
)

// Supervisor forks one worker process per configured market group, restarts
// workers that exit unexpectedly (up to maxRestarts), and forwards shutdown
// to every worker when its context is cancelled.
type Supervisor struct {
	binary       string
	configPath   string
	groups       [][]int
	maxRestarts  int
	restartDelay time.Duration
	logger       *slog.Logger
}

// NewSupervisor builds a Supervisor that re-execs binary with "live -config
// configPath" for each of cfg.ProcessGroups.
func NewSupervisor(binary, configPath string, cfg config.ClusterConfig, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		binary:       binary,
		configPath:   configPath,
		groups:       cfg.ProcessGroups,
		maxRestarts:  cfg.MaxRestarts,
		restartDelay: cfg.WorkerRestartDelay.Duration,
		logger:       logger.With(slog.String("component", "cluster_supervisor")),
	}
}

// Run starts every worker group and blocks until all of them exit (either
// because ctx was cancelled or because one exceeded maxRestarts).
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, markets := range s.groups {
		i, markets := i, markets
		g.Go(func() error {
			return s.superviseGroup(ctx, fmt.Sprintf("worker-%d", i), markets)
		})
	}
	return g.Wait()
}

// superviseGroup runs the worker for one market group, restarting it with a
// fixed delay until ctx is cancelled or maxRestarts is exceeded.
func (s *Supervisor) superviseGroup(ctx context.Context, workerID string, markets []int) error {
	restarts := 0
	for {
		err := s.runOnce(ctx, workerID, markets)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}

		restarts++
		s.logger.WarnContext(ctx, "worker exited, considering restart",
			slog.String("worker_id", workerID),
			slog.Int("restarts", restarts),
			slog.String("error", err.Error()),
		)
		if restarts > s.maxRestarts {
			return fmt.Errorf("cluster: %s exceeded max restarts (%d): %w", workerID, s.maxRestarts, err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.restartDelay):
		}
	}
}

// runOnce starts one worker process, relays messages from its stdout to the
// logger, and forwards a shutdown message when ctx is cancelled. It returns
// nil on a clean exit and a non-nil error otherwise.
func (s *Supervisor) runOnce(ctx context.Context, workerID string, markets []int) error {
	marketsJSON, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("cluster: marshal markets for %s: %w", workerID, err)
	}

	cmd := exec.CommandContext(ctx, s.binary, "live", "-config", s.configPath)
	cmd.Env = append(os.Environ(),
		"IS_WORKER=true",
		"WORKER_ID="+workerID,
		"MARKETS="+string(marketsJSON),
	)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("cluster: stdin pipe for %s: %w", workerID, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("cluster: stdout pipe for %s: %w", workerID, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cluster: start %s: %w", workerID, err)
	}

	done := make(chan struct{})
	go s.relayMessages(workerID, stdout, done)

	go func() {
		select {
		case <-ctx.Done():
			writeMessage(stdin, Message{Type: MessageShutdown, WorkerID: workerID, Timestamp: time.Now()})
		case <-done:
		}
	}()

	err = cmd.Wait()
	<-done
	return err
}

// relayMessages logs every message a worker reports until its stdout closes.
func (s *Supervisor) relayMessages(workerID string, stdout io.Reader, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			s.logger.Warn("malformed worker message", slog.String("worker_id", workerID), slog.String("error", err.Error()))
			continue
		}
		switch msg.Type {
		case MessageError:
			s.logger.Error("worker reported error", slog.String("worker_id", workerID), slog.String("error", msg.Error))
		default:
			s.logger.Debug("worker message", slog.String("worker_id", workerID), slog.String("type", string(msg.Type)))
		}
	}
}

func writeMessage(w io.Writer, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = w.Write(data)
}
