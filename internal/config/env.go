package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

const (
	defaultRPCEndpoint = "https://api.mainnet-beta.solana.com"
	defaultWebServerURL = "wss://venue.example.com/ws"
)

// RuntimeEnv holds the environment variables the venue layer and the
// cluster worker model consume directly, outside the TOML-configured
// Config. PRIVATE_KEY_BASE58 is never written to a TOML file or logged.
type RuntimeEnv struct {
	PrivateKeyBase58 string
	RPCEndpoint      string
	WebServerURL     string
	LogLevel         string

	// Worker-only fields, populated only when IS_WORKER=true.
	IsWorker bool
	WorkerID string
	Markets  []int
}

// LoadRuntimeEnv reads the bare environment variables the venue contract
// requires. PRIVATE_KEY_BASE58 is required; RPC_ENDPOINT, WEB_SERVER_URL,
// and LOG_LEVEL fall back to defaults when unset.
func LoadRuntimeEnv() (*RuntimeEnv, error) {
	key := os.Getenv("PRIVATE_KEY_BASE58")
	if key == "" {
		return nil, fmt.Errorf("config: PRIVATE_KEY_BASE58 is required")
	}

	env := &RuntimeEnv{
		PrivateKeyBase58: key,
		RPCEndpoint:      defaultRPCEndpoint,
		WebServerURL:     defaultWebServerURL,
		LogLevel:         "info",
	}

	if v := os.Getenv("RPC_ENDPOINT"); v != "" {
		env.RPCEndpoint = v
	}
	if v := os.Getenv("WEB_SERVER_URL"); v != "" {
		env.WebServerURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		env.LogLevel = v
	}

	if v := os.Getenv("IS_WORKER"); v != "" {
		isWorker, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("config: IS_WORKER: %w", err)
		}
		env.IsWorker = isWorker
	}

	if env.IsWorker {
		env.WorkerID = os.Getenv("WORKER_ID")
		if v := os.Getenv("MARKETS"); v != "" {
			var markets []int
			if err := json.Unmarshal([]byte(v), &markets); err != nil {
				return nil, fmt.Errorf("config: MARKETS: %w", err)
			}
			env.Markets = markets
		}
	}

	return env, nil
}
