package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hashicorp/go-hclog"
	server "github.com/raorosz/Distributed-UserStore/kv-server"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to the cluster YAML file, the built-in 4 node cluster when empty")
		id         = flag.Int("id", 0, "ID of this node, falls back to $NODE_ID and then 1")
		logLevel   = flag.String("log-level", "", "Log level override (trace, debug, info, warn, error)")
	)

	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "userstore",
		Level: hclog.Info,
	})

	cfg := server.DefaultConfig()
	if *configPath != "" {
		loaded, err := server.LoadConfig(*configPath)
		if err != nil {
			logger.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	nodeID, err := resolveNodeID(*id, cfg.Node.ID, os.LookupEnv)
	if err != nil {
		logger.Error("cannot resolve node id", "error", err)
		os.Exit(1)
	}
	cfg.Node.ID = nodeID

	if *logLevel != "" {
		cfg.Node.LogLevel = *logLevel
	}

	if err = cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(hclog.LevelFromString(cfg.Node.LogLevel))

	self, peers, err := cfg.Resolve()
	if err != nil {
		logger.Error("node not found in the configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("node configuration complete", "id", self.ID, "peers", len(peers))

	client := server.NewTCPClient(cfg.Cluster.DialTimeout)

	srv, err := server.NewServer(self, peers, client, cfg.ServerOptions(logger))
	if err != nil {
		logger.Error("failed to create node", "error", err)
		os.Exit(1)
	}

	if err = srv.Start(); err != nil {
		logger.Error("failed to start node", "error", err)
		os.Exit(1)
	}
	defer srv.Shutdown()

	logger.Info("node started", "id", self.ID, "role", self.Role, "addr", self.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
}

// resolveNodeID picks the -id flag first, then $NODE_ID, then the config value, then 1
func resolveNodeID(flagID, configID int, lookupEnv func(string) (string, bool)) (int, error) {
	if flagID != 0 {
		return flagID, nil
	}

	if env, ok := lookupEnv("NODE_ID"); ok && env != "" {
		id, err := strconv.Atoi(env)
		if err != nil {
			return 0, fmt.Errorf("invalid NODE_ID %q: %w", env, err)
		}

		return id, nil
	}

	if configID != 0 {
		return configID, nil
	}

	return 1, nil
}
