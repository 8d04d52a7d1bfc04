package server

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

const DefaultDialTimeout = 5 * time.Second

type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Cluster ClusterConfig `yaml:"cluster"`
}

type NodeConfig struct {
	ID       int    `yaml:"id"`
	LogLevel string `yaml:"log_level"`
}

type ClusterConfig struct {
	PoolSize    int           `yaml:"pool_size"`
	QueueSize   int           `yaml:"queue_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Peers       []PeerConfig  `yaml:"peers"`
}

type PeerConfig struct {
	ID   int    `yaml:"id"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Role Role   `yaml:"role"`
}

// DefaultConfig is the static four node cluster: node1 is the primary,
// node2..node4 are backups, ports 5001..5004
func DefaultConfig() *Config {
	var cfg = defaults()
	cfg.Node.ID = 1
	cfg.Cluster.Peers = []PeerConfig{
		{ID: 1, Host: "node1", Port: 5001, Role: Primary},
		{ID: 2, Host: "node2", Port: 5002, Role: Backup},
		{ID: 3, Host: "node3", Port: 5003, Role: Backup},
		{ID: 4, Host: "node4", Port: 5004, Role: Backup},
	}

	return cfg
}

func defaults() *Config {
	return &Config{
		Node: NodeConfig{LogLevel: "info"},
		Cluster: ClusterConfig{
			PoolSize:    DefaultPoolSize,
			QueueSize:   DefaultQueueSize,
			DialTimeout: DefaultDialTimeout,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config = defaults()
	if err = yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.Node.ID <= 0 || c.Node.ID > math.MaxInt32 {
		return fmt.Errorf("node.id must be between 1 and %d", math.MaxInt32)
	}

	if hclog.LevelFromString(c.Node.LogLevel) == hclog.NoLevel {
		return fmt.Errorf("unknown node.log_level: %q", c.Node.LogLevel)
	}

	if c.Cluster.PoolSize < 1 {
		return fmt.Errorf("cluster.pool_size must be at least 1")
	}

	// Options treats 0 as unset
	if c.Cluster.QueueSize < 1 {
		return fmt.Errorf("cluster.queue_size must be at least 1")
	}

	if c.Cluster.DialTimeout < 0 {
		return fmt.Errorf("cluster.dial_timeout cannot be negative")
	}

	if len(c.Cluster.Peers) == 0 {
		return fmt.Errorf("cluster.peers must contain at least one peer")
	}

	var (
		uniqueIDs = make(map[int]bool, len(c.Cluster.Peers))
		primaries int
		found     bool
	)

	for _, peer := range c.Cluster.Peers {
		// ids travel as 32 bit integers
		if peer.ID <= 0 || peer.ID > math.MaxInt32 {
			return fmt.Errorf("peer id must be between 1 and %d: %d", math.MaxInt32, peer.ID)
		}

		if uniqueIDs[peer.ID] {
			return fmt.Errorf("duplicate peer ID: %d", peer.ID)
		}
		uniqueIDs[peer.ID] = true

		if peer.Host == "" {
			return fmt.Errorf("peer %d: host is required", peer.ID)
		}

		if peer.Port < 1 || peer.Port > 65535 {
			return fmt.Errorf("peer %d: invalid port %d", peer.ID, peer.Port)
		}

		if peer.Role == Primary {
			primaries++
		}

		if peer.ID == c.Node.ID {
			found = true
		}
	}

	if primaries != 1 {
		return fmt.Errorf("cluster must have exactly one primary, got %d", primaries)
	}

	if !found {
		return fmt.Errorf("node.id=%d not found in cluster.peers", c.Node.ID)
	}

	return nil
}

// Resolve returns the identity of this node and every other node in configuration order
func (c *Config) Resolve() (NodeInfo, []NodeInfo, error) {
	var (
		self  NodeInfo
		found bool
		peers = make([]NodeInfo, 0, len(c.Cluster.Peers))
	)

	for _, peer := range c.Cluster.Peers {
		var info = NodeInfo{ID: peer.ID, Host: peer.Host, Port: peer.Port, Role: peer.Role}

		if peer.ID == c.Node.ID {
			self = info
			found = true
			continue
		}

		peers = append(peers, info)
	}

	if !found {
		return NodeInfo{}, nil, fmt.Errorf("node.id=%d not found in cluster.peers", c.Node.ID)
	}

	return self, peers, nil
}

func (c *Config) ServerOptions(logger hclog.Logger) Options {
	return Options{
		PoolSize:  c.Cluster.PoolSize,
		QueueSize: c.Cluster.QueueSize,
		Logger:    logger,
	}
}

func (r *Role) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	role, err := ParseRole(s)
	if err != nil {
		return err
	}

	*r = role
	return nil
}

func (r Role) MarshalYAML() (interface{}, error) {
	return r.String(), nil
}
