package server

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	var path = filepath.Join(t.TempDir(), "cluster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	var path = writeConfig(t, `
node:
  id: 2
  log_level: debug
cluster:
  pool_size: 4
  dial_timeout: 2s
  peers:
    - {id: 1, host: node1, port: 5001, role: primary}
    - {id: 2, host: node2, port: 5002, role: backup}
    - {id: 3, host: node3, port: 5003, role: Backup}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 2, cfg.Node.ID)
	require.Equal(t, "debug", cfg.Node.LogLevel)
	require.Equal(t, 4, cfg.Cluster.PoolSize)
	require.Equal(t, DefaultQueueSize, cfg.Cluster.QueueSize)
	require.Equal(t, 2*time.Second, cfg.Cluster.DialTimeout)
	require.Len(t, cfg.Cluster.Peers, 3)
	require.Equal(t, Primary, cfg.Cluster.Peers[0].Role)
	require.Equal(t, Backup, cfg.Cluster.Peers[2].Role)

	self, peers, err := cfg.Resolve()
	require.NoError(t, err)
	require.Equal(t, NodeInfo{ID: 2, Host: "node2", Port: 5002, Role: Backup}, self)
	require.Equal(t, []NodeInfo{
		{ID: 1, Host: "node1", Port: 5001, Role: Primary},
		{ID: 3, Host: "node3", Port: 5003, Role: Backup},
	}, peers)
}

func TestLoadConfig_Errors(t *testing.T) {
	tt := []struct {
		name    string
		content string
	}{
		{
			name:    "unknown role",
			content: "node: {id: 1}\ncluster:\n  peers:\n    - {id: 1, host: a, port: 1, role: leader}\n",
		},
		{
			name:    "malformed yaml",
			content: "node: [",
		},
		{
			name:    "fails validation",
			content: "node: {id: 5}\ncluster:\n  peers:\n    - {id: 1, host: a, port: 1, role: primary}\n",
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			require.Error(t, err)
		})
	}

	// queue_size 0 must not silently become the default queue
	_, err := LoadConfig(writeConfig(t, "node: {id: 1}\ncluster:\n  queue_size: 0\n  peers:\n    - {id: 1, host: a, port: 1, role: primary}\n"))
	require.ErrorContains(t, err, "cluster.queue_size must be at least 1")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tt := []struct {
		name     string
		mutate   func(c *Config)
		expected string
	}{
		{
			name:     "default config is valid",
			mutate:   func(c *Config) {},
			expected: "",
		},
		{
			name:     "node id not positive",
			mutate:   func(c *Config) { c.Node.ID = 0 },
			expected: "node.id must be between 1 and 2147483647",
		},
		{
			name:     "unknown log level",
			mutate:   func(c *Config) { c.Node.LogLevel = "loud" },
			expected: "unknown node.log_level",
		},
		{
			name:     "empty pool",
			mutate:   func(c *Config) { c.Cluster.PoolSize = 0 },
			expected: "cluster.pool_size must be at least 1",
		},
		{
			name:     "negative queue",
			mutate:   func(c *Config) { c.Cluster.QueueSize = -1 },
			expected: "cluster.queue_size must be at least 1",
		},
		{
			name:     "empty queue",
			mutate:   func(c *Config) { c.Cluster.QueueSize = 0 },
			expected: "cluster.queue_size must be at least 1",
		},
		{
			name:     "node id above int32",
			mutate:   func(c *Config) { c.Node.ID = 1<<32 + 2 },
			expected: "node.id must be between 1 and 2147483647",
		},
		{
			name: "peer id above int32",
			mutate: func(c *Config) {
				c.Cluster.Peers = append(c.Cluster.Peers, PeerConfig{ID: 1<<32 + 2, Host: "node5", Port: 5005, Role: Backup})
			},
			expected: "peer id must be between 1 and 2147483647: 4294967298",
		},
		{
			name:     "peer id at int32 max",
			mutate:   func(c *Config) { c.Cluster.Peers[3].ID = math.MaxInt32 },
			expected: "",
		},
		{
			name:     "negative dial timeout",
			mutate:   func(c *Config) { c.Cluster.DialTimeout = -time.Second },
			expected: "cluster.dial_timeout cannot be negative",
		},
		{
			name:     "no peers",
			mutate:   func(c *Config) { c.Cluster.Peers = nil },
			expected: "cluster.peers must contain at least one peer",
		},
		{
			name:     "duplicate peer id",
			mutate:   func(c *Config) { c.Cluster.Peers[3].ID = 2 },
			expected: "duplicate peer ID: 2",
		},
		{
			name:     "missing host",
			mutate:   func(c *Config) { c.Cluster.Peers[1].Host = "" },
			expected: "peer 2: host is required",
		},
		{
			name:     "port out of range",
			mutate:   func(c *Config) { c.Cluster.Peers[2].Port = 70000 },
			expected: "peer 3: invalid port 70000",
		},
		{
			name:     "two primaries",
			mutate:   func(c *Config) { c.Cluster.Peers[1].Role = Primary },
			expected: "cluster must have exactly one primary, got 2",
		},
		{
			name:     "no primary",
			mutate:   func(c *Config) { c.Cluster.Peers[0].Role = Backup },
			expected: "cluster must have exactly one primary, got 0",
		},
		{
			name:     "self not in cluster",
			mutate:   func(c *Config) { c.Node.ID = 7 },
			expected: "node.id=7 not found in cluster.peers",
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			var cfg = DefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.expected == "" {
				require.NoError(t, err)
				return
			}

			require.ErrorContains(t, err, tc.expected)
		})
	}
}

func TestDefaultConfig_Resolve(t *testing.T) {
	var cfg = DefaultConfig()
	cfg.Node.ID = 3

	self, peers, err := cfg.Resolve()
	require.NoError(t, err)

	require.Equal(t, NodeInfo{ID: 3, Host: "node3", Port: 5003, Role: Backup}, self)
	require.Len(t, peers, 3)
	require.Equal(t, Primary, peers[0].Role)
	require.Equal(t, "node1:5001", peers[0].Addr())

	var opts = cfg.ServerOptions(nil)
	require.Equal(t, DefaultPoolSize, opts.PoolSize)
	require.Equal(t, DefaultQueueSize, opts.QueueSize)
}

func TestConfig_ServerOptionsReachServer(t *testing.T) {
	var cfg = DefaultConfig()
	cfg.Cluster.PoolSize = 2
	cfg.Cluster.QueueSize = 1
	require.NoError(t, cfg.Validate())

	self, peers, err := cfg.Resolve()
	require.NoError(t, err)

	srv, err := NewServer(self, peers, newMockPeerClient(), cfg.ServerOptions(hclog.NewNullLogger()))
	require.NoError(t, err)

	require.Equal(t, 2, srv.poolSize)
	require.Equal(t, 1, srv.queueSize)
}

func TestParseRole(t *testing.T) {
	tt := []struct {
		in       string
		expected Role
		wantErr  bool
	}{
		{in: "primary", expected: Primary},
		{in: " PRIMARY ", expected: Primary},
		{in: "backup", expected: Backup},
		{in: "leader", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tt {
		t.Run(tc.in, func(t *testing.T) {
			role, err := ParseRole(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.expected, role)
		})
	}

	require.Equal(t, "primary", Primary.String())
	require.Equal(t, "backup", Backup.String())
	require.Equal(t, "Role(7)", Role(7).String())
}

func TestLoadConfig_DeployFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "deploy", "cluster.yaml"))
	require.NoError(t, err)

	var expected = DefaultConfig()
	require.Equal(t, expected.Cluster.Peers, cfg.Cluster.Peers)
	require.Equal(t, expected.Cluster.DialTimeout, cfg.Cluster.DialTimeout)
}
