package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Socket configuration (shared by client and server transports)
// --------------------------------------------------------------------------

// SocketConf holds buffer sizes for stream sockets
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds options that only apply to TCP sockets
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerShard is one memory pool served by the server
type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// CapacityBytes is the capacity of the pool (0 for no limit)
	CapacityBytes uint64
}

// ServerTransportConfig configures the listening side of a transport
type ServerTransportConfig struct {
	// Endpoint to listen on (host:port for tcp and http, socket path for unix)
	Endpoint string
	// WorkersPerConn is the number of goroutines handling requests of one connection
	WorkersPerConn int
	// BufferSize is the capacity of the request queue of one connection
	BufferSize int

	SocketConf SocketConf
	TCPConf    TCPConf
}

// ServerConfig holds all configuration parameters of a memory server
type ServerConfig struct {
	// Shards to serve, one memory pool each
	Shards []ServerShard

	// TimeoutSecond is the read timeout of idle connections (0 disables it)
	TimeoutSecond int64

	Transport ServerTransportConfig

	// MetricsEndpoint is the address of the prometheus endpoint, empty disables it
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder
	addSection, addField := printer(&sb)

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))
	addField("Buffer Size", strconv.Itoa(c.Transport.BufferSize))
	addField("Write Buffer", formatBytes(uint64(c.Transport.SocketConf.WriteBufferSize)))
	addField("Read Buffer", formatBytes(uint64(c.Transport.SocketConf.ReadBufferSize)))

	// Metrics
	addSection("Metrics")
	if c.MetricsEndpoint == "" {
		addField("Endpoint", "disabled")
	} else {
		addField("Endpoint", c.MetricsEndpoint)
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Shards
	addSection("Shards")
	for _, shard := range c.Shards {
		capacity := "unlimited"
		if shard.CapacityBytes > 0 {
			capacity = formatBytes(shard.CapacityBytes)
		}
		addField(strconv.FormatUint(shard.ShardID, 10), capacity)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig configures the connecting side of a transport
type ClientTransportConfig struct {
	Endpoints              []string
	ConnectionsPerEndpoint int

	SocketConf SocketConf
	TCPConf    TCPConf
}

// ClientConfig holds all configuration parameters of a client
type ClientConfig struct {
	// TimeoutSecond is the per request timeout (0 disables it).
	// A request that times out fails with an IO error, it is never retried.
	TimeoutSecond int

	Transport ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder
	addSection, addField := printer(&sb)

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))
	addField("Write Buffer", formatBytes(uint64(c.Transport.SocketConf.WriteBufferSize)))
	addField("Read Buffer", formatBytes(uint64(c.Transport.SocketConf.ReadBufferSize)))
	addField("TCP No Delay", strconv.FormatBool(c.Transport.TCPConf.TCPNoDelay))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func printer(sb *strings.Builder) (addSection func(string), addField func(string, string)) {
	addSection = func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}
	addField = func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-24s: %s\n", name, value))
	}
	return
}

// formatBytes prints a byte count with a binary unit
func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// ParseBytes parses sizes like "512", "64K", "10M" or "2G" (binary units)
func ParseBytes(s string) (uint64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	s = strings.TrimSuffix(strings.TrimSuffix(s, "B"), "I")
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	mult := uint64(1)
	switch s[len(s)-1] {
	case 'K':
		mult = 1 << 10
	case 'M':
		mult = 1 << 20
	case 'G':
		mult = 1 << 30
	case 'T':
		mult = 1 << 40
	}
	if mult > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > ^uint64(0)/mult {
		return 0, fmt.Errorf("size %q overflows", s)
	}
	return n * mult, nil
}
