// Package config defines the YAML configuration structures for the LDM-7
// daemons. cmd/ldmd and cmd/ldm7-upstream parse theirs with
// toolutils.ReadYaml from a positional config-file argument; cmd/mcast-sender
// takes its settings as command-line flags and does not read Sender.
package config

import (
	"path/filepath"
	"time"
)

// Core holds settings common to every daemon process.
type Core struct {
	// BaseDir is the directory containing the config file; relative
	// paths below (LogDir, DataDir) are resolved against it.
	BaseDir string `yaml:"-"`

	LogDir   string `yaml:"log-dir"`
	LogLevel string `yaml:"log-level"`

	CpuProfile   string `yaml:"-"`
	MemProfile   string `yaml:"-"`
	BlockProfile string `yaml:"-"`
}

// Resolve turns a path relative to BaseDir into an absolute one, leaving
// already-absolute paths untouched.
func (c Core) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// Downstream is the top-level config for cmd/ldmd.
type Downstream struct {
	Core `yaml:",inline"`

	// ServerAddr is the upstream's TCP control endpoint, "host:port".
	ServerAddr string `yaml:"server-addr"`
	// Feed is the feed name (registered via feedspec.Register) to subscribe to.
	Feed string `yaml:"feed"`

	// DataDir holds the session-memory YAML file and the product-index map.
	DataDir string `yaml:"data-dir"`

	// NapInterval is how long the session loop sleeps between retries.
	NapInterval time.Duration `yaml:"nap-interval"`
	// BacklogTimeOffset bounds how far back a first-session backlog walk reaches when there is no prior signature.
	BacklogTimeOffset time.Duration `yaml:"backlog-time-offset"`
	// IndexMapCapacity is the index map's circular retention window size.
	IndexMapCapacity int `yaml:"index-map-capacity"`

	// AdminListen, if set, serves the websocket observability feed.
	AdminListen string `yaml:"admin-listen"`
}

// DefaultDownstream returns a Downstream config with this package's documented defaults filled in.
func DefaultDownstream() *Downstream {
	return &Downstream{
		NapInterval:       60 * time.Second,
		BacklogTimeOffset: 1 * time.Hour,
		IndexMapCapacity:  100_000,
		Core:              Core{LogLevel: "INFO"},
	}
}

// Upstream is the top-level config for cmd/ldm7-upstream.
type Upstream struct {
	Core `yaml:",inline"`

	// Listen is the TCP address the servant listener binds, "host:port".
	Listen string `yaml:"listen"`

	// DataDir holds the per-feed product-index map (write side).
	DataDir string `yaml:"data-dir"`

	// Feeds lists the feeds this upstream may serve, each with its ALLOW rules and address pool.
	Feeds []FeedConfig `yaml:"feeds"`

	// SenderBin is the path to the mcast-sender binary C8 spawns.
	SenderBin string `yaml:"sender-bin"`

	AdminListen string `yaml:"admin-listen"`

	// AuthKey is the shared secret used to MAC authorization tokens
	// exchanged with the multicast-sender's authorizer.
	AuthKey string `yaml:"auth-key"`

	// IndexMapCapacity is not read by the servant: it opens each feed's
	// index map read-only and takes the capacity from the map file's header.
	IndexMapCapacity int `yaml:"index-map-capacity"`

	// SubscribeTimeout bounds how long the servant waits for a subscribe
	// request after accepting a connection.
	SubscribeTimeout time.Duration `yaml:"subscribe-timeout"`

	// AuthorizeTimeout bounds the out-of-band authorizer handshake with
	// a feed's multicast sender.
	AuthorizeTimeout time.Duration `yaml:"authorize-timeout"`
}

// FeedConfig describes one feed an upstream servant can serve.
type FeedConfig struct {
	Name          string   `yaml:"name"`
	AllowPatterns []string `yaml:"allow"`
	McastGroup    string   `yaml:"mcast-group"`
	AddressPoolCIDR string `yaml:"address-pool-cidr"`
}

// DefaultUpstream returns an Upstream config with defaults filled in.
func DefaultUpstream() *Upstream {
	return &Upstream{
		Core:             Core{LogLevel: "INFO"},
		IndexMapCapacity: 100_000,
		SubscribeTimeout: 2 * time.Minute,
		AuthorizeTimeout: 10 * time.Second,
	}
}

// Sender mirrors cmd/mcast-sender's settings as a YAML structure; the command
// itself takes them as flags and does not load this type.
type Sender struct {
	Core `yaml:",inline"`

	Feed       string `yaml:"feed"`
	McastGroup string `yaml:"mcast-group"`
	// DataDir holds the product queue and the writer side of the index map.
	DataDir string `yaml:"data-dir"`
	// AuthorizerListen is the small TCP authorizer control endpoint.
	AuthorizerListen string `yaml:"authorizer-listen"`
	AuthKey          string `yaml:"auth-key"`
}

// DefaultSender returns a Sender config with defaults filled in.
func DefaultSender() *Sender {
	return &Sender{Core: Core{LogLevel: "INFO"}}
}
