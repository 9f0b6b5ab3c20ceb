// Package settings loads the configurable options enumerated in spec §6
// from gocore's process-wide config store, matching the lookup style
// used by legacy/Server.go (gocore.Config().GetMulti/GetBool/...) rather
// than a bespoke flag parser.
package settings

import (
	"time"

	"github.com/ordishs/gocore"
)

// Legacy holds the pool's configurable options (spec §6).
type Legacy struct {
	Network            string
	Listen             bool
	Port               uint16
	MaxOutbound        int
	MaxInbound         int
	CheckpointsEnabled bool
	BIP37Enabled       bool
	BIP152Enabled      bool
	BlockMode          int
	OnlyNet            string
	Onion              bool
	ProxyAddr          string
	ProxyUser          string
	ProxyPass          string
	RequiredServices   uint64
	SelfConnect        bool
	ConnectPeers       []string
	ListenAddresses    []string

	OutboundFillInterval time.Duration
	AddrAttemptInterval  time.Duration
}

// Settings is the root configuration object, mirroring tSettings usage
// across the legacy package (tSettings.Legacy.*).
type Settings struct {
	Legacy Legacy
}

// Load reads settings from gocore.Config(), applying the defaults listed
// in spec §6 when a key is absent.
func Load() *Settings {
	cfg := gocore.Config()

	maxOutbound, _ := cfg.GetInt("legacy_max_outbound", 8)
	maxInbound, _ := cfg.GetInt("legacy_max_inbound", 8)
	blockMode, _ := cfg.GetInt("legacy_block_mode", 0)
	port, _ := cfg.GetInt("legacy_port", 8333)

	connectPeers, _ := cfg.GetMulti("legacy_connect_peers", "|", []string{})
	listenAddresses, _ := cfg.GetMulti("legacy_listen_addresses", "|", []string{})

	network, _ := cfg.Get("legacy_network", "mainnet")
	onlyNet, _ := cfg.Get("legacy_only_net", "")
	proxyAddr, _ := cfg.Get("legacy_proxy_addr", "")
	proxyUser, _ := cfg.Get("legacy_proxy_user", "")
	proxyPass, _ := cfg.Get("legacy_proxy_pass", "")

	return &Settings{
		Legacy: Legacy{
			Network:              network,
			Listen:               cfg.GetBool("legacy_listen", true),
			Port:                 uint16(port),
			MaxOutbound:          maxOutbound,
			MaxInbound:           maxInbound,
			CheckpointsEnabled:   cfg.GetBool("legacy_checkpoints_enabled", false),
			BIP37Enabled:         cfg.GetBool("legacy_bip37_enabled", false),
			BIP152Enabled:        cfg.GetBool("legacy_bip152_enabled", false),
			BlockMode:            blockMode,
			OnlyNet:              onlyNet,
			Onion:                cfg.GetBool("legacy_onion", false),
			ProxyAddr:            proxyAddr,
			ProxyUser:            proxyUser,
			ProxyPass:            proxyPass,
			RequiredServices:     1, // SERVICE_NETWORK
			SelfConnect:          cfg.GetBool("legacy_self_connect", false),
			ConnectPeers:         connectPeers,
			ListenAddresses:      listenAddresses,
			OutboundFillInterval: 3 * time.Second,
			AddrAttemptInterval:  600 * time.Second,
		},
	}
}
