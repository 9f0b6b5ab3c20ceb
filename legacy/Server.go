package legacy

import (
	"context"
	"strconv"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/ordishs/gocore"
	"github.com/timgates42/mako/internal/settings"
	"github.com/timgates42/mako/internal/ulogger"
	"github.com/timgates42/mako/peer"
	"github.com/timgates42/mako/pool"
	"github.com/timgates42/mako/wire"
)

// Server is the composition root: it wires a *pool.Pool against the
// address book and chain/mempool stand-ins in this package, the way the
// teacher's Server wired services.* clients into newServer.
type Server struct {
	logger ulogger.Logger
	stats  *gocore.Stat
	books  *addrBook
	pool   *pool.Pool
	stop   chan struct{}
}

// New builds a Server from loaded settings. tip/tipHeight seed the
// header-sync chain stub at the locally known best block.
func New(logger ulogger.Logger, tSettings *settings.Settings, tip chainhash.Hash, tipHeight int32) *Server {
	cfg := tSettings.Legacy

	books := newAddrBook(2000)
	for _, addr := range cfg.ConnectPeers {
		if err := books.AddAddressByIP(addr); err != nil {
			logger.Warnf("legacy: skipping connect-peer %s: %v", addr, err)
		}
	}
	chain := newChainStub(tip, tipHeight)

	opts := pool.Options{
		Network:              netFor(cfg.Network),
		Listen:               cfg.Listen,
		ListenAddresses:      cfg.ListenAddresses,
		Port:                 strconv.Itoa(int(cfg.Port)),
		MaxOutbound:          cfg.MaxOutbound,
		MaxInbound:           cfg.MaxInbound,
		CheckpointsEnabled:   cfg.CheckpointsEnabled,
		BIP37Enabled:         cfg.BIP37Enabled,
		BIP152Enabled:        cfg.BIP152Enabled,
		BlockMode:            peer.CompactMode(cfg.BlockMode),
		OnlyNet:              cfg.OnlyNet,
		Onion:                cfg.Onion,
		ProxyAddr:            cfg.ProxyAddr,
		ProxyUser:            cfg.ProxyUser,
		ProxyPass:            cfg.ProxyPass,
		RequiredServices:     cfg.RequiredServices,
		SelfConnect:          cfg.SelfConnect,
		ConnectPeers:         cfg.ConnectPeers,
		OutboundFillInterval: cfg.OutboundFillInterval,
		UserAgentName:        "mako",
		UserAgentVersion:     "0.1.0",
		ProtocolVersion:      70016,
		Services:             wire.ServiceNetwork | wire.ServiceWitness,
		Checkpoints:          checkpointsFor(cfg.Network),
	}

	deps := pool.Deps{
		Addr:    books,
		Chain:   chain,
		Mempool: chain,
		Logger:  logger,
	}

	return &Server{
		logger: logger,
		stats:  gocore.NewStat("legacy"),
		books:  books,
		pool:   pool.New(opts, deps, tip, tipHeight),
		stop:   make(chan struct{}),
	}
}

func (s *Server) Health(_ context.Context) (int, string, error) {
	return 0, "", nil
}

// Init opens the configured listen sockets (spec §6 "listen (on/off)").
// Connect-peer seeding happens in New so the address book is already
// populated before the first outbound-fill tick.
func (s *Server) Init(_ context.Context) error {
	return s.pool.Listen()
}

// Start runs the pool's event loop until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.pool.Run(s.stop)

	go func() {
		<-ctx.Done()
		close(s.stop)
	}()

	return nil
}

func (s *Server) Stop(_ context.Context) error {
	close(s.stop)
	return nil
}
