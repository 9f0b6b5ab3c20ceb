package legacy

import (
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/timgates42/mako/internal/errors"
	"github.com/timgates42/mako/wire"
)

// addrBook is a minimal in-memory stand-in for the address-manager
// service spec §1 calls out as an external collaborator ("Address-manager
// persistence, tried/new tables, selection... only its narrow interface
// is specified"). It satisfies pool.AddressManager with a single bounded
// set plus ban/local side-tables instead of btcd addrmgr's new/tried
// bucket split, since persistence and bucket selection are explicitly
// out of scope here.
type addrBook struct {
	mu     sync.Mutex
	seen   map[string]*wire.NetAddress
	banned map[string]struct{}
	local  map[string]struct{}
	max    int
}

func newAddrBook(max int) *addrBook {
	return &addrBook{
		seen:   make(map[string]*wire.NetAddress),
		banned: make(map[string]struct{}),
		local:  make(map[string]struct{}),
		max:    max,
	}
}

func addrKey(ip net.IP, port uint16) string {
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
}

func naKey(na *wire.NetAddress) string {
	if na == nil || na.IP == nil {
		return ""
	}
	return addrKey(na.IP, na.Port)
}

func (b *addrBook) AddAddresses(addrs []*wire.NetAddress, _ *wire.NetAddress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, na := range addrs {
		if na == nil || na.IP == nil {
			continue
		}
		k := addrKey(na.IP, na.Port)
		if _, banned := b.banned[k]; banned {
			continue
		}
		if _, exists := b.seen[k]; exists {
			continue
		}
		if len(b.seen) >= b.max {
			b.evictOneLocked()
		}
		b.seen[k] = na
	}
}

func (b *addrBook) AddAddressByIP(addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return errors.NewConfigurationError("invalid address %s", addr)
	}
	b.AddAddresses([]*wire.NetAddress{{
		Timestamp: time.Now(),
		Services:  wire.ServiceNetwork,
		IP:        ip,
		Port:      uint16(port),
	}}, nil)
	return nil
}

func (b *addrBook) GetAddress() *wire.NetAddress {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.seen) == 0 {
		return nil
	}
	n := rand.Intn(len(b.seen))
	i := 0
	for k, na := range b.seen {
		if _, banned := b.banned[k]; banned {
			continue
		}
		if i == n {
			return na
		}
		i++
	}
	return nil
}

func (b *addrBook) NeedMoreAddresses() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.seen) < b.max/4
}

// MarkAttempt records a dial attempt against a candidate (spec §6
// "mark_attempt"). The bounded set keeps no retry-interval bookkeeping of
// its own, so this is presently a hook point rather than a gate.
func (b *addrBook) MarkAttempt(*wire.NetAddress) {}

// MarkSuccess promotes an address once its handshake completes (spec §6
// "mark_success"); without tried/new buckets there is no routing-table
// entry to promote, so this is a no-op hook like MarkAttempt.
func (b *addrBook) MarkSuccess(*wire.NetAddress) {}

// MarkAck records a successful getaddr round-trip (spec §6 "mark_ack").
func (b *addrBook) MarkAck(*wire.NetAddress) {}

// Ban moves an address into the ban set and drops it from the candidate
// pool, per spec §4.D "Score >= 100 => ban the address via the addrman
// collaborator and close".
func (b *addrBook) Ban(na *wire.NetAddress) {
	k := naKey(na)
	if k == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.banned[k] = struct{}{}
	delete(b.seen, k)
}

func (b *addrBook) IsBanned(na *wire.NetAddress) bool {
	k := naKey(na)
	if k == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.banned[k]
	return ok
}

// MarkLocal records an address as one of ours, so fillOutbound/onAddr can
// skip self-advertisements (spec §6 "mark_local"/"is_local").
func (b *addrBook) MarkLocal(na *wire.NetAddress) {
	k := naKey(na)
	if k == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.local[k] = struct{}{}
}

func (b *addrBook) IsLocal(na *wire.NetAddress) bool {
	k := naKey(na)
	if k == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.local[k]
	return ok
}

// Size is the count of known, non-banned candidates (spec §6 "size").
func (b *addrBook) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.seen)
}

// ForEach visits every known candidate in an unspecified order, stopping
// early if fn returns false (spec §6's address-manager iterator).
func (b *addrBook) ForEach(fn func(addr *wire.NetAddress) bool) {
	b.mu.Lock()
	snapshot := make([]*wire.NetAddress, 0, len(b.seen))
	for _, na := range b.seen {
		snapshot = append(snapshot, na)
	}
	b.mu.Unlock()

	for _, na := range snapshot {
		if !fn(na) {
			return
		}
	}
}

// evictOneLocked drops an arbitrary entry to make room; caller holds mu.
func (b *addrBook) evictOneLocked() {
	for k := range b.seen {
		delete(b.seen, k)
		return
	}
}
