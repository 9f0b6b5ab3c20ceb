// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package legacy

import (
	chaincfg "github.com/bsv-blockchain/go-chaincfg"
	"github.com/timgates42/mako/wire"
)

// netFor maps the settings-level network name to the wire magic, mirroring
// the mainNetParams/regressionNetParams/testNetParams grouping the teacher
// kept per network.
func netFor(name string) wire.BitcoinNet {
	switch name {
	case "testnet":
		return wire.TestNet
	case "regtest":
		return wire.RegTest
	case "simnet":
		return wire.SimNet
	default:
		return wire.MainNet
	}
}

// checkpointsFor returns the checkpoint list for the named network, fed
// into chainsync.Chain via pool.Options.Checkpoints.
func checkpointsFor(name string) []chaincfg.Checkpoint {
	switch name {
	case "testnet":
		return chaincfg.TestNet3Params.Checkpoints
	case "regtest":
		return chaincfg.RegressionNetParams.Checkpoints
	default:
		return chaincfg.MainNetParams.Checkpoints
	}
}
