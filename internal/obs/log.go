// Package obs wires up the process-wide logging facade. Every other
// package pulls its logger from here rather than constructing its own.
package obs

import (
	logging "github.com/ipfs/go-log"
)

// SetVerbosity maps a repeated -v count (spec §6) onto go-log's levels.
// Zero and one -v both select info and above; two or more select debug.
func SetVerbosity(count int) {
	level := logging.LevelInfo
	switch {
	case count >= 2:
		level = logging.LevelDebug
	case count == 1:
		level = logging.LevelInfo
	}
	logging.SetAllLoggers(level)
}

// Logger returns the named subsystem logger. Conventional subsystem
// names used in this module: "dkg", "frostyrpc", "transport", "config",
// "cmd".
func Logger(subsystem string) *logging.ZapEventLogger {
	return logging.Logger(subsystem)
}
