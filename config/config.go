// Package config holds the runtime-tunable parameters every component
// reads from (quorum threshold, gas limits, tx size caps, ...). Loading the
// values — from flags, files, or a CLI — is out of scope per spec.md §1
// ("configuration loading, CLI ... are external collaborators"); this
// package only carries the struct and its defaults, plus a thin
// convenience loader over the handful of env vars spec.md §6 names.
package config

import (
	"os"
	"strconv"
)

// Config mirrors the tunables referenced throughout spec.md.
type Config struct {
	WorkFolder string
	Offline    bool

	HTTPIPv4   string
	HTTPPort   int
	UDPIPv4    string
	UDPPort    int
	PublicUDP  string
	OtherNodes []string

	TrustFactor   int
	ArchivalNode  bool
	AutoUpdate    bool
	Computor      string // "default" | "trainer"
	SnapshotHeight uint64

	// Deterministic protocol parameters (not environment-sourced).
	TxSize          int   // §4.2 max tx_packed size in bytes
	MaxTxsPerEntry  int   // §4.1/§4.3 max txs per entry
	DefaultGas      int64 // §4.1 initial gas budget ("points")
	Quorum          int   // §4.4 quorum numerator, denominator = |T_h|
	EpochInterval   uint64
	GasPricePerUnit int64 // exec_used * 100, §4.1 step 4
}

// Default returns the spec's canonical defaults.
func Default() Config {
	return Config{
		WorkFolder:     "./workdir",
		UDPPort:        36969,
		TrustFactor:    1,
		Computor:       "default",
		TxSize:         1024 * 1024,
		MaxTxsPerEntry: 100,
		DefaultGas:     10_000_000,
		Quorum:         3,
		EpochInterval:  100_000,
		GasPricePerUnit: 100,
	}
}

// LoadFromEnv overlays process environment variables named in spec.md §6 on
// top of Default(). Absent variables leave the default untouched.
func LoadFromEnv() Config {
	cfg := Default()
	if v := os.Getenv("WORKFOLDER"); v != "" {
		cfg.WorkFolder = v
	}
	if v := os.Getenv("OFFLINE"); v != "" {
		cfg.Offline = v == "1" || v == "true"
	}
	if v := os.Getenv("HTTP_IPV4"); v != "" {
		cfg.HTTPIPv4 = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = p
		}
	}
	if v := os.Getenv("UDP_IPV4"); v != "" {
		cfg.UDPIPv4 = v
	}
	if v := os.Getenv("PUBLIC_UDP_IPV4"); v != "" {
		cfg.PublicUDP = v
	}
	if v := os.Getenv("TRUSTFACTOR"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.TrustFactor = p
		}
	}
	if v := os.Getenv("ARCHIVALNODE"); v != "" {
		cfg.ArchivalNode = v == "1" || v == "true"
	}
	if v := os.Getenv("AUTOUPDATE"); v != "" {
		cfg.AutoUpdate = v == "1" || v == "true"
	}
	if v := os.Getenv("COMPUTOR"); v != "" {
		cfg.Computor = v
	}
	if v := os.Getenv("SNAPSHOT_HEIGHT"); v != "" {
		if p, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.SnapshotHeight = p
		}
	}
	return cfg
}
