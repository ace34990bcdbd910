// Package settings is the device's persistent key-value collaborator:
// Wi-Fi credentials, pool endpoints, ASIC model/frequency/voltage, and the
// all-time best difficulty the core has ever mined, all addressed by the
// typed accessors §6 of the distilled spec describes. The default
// implementation is a local embedded-SQL store (modernc.org/sqlite, pure
// Go, no cgo) standing in for the device's flash NVS, grounded on
// rodb2008-M45-Core-goPool's sqlite-backed worker list store.
package settings

import (
	"database/sql"
	"fmt"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"
)

// Key names for the DeviceSettings schema. Every accessor below returns a
// documented default when the key is absent rather than erroring, per §6:
// "Missing keys must return a documented default."
const (
	KeyWifiSSID             = "wifi_ssid"
	KeyWifiPass             = "wifi_pass"
	KeyHostname             = "hostname"
	KeyStratumURL           = "stratum_url"
	KeyStratumPort          = "stratum_port"
	KeyStratumUser          = "stratum_user"
	KeyStratumPass          = "stratum_pass"
	KeyFallbackStratumURL   = "fallback_stratum_url"
	KeyFallbackStratumPort  = "fallback_stratum_port"
	KeyFallbackStratumUser  = "fallback_stratum_user"
	KeyFallbackStratumPass  = "fallback_stratum_pass"
	KeyAsicModel            = "asic_model"
	KeyAsicFrequency        = "asic_frequency"
	KeyAsicVoltage          = "asic_voltage"
	KeyBestDifficulty       = "best_difficulty"
	KeyOverheatMode         = "overheat_mode"
)

// defaults mirrors the original firmware's NVS defaults, translated to the
// string form every value is stored as.
var defaults = map[string]string{
	KeyWifiSSID:            "",
	KeyWifiPass:            "",
	KeyHostname:            "bitaxe",
	KeyStratumURL:          "public-pool.io",
	KeyStratumPort:         "21496",
	KeyStratumUser:         "",
	KeyStratumPass:         "x",
	KeyFallbackStratumURL:  "solo.ckpool.org",
	KeyFallbackStratumPort: "3333",
	KeyFallbackStratumUser: "",
	KeyFallbackStratumPass: "x",
	KeyAsicModel:           "BM1366",
	KeyAsicFrequency:       "485",
	KeyAsicVoltage:         "1200",
	KeyBestDifficulty:      "0",
	KeyOverheatMode:        "0",
}

// Store is the key-value settings collaborator, backed by a single SQLite
// table. All access goes through a mutex: this is a low-frequency control
// path (operator config, periodic best-difficulty persistence), never the
// mining hot path, so a coarse lock is the right tradeoff over per-row
// transactions.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite-backed settings store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer avoids page-cache corruption under concurrent access

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create settings table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw string value for key, or its documented default if
// the key has never been set. An unknown key (not in defaults either)
// returns an empty string — this is a programmer error, not a runtime one.
func (s *Store) Get(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return defaults[key]
	}
	return value
}

// Set persists key=value, overwriting any prior value.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set settings key %q: %w", key, err)
	}
	return nil
}

// GetInt returns key parsed as an int, or its documented default on a
// missing key or a parse failure (a corrupt row is treated as absent).
func (s *Store) GetInt(key string) int {
	raw := s.Get(key)
	n, err := strconv.Atoi(raw)
	if err != nil {
		n, _ = strconv.Atoi(defaults[key])
	}
	return n
}

// SetInt persists an integer value.
func (s *Store) SetInt(key string, value int) error {
	return s.Set(key, strconv.Itoa(value))
}

// GetUint64 returns key parsed as a uint64, used for best_difficulty which
// can exceed int range at high difficulties.
func (s *Store) GetUint64(key string) uint64 {
	raw := s.Get(key)
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		n, _ = strconv.ParseUint(defaults[key], 10, 64)
	}
	return n
}

// SetUint64 persists a uint64 value.
func (s *Store) SetUint64(key string, value uint64) error {
	return s.Set(key, strconv.FormatUint(value, 10))
}

// GetBool interprets key as a u16 bool-ish value: nonzero is true, matching
// overheat_mode's on-wire representation in the original firmware's NVS.
func (s *Store) GetBool(key string) bool {
	return s.GetInt(key) != 0
}

// SetBool persists a bool as 0 or 1.
func (s *Store) SetBool(key string, value bool) error {
	if value {
		return s.SetInt(key, 1)
	}
	return s.SetInt(key, 0)
}

// BestDifficulty returns the all-time best share difficulty the core has
// recorded, as an integer floor (the original firmware's NVS field is
// integral; sub-1.0 differences are not tracked here).
func (s *Store) BestDifficulty() uint64 {
	return s.GetUint64(KeyBestDifficulty)
}

// SetBestDifficulty persists a new all-time best, but only if it exceeds
// the current record — callers do not need to check first.
func (s *Store) SetBestDifficulty(difficulty uint64) error {
	s.mu.Lock()
	current := s.unlockedGetUint64(KeyBestDifficulty)
	s.mu.Unlock()
	if difficulty <= current {
		return nil
	}
	return s.SetUint64(KeyBestDifficulty, difficulty)
}

func (s *Store) unlockedGetUint64(key string) uint64 {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		value = defaults[key]
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		n, _ = strconv.ParseUint(defaults[key], 10, 64)
	}
	return n
}
