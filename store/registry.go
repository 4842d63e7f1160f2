package store

import (
	"fmt"

	"go.uber.org/zap"
)

// Config is the minimal JSON object every engine's Open accepts: a version
// tag and a directory. Raw holds engine-specific extras supplied by the
// caller (e.g. tikv's "pd_endpoints", lsmkv's "compression"); it is
// excluded from JSON encoding, and nothing in this package decodes a JSON
// document into Config or fills Raw.
type Config struct {
	Version   string `json:"version"`
	Directory string `json:"directory"`
	Raw       map[string]any `json:"-"`
}

// OpenFunc constructs an Engine from a Config.
type OpenFunc func(cfg Config) (Engine, error)

// Registration names one engine driver.
type Registration struct {
	Name  string // unique name, e.g. "memkv", "btreekv", "lsmkv", "tikv"
	Title string
	Open  OpenFunc
}

var registry = make(map[string]*Registration)

// Register adds a driver to the registry. It treats a blank or duplicate
// name as a programming error, not a runtime condition — this only ever
// runs from a package init().
func Register(reg *Registration) {
	if reg.Name == "" {
		zlog.Fatal("driver name cannot be blank")
	} else if _, ok := registry[reg.Name]; ok {
		zlog.Fatal("driver already registered", zap.String("name", reg.Name))
	}
	registry[reg.Name] = reg
}

// Open looks up driver by name and opens it with cfg.
func Open(driver string, cfg Config) (Engine, error) {
	reg, ok := registry[driver]
	if !ok {
		return nil, NewError(ErrorArgsWrong, fmt.Sprintf("no such engine driver registered: %q", driver))
	}
	return reg.Open(cfg)
}

// ByName returns a registered driver's Registration, or nil.
func ByName(name string) *Registration {
	return registry[name]
}

// Drivers lists every registered driver name.
func Drivers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
