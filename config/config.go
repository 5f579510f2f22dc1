package config

import (
	"fmt"
	"io/ioutil"
	"sort"
	"strings"

	"github.com/hashicorp/hcl"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/leftmike/pax/flags"
	"github.com/leftmike/pax/spill"
	"github.com/leftmike/pax/tile"
)

const (
	ByDefault = "default"
	ByConfig  = "config"
	ByFlag    = "flag"
)

// Config holds the settings of an engine. Each setting may come from its default, a config
// file, or a command line flag; a flag takes precedence over the config file.
type Config struct {
	TileGroupCapacity int
	Layout            string
	JoinMemoryRows    int
	JoinPartitions    int
	JoinMaxDepth      int
	SpillStore        string
	SpillDir          string
	SpillCompression  string
	LogFile           string
	LogLevel          string
	Flags             flags.Flags

	fs   *pflag.FlagSet
	vars map[string]*pflag.Flag
	by   map[string]string
}

// Variable is a setting as listed by `pax config`.
type Variable struct {
	Name  string
	By    string
	Value string
}

func flagName(name string) string {
	return strings.ReplaceAll(name, "_", "-")
}

func Default() *Config {
	cfg := &Config{
		TileGroupCapacity: 1024,
		Layout:            "hybrid",
		JoinMemoryRows:    64 * 1024,
		JoinPartitions:    16,
		JoinMaxDepth:      3,
		SpillStore:        "memory",
		SpillDir:          "testdata",
		SpillCompression:  "snappy",
		LogFile:           "pax.log",
		LogLevel:          "info",
		Flags:             flags.Default(),
		fs:                pflag.NewFlagSet("pax", pflag.ContinueOnError),
		vars:              map[string]*pflag.Flag{},
		by:                map[string]string{},
	}

	cfg.intVar(&cfg.TileGroupCapacity, "tile_group_capacity", "`slots` in each tile group")
	cfg.stringVar(&cfg.Layout, "layout", "tile layout of new tables: row, column, or hybrid")
	cfg.intVar(&cfg.JoinMemoryRows, "join_memory_rows",
		"`rows` of a hash join build side held in memory before spilling")
	cfg.intVar(&cfg.JoinPartitions, "join_partitions", "spill `partitions` of a grace hash join")
	cfg.intVar(&cfg.JoinMaxDepth, "join_max_depth",
		"number of times a grace hash join partition may be repartitioned")
	cfg.stringVar(&cfg.SpillStore, "spill_store",
		"store for spilled rows: memory, bbolt, badger, or pebble")
	cfg.stringVar(&cfg.SpillDir, "spill_dir", "`directory` for spilled rows")
	cfg.stringVar(&cfg.SpillCompression, "spill_compression",
		"compression of spilled rows: none, snappy, or zstd")
	cfg.stringVar(&cfg.LogFile, "log_file", "`file` to use for logging")
	cfg.stringVar(&cfg.LogLevel, "log_level",
		"log level: trace, debug, info, warn, error, fatal, or panic")

	flags.ListFlags(
		func(nam string, f flags.Flag) {
			cfg.fs.BoolVar(&cfg.Flags[f], flagName(nam), cfg.Flags[f], "feature flag")
			cfg.vars[nam] = cfg.fs.Lookup(flagName(nam))
		})

	return cfg
}

func (cfg *Config) intVar(p *int, name, usage string) {
	cfg.fs.IntVar(p, flagName(name), *p, usage)
	cfg.vars[name] = cfg.fs.Lookup(flagName(name))
}

func (cfg *Config) stringVar(p *string, name, usage string) {
	cfg.fs.StringVar(p, flagName(name), *p, usage)
	cfg.vars[name] = cfg.fs.Lookup(flagName(name))
}

// FlagSet returns the flags for the settings; add it to a command's flags.
func (cfg *Config) FlagSet() *pflag.FlagSet {
	return cfg.fs
}

// Set sets the named setting from a string, as if by the config file.
func (cfg *Config) Set(name, val string) error {
	flg, ok := cfg.vars[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("config: %s is not a config variable", name)
	}
	err := flg.Value.Set(val)
	if err != nil {
		return fmt.Errorf("config: %s: %s", name, err)
	}
	cfg.by[strings.ToLower(name)] = ByConfig
	return nil
}

// Load sets each variable in the HCL document b, except for those set by a flag.
func (cfg *Config) Load(b []byte) error {
	var vals map[string]interface{}
	err := hcl.Decode(&vals, string(b))
	if err != nil {
		return fmt.Errorf("config: %s", err)
	}

	for name, val := range vals {
		flg, ok := cfg.vars[name]
		if !ok {
			return fmt.Errorf("config: %s is not a config variable", name)
		}
		if flg.Changed {
			continue
		}
		if flg.Value.Type() == "bool" {
			if _, ok := val.(bool); !ok {
				return fmt.Errorf("config: %s: expected boolean value; got %v", name, val)
			}
		}
		err := flg.Value.Set(fmt.Sprintf("%v", val))
		if err != nil {
			return fmt.Errorf("config: %s: %s", name, err)
		}
		cfg.by[name] = ByConfig
	}

	log.WithField("variables", len(vals)).Debug("config: loaded")
	return nil
}

func (cfg *Config) LoadFile(filename string) error {
	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("config: %s", err)
	}
	return cfg.Load(b)
}

// Validate checks that each setting has a usable value.
func (cfg *Config) Validate() error {
	if cfg.TileGroupCapacity <= 0 {
		return fmt.Errorf("config: tile_group_capacity must be positive: %d",
			cfg.TileGroupCapacity)
	}
	_, err := tile.ParseLayout(cfg.Layout, 1)
	if err != nil {
		return fmt.Errorf("config: %s", err)
	}
	if cfg.JoinMemoryRows <= 0 {
		return fmt.Errorf("config: join_memory_rows must be positive: %d", cfg.JoinMemoryRows)
	}
	if cfg.JoinPartitions < 2 {
		return fmt.Errorf("config: join_partitions must be at least 2: %d", cfg.JoinPartitions)
	}
	if cfg.JoinMaxDepth < 0 {
		return fmt.Errorf("config: join_max_depth must not be negative: %d", cfg.JoinMaxDepth)
	}
	switch strings.ToLower(cfg.SpillStore) {
	case "memory", "bbolt", "badger", "pebble":
	default:
		return fmt.Errorf("config: got %s for spill_store; want memory, bbolt, badger, or pebble",
			cfg.SpillStore)
	}
	_, err = spill.ParseCompression(cfg.SpillCompression)
	if err != nil {
		return fmt.Errorf("config: %s", err)
	}
	_, err = log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("config: %s", err)
	}
	return nil
}

// TableLayout returns the configured layout for a table with numCols columns.
func (cfg *Config) TableLayout(numCols int) (tile.Layout, error) {
	return tile.ParseLayout(cfg.Layout, numCols)
}

func (cfg *Config) Compression() (spill.Compression, error) {
	return spill.ParseCompression(cfg.SpillCompression)
}

// Variables returns the settings, in name order, along with where each value came from.
func (cfg *Config) Variables() []Variable {
	names := make([]string, 0, len(cfg.vars))
	for name := range cfg.vars {
		names = append(names, name)
	}
	sort.Strings(names)

	vars := make([]Variable, 0, len(names))
	for _, name := range names {
		flg := cfg.vars[name]
		by := ByDefault
		if flg.Changed {
			by = ByFlag
		} else if b, ok := cfg.by[name]; ok {
			by = b
		}
		vars = append(vars,
			Variable{
				Name:  name,
				By:    by,
				Value: flg.Value.String(),
			})
	}
	return vars
}
