package config_test

import (
	"testing"

	"github.com/leftmike/pax/config"
	"github.com/leftmike/pax/flags"
	"github.com/leftmike/pax/spill"
)

func lookup(t *testing.T, cfg *config.Config, name string) config.Variable {
	t.Helper()

	for _, v := range cfg.Variables() {
		if v.Name == name {
			return v
		}
	}
	t.Fatalf("Variables() missing %s", name)
	return config.Variable{}
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	err := cfg.Validate()
	if err != nil {
		t.Errorf("Validate() failed with %s", err)
	}

	if v := lookup(t, cfg, "tile_group_capacity"); v.Value != "1024" || v.By != config.ByDefault {
		t.Errorf("tile_group_capacity got %+v want 1024 by default", v)
	}
	if v := lookup(t, cfg, "read_validation"); v.Value != "false" {
		t.Errorf("read_validation got %+v want false", v)
	}

	layout, err := cfg.TableLayout(5)
	if err != nil {
		t.Fatal(err)
	}
	if layout.TileCount() != 3 {
		t.Errorf("TableLayout(5).TileCount() got %d want 3", layout.TileCount())
	}
	comp, err := cfg.Compression()
	if err != nil {
		t.Fatal(err)
	}
	if comp != spill.SnappyCompression {
		t.Errorf("Compression() got %s want %s", comp, spill.SnappyCompression)
	}
}

func TestLoad(t *testing.T) {
	cfg := config.Default()
	err := cfg.FlagSet().Parse([]string{"--layout", "column", "--read-validation"})
	if err != nil {
		t.Fatalf("Parse() failed with %s", err)
	}

	err = cfg.Load([]byte(`
tile_group_capacity = 64
layout = "row"
spill_store = "bbolt"
bitmap_recheck = false
`))
	if err != nil {
		t.Fatalf("Load() failed with %s", err)
	}

	if cfg.TileGroupCapacity != 64 {
		t.Errorf("TileGroupCapacity got %d want 64", cfg.TileGroupCapacity)
	}
	if cfg.Layout != "column" {
		t.Errorf("Layout got %s want column", cfg.Layout)
	}
	if cfg.SpillStore != "bbolt" {
		t.Errorf("SpillStore got %s want bbolt", cfg.SpillStore)
	}
	if !cfg.Flags.GetFlag(flags.ReadValidation) {
		t.Error("ReadValidation got false want true")
	}
	if cfg.Flags.GetFlag(flags.BitmapRecheck) {
		t.Error("BitmapRecheck got true want false")
	}

	cases := []struct {
		name, by string
	}{
		{"tile_group_capacity", config.ByConfig},
		{"layout", config.ByFlag},
		{"read_validation", config.ByFlag},
		{"bitmap_recheck", config.ByConfig},
		{"join_partitions", config.ByDefault},
	}
	for _, c := range cases {
		if v := lookup(t, cfg, c.name); v.By != c.by {
			t.Errorf("Variables(%s) got %s want %s", c.name, v.By, c.by)
		}
	}

	err = cfg.Validate()
	if err != nil {
		t.Errorf("Validate() failed with %s", err)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []string{
		`unknown_variable = 1`,
		`tile_group_capacity = "many"`,
		`read_validation = "yes"`,
		`layout = "row`,
	}

	for _, c := range cases {
		cfg := config.Default()
		err := cfg.Load([]byte(c))
		if err == nil {
			t.Errorf("Load(%q) did not fail", c)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name, val string
	}{
		{"tile_group_capacity", "0"},
		{"layout", "diagonal"},
		{"join_memory_rows", "-1"},
		{"join_partitions", "1"},
		{"join_max_depth", "-2"},
		{"spill_store", "tape"},
		{"spill_compression", "lz4"},
		{"log_level", "chatty"},
	}

	for _, c := range cases {
		cfg := config.Default()
		err := cfg.Set(c.name, c.val)
		if err != nil {
			t.Fatalf("Set(%s, %s) failed with %s", c.name, c.val, err)
		}
		err = cfg.Validate()
		if err == nil {
			t.Errorf("Validate(%s = %s) did not fail", c.name, c.val)
		}
	}

	cfg := config.Default()
	err := cfg.Set("no_such_variable", "1")
	if err == nil {
		t.Errorf("Set(no_such_variable) did not fail")
	}
}
