package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dot5enko/tessera/connector"
)

func load(t *testing.T, args []string) (*Config, error) {
	t.Helper()

	c := NewConfig()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	c.Flags(flags)

	if err := flags.Parse(args); err != nil {
		t.Fatal(err)
	}

	return c, Apply(viper.New(), flags)
}

func TestPriority(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tessera.toml")
	body := "table = \"from_file\"\nworkers = 4\nlog-level = \"debug\"\ntransport = \"memory\"\n"
	if err := os.WriteFile(file, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TESSERA_WORKERS", "2")
	t.Setenv("TESSERA_CACHE_SIZE", "16")

	c, err := load(t, []string{"--config", file, "--transport", "remote"})
	if err != nil {
		t.Fatal(err)
	}

	want := NewConfig()
	want.Table = "from_file"
	want.Workers = 2
	want.CacheSize = 16
	want.LogLevel = "debug"
	want.Transport = "remote"

	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownFileOption(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tessera.toml")
	if err := os.WriteFile(file, []byte("colour = \"blue\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := load(t, []string{"--config", file}); err == nil || !strings.Contains(err.Error(), "colour") {
		t.Errorf("expected invalid option error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	c := NewConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %s", err)
	}

	c.LogLevel = "loud"
	if err := c.Validate(); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("expected ErrInvalidLogLevel, got %v", err)
	}

	c = NewConfig()
	c.Transport = "pigeon"
	if err := c.Validate(); !errors.Is(err, connector.ErrUnknownTransport) {
		t.Errorf("expected ErrUnknownTransport, got %v", err)
	}

	c = NewConfig()
	c.Transport = "socket"
	opts, err := c.ConnectorOptions(nil)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Transport != connector.Remote || opts.Timeout.String() != "30s" {
		t.Errorf("unexpected connector options %+v", opts)
	}
}

func TestTOMLRoundTrip(t *testing.T) {
	out, err := NewConfig().TOML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "queue-size") {
		t.Errorf("generated config lacks queue-size:\n%s", out)
	}

	file := filepath.Join(t.TempDir(), "generated.toml")
	if err := os.WriteFile(file, out, 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := load(t, []string{"--config", file})
	if err != nil {
		t.Fatalf("generated config should load: %s", err)
	}
	if diff := cmp.Diff(NewConfig(), c); diff != "" {
		t.Errorf("generated config mismatch (-want +got):\n%s", diff)
	}
}
