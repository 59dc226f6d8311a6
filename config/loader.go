package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks the environment variables read as configuration.
	// DAYLOOP_SERVER__PORT sets server.port.
	EnvPrefix  = "DAYLOOP_"
	envNesting = "__"
	delim      = "."
)

// DefaultSearchPaths are tried in order when no file is named.
var DefaultSearchPaths = []string{
	"dayloop.yaml",
	"dayloop.yml",
	"dayloop.json",
	"dayloop.toml",
	"config/dayloop.yaml",
	"/etc/dayloop/dayloop.yaml",
}

// Loader layers the configuration sources. A Loader can be reused; every
// Load starts over, so keys removed from the file fall back to defaults.
type Loader struct {
	searchPaths []string

	k    *koanf.Koanf
	used string
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithSearchPaths replaces DefaultSearchPaths.
func WithSearchPaths(paths ...string) LoaderOption {
	return func(l *Loader) { l.searchPaths = paths }
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{searchPaths: DefaultSearchPaths}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads defaults, then path (or the first search path that exists
// when path is empty), then the environment, then overrides, and
// validates the result.
func (l *Loader) Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(delim)
	l.used = ""

	if err := k.Load(confmap.Provider(flatten(DefaultConfig()), delim), nil); err != nil {
		return nil, fmt.Errorf("config: defaults: %w", err)
	}

	if path == "" {
		path = l.search()
	}
	if path != "" {
		if err := loadFile(k, path); err != nil {
			return nil, err
		}
		l.used = path
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, delim, l.envKey), nil); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, delim), nil); err != nil {
			return nil, fmt.Errorf("config: overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l.k = k
	return &cfg, nil
}

// File is the configuration file the last successful Load read, if any.
func (l *Loader) File() string { return l.used }

// Keys lists every key of the last successful Load with its value.
func (l *Loader) Keys() map[string]any {
	if l.k == nil {
		return nil
	}
	return l.k.All()
}

func (l *Loader) search() string {
	for _, p := range l.searchPaths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// envKey maps DAYLOOP_MEMORY__SHORT_TERM_KEEP to memory.short_term_keep.
// Values with commas become lists, for keys such as simulation.actors.
func (l *Loader) envKey(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, envNesting, delim)
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return key, parts
	}
	return key, value
}

func loadFile(k *koanf.Koanf, path string) error {
	parser, err := ParserFor(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: file %s not found", path)
		}
		return fmt.Errorf("config: %w", err)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ParserFor picks a koanf parser by file extension.
func ParserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	case ".toml":
		return TOMLParser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported file format %q", ext)
	}
}

// flatten turns v into dotted mapstructure keys, so the defaults merge
// with later sources key by key instead of section by section.
func flatten(v any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", reflect.Indirect(reflect.ValueOf(v)))
	return out
}

func flattenInto(out map[string]any, prefix string, val reflect.Value) {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		name := f.Tag.Get("mapstructure")
		if !f.IsExported() || name == "" || name == "-" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + delim + name
		}

		fv := val.Field(i)
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				continue
			}
			fv = fv.Elem()
		}
		if fv.Kind() == reflect.Struct {
			flattenInto(out, key, fv)
			continue
		}
		out[key] = fv.Interface()
	}
}

// Load reads the configuration with a fresh Loader.
func Load(path string, overrides map[string]any) (*Config, error) {
	return NewLoader().Load(path, overrides)
}
