package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://ticket-auction.schemas.local/config.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("config schema load failed: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("config schema compile failed: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// File is the YAML layout of a node config file. Absent keys keep the
// environment value.
type File struct {
	LogLevel        *string `yaml:"log_level"`
	Denom           *string `yaml:"denom"`
	AddressPrefix   *string `yaml:"address_prefix"`
	AdminAddress    *string `yaml:"admin_address"`
	TreasuryAddress *string `yaml:"treasury_address"`
	Store           struct {
		Driver        *string `yaml:"driver"`
		DatabaseURL   *string `yaml:"database_url"`
		RedisAddr     *string `yaml:"redis_addr"`
		RedisPassword *string `yaml:"redis_password"`
		RedisDB       *int    `yaml:"redis_db"`
		BadgerPath    *string `yaml:"badger_path"`
	} `yaml:"store"`
	Gateway struct {
		RPS   *float64 `yaml:"rps"`
		Burst *int     `yaml:"burst"`
	} `yaml:"gateway"`
	OTel struct {
		Enabled  *bool   `yaml:"enabled"`
		Endpoint *string `yaml:"endpoint"`
	} `yaml:"otel"`
}

// LoadFile reads a YAML config file, validates it against the embedded
// schema and overlays it on the environment configuration.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	return Parse(data)
}

// Parse is LoadFile over an in-memory document.
func Parse(data []byte) (*Config, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg := Load()
	f.apply(cfg)
	return cfg, nil
}

// Validate checks a YAML document against the config schema.
func Validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees JSON types only.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("config schema validation failed: %w", err)
	}
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func (f *File) apply(cfg *Config) {
	set(&cfg.LogLevel, f.LogLevel)
	set(&cfg.Denom, f.Denom)
	set(&cfg.AddressPrefix, f.AddressPrefix)
	set(&cfg.AdminAddress, f.AdminAddress)
	set(&cfg.TreasuryAddress, f.TreasuryAddress)
	set(&cfg.StoreDriver, f.Store.Driver)
	set(&cfg.DatabaseURL, f.Store.DatabaseURL)
	set(&cfg.RedisAddr, f.Store.RedisAddr)
	set(&cfg.RedisPassword, f.Store.RedisPassword)
	set(&cfg.RedisDB, f.Store.RedisDB)
	set(&cfg.BadgerPath, f.Store.BadgerPath)
	set(&cfg.GatewayRPS, f.Gateway.RPS)
	set(&cfg.GatewayBurst, f.Gateway.Burst)
	set(&cfg.OTelEnabled, f.OTel.Enabled)
	set(&cfg.OTelEndpoint, f.OTel.Endpoint)
}
