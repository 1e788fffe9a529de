package juzud

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	ListenAddress      string  `toml:"ListenAddress"`
	DataDir            string  `toml:"DataDir"`
	Environment        string  `toml:"Environment"`
	LogLevel           string  `toml:"LogLevel"`
	Admin              string  `toml:"Admin"`
	FactoryAddress     string  `toml:"FactoryAddress"`
	FactoryVersion     uint64  `toml:"FactoryVersion"`
	StakingAPR         uint64  `toml:"StakingAPR"`
	BaseFeeRequirement string  `toml:"BaseFeeRequirement"`
	RewardToken        string  `toml:"RewardToken"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

// Load reads the service configuration from the given path, writing a
// default file when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8545"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if c.FactoryVersion == 0 {
		c.FactoryVersion = 1
	}
	if c.RateLimitPerSecond <= 0 {
		c.RateLimitPerSecond = 50
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 100
	}
	if strings.TrimSpace(c.BaseFeeRequirement) == "" {
		c.BaseFeeRequirement = "0"
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Admin) == "" {
		return fmt.Errorf("config: Admin address required")
	}
	if !common.IsHexAddress(c.Admin) {
		return fmt.Errorf("config: Admin %q is not a hex address", c.Admin)
	}
	if c.FactoryAddress != "" && !common.IsHexAddress(c.FactoryAddress) {
		return fmt.Errorf("config: FactoryAddress %q is not a hex address", c.FactoryAddress)
	}
	if c.RewardToken != "" && !common.IsHexAddress(c.RewardToken) {
		return fmt.Errorf("config: RewardToken %q is not a hex address", c.RewardToken)
	}
	return nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:      ":8545",
		DataDir:            "",
		Environment:        "local",
		LogLevel:           "info",
		Admin:              "0x0000000000000000000000000000000000000001",
		FactoryAddress:     "0x0000000000000000000000000000000000001000",
		FactoryVersion:     1,
		StakingAPR:         365250,
		BaseFeeRequirement: "0",
		RewardToken:        "0x0000000000000000000000000000000000002000",
		RateLimitPerSecond: 50,
		RateLimitBurst:     100,
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
