package utils

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vitwit/walletpay/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ParseConfig parses a YAML (or JSON) shop configuration, applies defaults and
// validates it, including the merchant address for the configured network.
func ParseConfig(data []byte) (*types.Config, error) {
	var cfg types.Config

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, types.ErrConfig.Withf("failed to parse config: %v", err).Wrap(err)
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateConfig applies defaults to cfg and validates it in place.
func ValidateConfig(cfg *types.Config) error {
	cfg.ApplyDefaults()

	if err := validate.Struct(cfg); err != nil {
		return types.ErrConfig.Withf("validation failed: %v", err).Wrap(err)
	}

	if cfg.Network.Family() == "" {
		return types.ErrUnsupportedNetwork.Withf("unsupported network: %s", cfg.Network)
	}

	if cfg.Network.IsCosmos() && (cfg.GRPCUrl == "" || cfg.Denom == "") {
		return types.ErrConfig.Withf("network %s requires grpcUrl and denom", cfg.Network)
	}

	if err := ValidateAddressForNetwork(cfg.MerchantAddress, cfg.Network); err != nil {
		return types.ErrConfig.Withf("invalid merchant address: %v", err).Wrap(err)
	}

	return nil
}

// LoadConfig reads and parses the config file at path.
func LoadConfig(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return ParseConfig(data)
}
