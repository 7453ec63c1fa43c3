package config

import (
	"os"
	"strconv"
	"strings"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	KafkaBrokers []string

	RegistryOwner            string
	RegistryWhitelistEnabled bool
	MarketplaceOwner         string
	SettlementOperator       string
	MarketplaceFeeBps        int64
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "arkiv"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	registryOwner := os.Getenv("REGISTRY_OWNER")
	if registryOwner == "" {
		registryOwner = "arkiv-admin"
	}
	marketplaceOwner := os.Getenv("MARKETPLACE_OWNER")
	if marketplaceOwner == "" {
		marketplaceOwner = registryOwner
	}
	operator := os.Getenv("SETTLEMENT_OPERATOR")
	if operator == "" {
		operator = "arkiv-settlement"
	}

	return Config{
		ServiceName:  service,
		HTTPPort:     port,
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		KafkaBrokers: brokers,

		RegistryOwner:            registryOwner,
		RegistryWhitelistEnabled: envBool("REGISTRY_WHITELIST_ENABLED", false),
		MarketplaceOwner:         marketplaceOwner,
		SettlementOperator:       operator,
		MarketplaceFeeBps:        envInt64("MARKETPLACE_FEE_BPS", 250),
	}, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt64(name string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return value
}
