package config

import (
	"fmt"
	"time"

	"github.com/Harardin/nft-custody/pkg/chain"
	"github.com/Harardin/nft-custody/pkg/consul"
	"github.com/Harardin/nft-custody/pkg/notify"
	"github.com/Harardin/nft-custody/pkg/postgres"
	"github.com/Harardin/nft-custody/pkg/prometheus"
	"github.com/Harardin/nft-custody/pkg/rabbitbus"
	"github.com/Harardin/nft-custody/pkg/utils"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type DiscoveryConfig struct {
	PostgresAddrs consul.GetServiceAddressResponse `json:"POSTGRES_ADDRS"`
	RabbitAddrs   consul.GetServiceAddressResponse `json:"RABBIT_ADDRS"`
}

type GlobalConfig struct {
	SentryDSN string `json:"SENTRY_DSN" secret:"true"`
}

type CustodyConfig struct {
	// Timelock applied to every deposit - default 7 days
	Timelock time.Duration `json:"CUSTODY_TIMELOCK" default:"168h"`
	// Deployer label, contract addresses are derived from it
	Deployer string `json:"CUSTODY_DEPLOYER" default:"nft-custody"`
	// EventsBuffer - size of async events queue
	EventsBuffer int `json:"CUSTODY_EVENTS_BUFFER" default:"256"`
}

type LocalConfig struct {
	ServiceName string `json:"SERVICE_NAME" default:"nft-custody"`
	StandName   string `json:"CONSUL_STAND_NAME" env:"CONSUL_STAND_NAME"`
	HTTPPort    string `json:"HTTP_PORT" default:"20001"`
	LogLevel    string `json:"LOG_LEVEL" default:"info"`
	Custody     CustodyConfig
	Rabbit      rabbitbus.Config
	Prometheus  prometheus.Config
	Postgres    postgres.Config
	Notify      notify.Config

	// Discovery services
	// This items will be pass to the DiscoveryConfig
	DiscoveryPostgresService string `json:"DISCOVERY_POSTGRES_SERVICE" discovery:"POSTGRES_ADDRS"`
	DiscoveryRabbitService   string `json:"DISCOVERY_RABBIT_SERVICE" discovery:"RABBIT_ADDRS"`
}

type Config struct {
	DiscoveryConfig
	GlobalConfig
	LocalConfig
}

// Validate discovery config
func (c *DiscoveryConfig) Validate(local LocalConfig) error {
	rules := make([]*validation.FieldRules, 0, 2)
	if !local.Postgres.Disabled {
		rules = append(rules, validation.Field(&c.PostgresAddrs, validation.Required))
	}
	if !local.Rabbit.Disabled {
		rules = append(rules, validation.Field(&c.RabbitAddrs, validation.Required))
	}

	return validation.ValidateStruct(c, rules...)
}

// Validate global config
func (c *GlobalConfig) Validate() error {
	return nil
}

func (c *CustodyConfig) Validate() error {
	return validation.ValidateStruct(
		c,
		validation.Field(&c.Timelock, validation.Min(time.Duration(0))),
		validation.Field(&c.Deployer, validation.Required),
		validation.Field(&c.EventsBuffer, validation.Min(1)),
	)
}

// Validate local config
func (c *LocalConfig) Validate() error {
	if err := c.Custody.Validate(); err != nil {
		return fmt.Errorf("custody: %w", err)
	}

	if err := c.Postgres.Validate(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if err := c.Rabbit.Validate(); err != nil {
		return fmt.Errorf("rabbit: %w", err)
	}

	// Validate prometheus
	if !c.Prometheus.Disabled {
		if err := validation.ValidateStruct(
			&c.Prometheus,
			validation.Field(&c.Prometheus.Port, validation.Required),
			validation.Field(&c.Prometheus.Endpoint, validation.Required),
		); err != nil {
			return fmt.Errorf("prometheus: %w", err)
		}
	}

	if c.StandName != "local" {
		rules := make([]*validation.FieldRules, 0, 2)
		if !c.Postgres.Disabled {
			rules = append(rules, validation.Field(&c.DiscoveryPostgresService, validation.Required))
		}
		if !c.Rabbit.Disabled {
			rules = append(rules, validation.Field(&c.DiscoveryRabbitService, validation.Required))
		}
		if err := validation.ValidateStruct(c, rules...); err != nil {
			return err
		}
	}

	return validation.ValidateStruct(
		c,
		validation.Field(&c.ServiceName, validation.Required),
		validation.Field(&c.StandName, validation.Required),
		validation.Field(&c.HTTPPort, validation.Required),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
	)
}

// Validate config
func (s *Config) Validate() error {
	if err := s.GlobalConfig.Validate(); err != nil {
		return err
	}

	if err := s.LocalConfig.Validate(); err != nil {
		return err
	}

	// skip validating discovery service for the local development
	if s.LocalConfig.StandName != "local" {
		if err := s.DiscoveryConfig.Validate(s.LocalConfig); err != nil {
			return err
		}
	}

	return nil
}

// Deployer returns address contracts of the service are deployed from
func (c *Config) Deployer() chain.Address {
	return chain.DeriveAddress(c.Custody.Deployer)
}

// GetRabbitAddr - return random rabbit address
//
// If rabbit discovery addresses are empty, the address will be used from the `RABBIT_ADDR` env
func (c *Config) GetRabbitAddr() string {
	return pickAddr(c.Rabbit.Addr, c.RabbitAddrs)
}

// GetPostgresAddr - return random postgres address
//
// If postgres discovery addresses are empty, the address will be used from the `POSTGRES_ADDR` env
func (c *Config) GetPostgresAddr() string {
	return pickAddr(c.Postgres.Addr, c.PostgresAddrs)
}

func pickAddr(fallback string, addrs consul.GetServiceAddressResponse) string {
	if len(addrs) == 0 {
		return fallback
	}

	addrParams := addrs[utils.GetRandomInt(0, len(addrs))]
	return fmt.Sprintf("%s:%d", addrParams.Address, addrParams.Port)
}
