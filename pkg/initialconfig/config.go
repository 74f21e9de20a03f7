package initialconfig

import (
	"context"
	"fmt"
	"os"
	"path"
	"reflect"
	"time"

	"github.com/Harardin/nft-custody/internal/config"
	"github.com/Harardin/nft-custody/pkg/consul"
	"github.com/Harardin/nft-custody/pkg/log"
	"github.com/Harardin/nft-custody/pkg/secrets"
	"github.com/Harardin/nft-custody/pkg/utils"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigdotenv"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type IConfig interface {
	Validate() error
}

type ConfigOptions struct {
	Validation bool
	EnvPath    string
}

type ConfigOption func(*ConfigOptions)

func WithValidation(v bool) ConfigOption {
	return func(o *ConfigOptions) { o.Validation = v }
}

// WithEnvPath sets directory of the `.env` file, default is working directory
func WithEnvPath(p string) ConfigOption {
	return func(o *ConfigOptions) { o.EnvPath = p }
}

// bootstrap holds addresses of the remote config stores, it is always read from env
type bootstrap struct {
	VaultEnabled      bool   `json:"VAULT_ENABLED" default:"true"`
	VaultGeneralUrl   string `json:"VAULT_GENERAL_URL"`
	VaultGeneralToken string `json:"VAULT_GENERAL_TOKEN"`
	VaultMountPath    string `json:"VAULT_MOUNT_PATH"`

	ConsulEnabled      bool   `json:"CONSUL_ENABLED" default:"true"`
	ConsulGeneralUrl   string `json:"CONSUL_GENERAL_URL"`
	ConsulGeneralToken string `json:"CONSUL_GENERAL_TOKEN"`
}

// remote reports whether values are overlaid from consul and vault
func (b *bootstrap) remote() bool {
	return b.ConsulEnabled && b.VaultEnabled
}

func (b *bootstrap) Validate() error {
	return validation.ValidateStruct(
		b,
		validation.Field(&b.ConsulGeneralUrl, validation.When(b.ConsulEnabled, validation.Required)),
		validation.Field(&b.VaultGeneralUrl, validation.When(b.VaultEnabled, validation.Required)),
		validation.Field(&b.VaultGeneralToken, validation.When(b.VaultEnabled, validation.Required)),
		validation.Field(&b.VaultMountPath, validation.When(b.VaultEnabled, validation.Required)),
	)
}

// LoadConfig fills mainConfig from env and, when consul and vault are enabled,
// from consul kv with secrets resolved through vault. Remote values are polled
// afterwards and names of changed keys are sent to the returned channel.
func LoadConfig(ctx context.Context, l log.Logger, mainConfig *config.Config) chan []string {
	boot := new(bootstrap)
	if err := LoadConfigFromEnv(boot); err != nil {
		l.Fatalf("failed to load bootstrap config: %v", err)
	}

	if err := LoadConfigFromEnv(mainConfig, WithValidation(false)); err != nil {
		l.Fatalf("failed to load local config: %v", err)
	}

	changed := make(chan []string, 1)

	var (
		remote *Remote
		values Values
	)
	if boot.remote() {
		remote = connectRemote(ctx, l, boot, mainConfig)

		var err error
		if values, err = remote.Fetch(ctx, mainConfig); err != nil {
			l.Fatalf("failed to fetch remote config: %v", err)
		}
		if err := Apply(mainConfig, values); err != nil {
			l.Fatalf("failed to apply remote config: %v", err)
		}
	}

	if err := mainConfig.Validate(); err != nil {
		l.Fatalf("failed to validate config: %v", err)
	}

	if remote != nil {
		go watch(ctx, l, remote, mainConfig, values, changed)
	}

	return changed
}

func connectRemote(ctx context.Context, l log.Logger, boot *bootstrap, mainConfig *config.Config) *Remote {
	consulClient, err := consul.NewConsul(mainConfig.ServiceName, mainConfig.StandName, boot.ConsulGeneralUrl, boot.ConsulGeneralToken)
	if err != nil {
		l.Fatalf("failed to init consul instance: %v", err)
	}
	l.Info("connected to consul")

	secretsClient, err := secrets.New(ctx, l, boot.VaultGeneralUrl, boot.VaultGeneralToken, boot.VaultMountPath)
	if err != nil {
		l.Fatalf("failed to init vault instance: %v", err)
	}
	l.Info("connected to vault")

	return NewRemote(l, consulClient, secretsClient, mainConfig.StandName)
}

// watch polls remote every few minutes and applies changed values
func watch(ctx context.Context, l log.Logger, remote *Remote, mainConfig *config.Config, values Values, changed chan<- []string) {
	for {
		pause := time.Second * time.Duration(utils.GetRandomInt(150, 250))

		select {
		case <-ctx.Done():
			return
		case <-time.After(pause):
		}

		next, err := remote.Fetch(ctx, mainConfig)
		if err != nil {
			l.Errorf("failed to fetch remote config: %v", err)
			continue
		}

		names := next.Changed(values)
		if len(names) == 0 {
			continue
		}

		if err := Apply(mainConfig, next.Only(names)); err != nil {
			l.Errorf("failed to apply remote config: %v", err)
			continue
		}
		values = next

		l.Infof("config keys updated: %v", names)

		select {
		case changed <- names:
		case <-ctx.Done():
			return
		}
	}
}

// LoadConfigFromEnv - load environment variables from `os env`, `.env` file and pass it to struct.
//
// For local development use `.env` file from root project.
//
// LoadConfigFromEnv also call a `Validate` method.
//
// Example:
//
//	cfg := new(config.Config)
//	if err := initialconfig.LoadConfigFromEnv(cfg); err != nil {
//		log.Fatalf("could not load configuration: %v", err)
//	}
func LoadConfigFromEnv(cfg IConfig, opts ...ConfigOption) error {
	if reflect.ValueOf(cfg).Kind() != reflect.Ptr {
		return fmt.Errorf("config variable must be a pointer")
	}

	options := ConfigOptions{
		Validation: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	if options.EnvPath == "" {
		pwdDir, err := os.Getwd()
		if err != nil {
			return err
		}
		options.EnvPath = pwdDir
	}

	aconf := aconfig.Config{
		AllowUnknownFields: true,
		SkipFlags:          true,
		Files:              []string{path.Join(options.EnvPath, ".env")},
		FileDecoders: map[string]aconfig.FileDecoder{
			".env": aconfigdotenv.New(),
		},
	}

	loader := aconfig.LoaderFor(cfg, aconf)
	if err := loader.Load(); err != nil {
		return err
	}

	if !options.Validation {
		return nil
	}

	return cfg.Validate()
}
