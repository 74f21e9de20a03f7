// Package secrets reads configuration secrets from hashicorp vault kv v2.
package secrets

import (
	"context"
	"fmt"
	"time"

	"github.com/Harardin/nft-custody/pkg/log"

	"github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
)

type Secrets interface {
	GetSecret(ctx context.Context, path string) (interface{}, error)
	GetSecretByKey(ctx context.Context, path, key string) (interface{}, error)
}

type tokenData struct {
	isRoot         bool
	isRenewable    bool
	expirationTime time.Time
}

type service struct {
	logger log.Logger
	client *api.Client
	kv     *api.KVv2
}

// New connects to vault and keeps renewing the token until ctx is done
func New(ctx context.Context, logger log.Logger, addr, token, mountPath string) (Secrets, error) {
	client, err := api.NewClient(api.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := client.SetAddress(addr); err != nil {
		return nil, errors.Wrap(err, "invalid vault address")
	}
	client.SetToken(token)

	s := &service{
		logger: logger,
		client: client,
		kv:     client.KVv2(mountPath),
	}

	go s.renewToken(ctx)

	return s, nil
}

func (s *service) renewToken(ctx context.Context) {
	for {
		apiSecret, err := s.client.Auth().Token().LookupSelfWithContext(ctx)
		if err != nil {
			s.logger.Errorf("get token info from vault error: %v", err)
			return
		}

		tData, err := getTokenData(apiSecret.Data)
		if err != nil {
			s.logger.Errorf("failed to get token data: %v", err)
			return
		}

		if tData.isRoot {
			s.logger.Info("vault token is root. stop renew token")
			return
		}

		if !tData.isRenewable {
			s.logger.Fatal("vault token is not renewable")
		}

		timeLeft := time.Until(tData.expirationTime)

		if _, err := s.client.Auth().Token().RenewSelfWithContext(ctx, 60*60*8); err != nil {
			s.logger.Errorf("renew vault token error: %v", err)

			if timeLeft <= time.Minute {
				s.logger.Fatal("failed to renew token")
			}
		}

		s.logger.Debug("vault token was updated")

		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Minute):
		}
	}
}

func getTokenData(data map[string]interface{}) (*tokenData, error) {
	if data == nil {
		return nil, fmt.Errorf("vault token data is nil")
	}

	displayName, _ := data["display_name"].(string)
	expTime, hasExpiration := data["expire_time"]

	if displayName == "root" || !hasExpiration || expTime == nil {
		return &tokenData{isRoot: true}, nil
	}

	isRenewable, ok := data["renewable"].(bool)
	if !ok {
		return nil, fmt.Errorf("value \"%v\" of renewable is not bool", data["renewable"])
	}

	expString, ok := expTime.(string)
	if !ok {
		return nil, fmt.Errorf("value \"%v\" of expire_time is not string", expTime)
	}

	expirationTime, err := time.Parse(time.RFC3339, expString)
	if err != nil {
		return nil, errors.Wrap(err, "expirationTime parse error")
	}

	return &tokenData{
		isRenewable:    isRenewable,
		expirationTime: expirationTime,
	}, nil
}

// GetSecret returns field "value" of secret at path
func (s *service) GetSecret(ctx context.Context, path string) (interface{}, error) {
	return s.GetSecretByKey(ctx, path, "value")
}

func (s *service) GetSecretByKey(ctx context.Context, path, key string) (interface{}, error) {
	secret, err := s.kv.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	value, ok := secret.Data[key]
	if !ok {
		return nil, fmt.Errorf("key \"%s\" does not exist in vault path \"%s\"", key, path)
	}

	return value, nil
}
