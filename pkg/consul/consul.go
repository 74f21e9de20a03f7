package consul

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/consul/api"
)

var ErrKeyNotExist = errors.New("consul key does not exist")

type GetServiceAddressResponseItem struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

type GetServiceAddressResponse []GetServiceAddressResponseItem

type Consul interface {
	GetValue(ctx context.Context, path, key string) ([]byte, error)
	GetServiceAddress(ctx context.Context, serviceName string) (GetServiceAddressResponse, error)
}

type service struct {
	serviceName string
	standName   string
	kv          *api.KV
	health      *api.Health
}

func NewConsul(serviceName, standName, consulAddr, consulToken string) (Consul, error) {
	config := api.DefaultConfig()
	config.Address = consulAddr
	config.Token = consulToken

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	return &service{
		serviceName: serviceName,
		standName:   standName,
		kv:          client.KV(),
		health:      client.Health(),
	}, nil
}

// KeyPath - <stand>/global/<key> or <stand>/local/<service>/<key>
func KeyPath(standName, serviceName, path, key string) string {
	if path == "local" {
		path = path + "/" + serviceName
	}

	return fmt.Sprintf("%s/%s/%s", standName, path, key)
}

func (s *service) GetValue(ctx context.Context, path, key string) ([]byte, error) {
	q := (&api.QueryOptions{}).WithContext(ctx)

	pair, _, err := s.kv.Get(KeyPath(s.standName, s.serviceName, path, key), q)
	if err != nil {
		return nil, err
	}

	if pair == nil {
		return nil, ErrKeyNotExist
	}

	return pair.Value, nil
}

// GetServiceAddress returns unique tagged addresses of healthy instances
func (s *service) GetServiceAddress(ctx context.Context, serviceName string) (GetServiceAddressResponse, error) {
	q := (&api.QueryOptions{}).WithContext(ctx)

	entries, _, err := s.health.Service(serviceName, "", true, q)
	if err != nil {
		return nil, err
	}

	res := make(GetServiceAddressResponse, 0)
	seen := make(map[GetServiceAddressResponseItem]struct{})
	for _, item := range entries {
		for _, ta := range item.Service.TaggedAddresses {
			addr := GetServiceAddressResponseItem{Address: ta.Address, Port: ta.Port}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			res = append(res, addr)
		}
	}

	return res, nil
}
