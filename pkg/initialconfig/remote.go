package initialconfig

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/Harardin/nft-custody/pkg/consul"
	"github.com/Harardin/nft-custody/pkg/log"
	"github.com/Harardin/nft-custody/pkg/secrets"

	"github.com/mitchellh/mapstructure"
)

type ConfigType int

const (
	ConfigTypeLocal ConfigType = iota
	ConfigTypeGlobal
	ConfigTypeDiscovery
)

// Param describes config field addressed by its json tag
type Param struct {
	Name           string
	ConfigType     ConfigType
	IsSecret       bool
	DiscoveryField string

	value reflect.Value
}

// Values - json tag to value
type Values map[string]any

// Changed returns sorted names whose value differs from prev
func (v Values) Changed(prev Values) []string {
	res := make([]string, 0)
	for name, value := range v {
		old, ok := prev[name]
		if !ok || !reflect.DeepEqual(old, value) {
			res = append(res, name)
		}
	}
	for name := range prev {
		if _, ok := v[name]; !ok {
			res = append(res, name)
		}
	}

	sort.Strings(res)
	return res
}

// Only returns subset of values with given names
func (v Values) Only(names []string) Values {
	res := make(Values, len(names))
	for _, name := range names {
		if value, ok := v[name]; ok {
			res[name] = value
		}
	}
	return res
}

// GetConfigParams walks cfg (pointer to struct) and returns its tagged fields.
// Top level embedded structs named GlobalConfig and DiscoveryConfig set the config type.
func GetConfigParams(cfg any) (map[string]Param, error) {
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("config must be a pointer to struct")
	}

	res := make(map[string]Param)
	collectParams(v.Elem(), ConfigTypeLocal, res)

	return res, nil
}

func collectParams(v reflect.Value, configType ConfigType, res map[string]Param) {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		fieldType := configType
		switch field.Name {
		case "GlobalConfig":
			fieldType = ConfigTypeGlobal
		case "DiscoveryConfig":
			fieldType = ConfigTypeDiscovery
		}

		name := field.Tag.Get("json")
		if name == "" && field.Type.Kind() == reflect.Struct {
			collectParams(v.Field(i), fieldType, res)
			continue
		}
		if name == "" || name == "-" {
			continue
		}

		res[name] = Param{
			Name:           name,
			ConfigType:     fieldType,
			IsSecret:       field.Tag.Get("secret") == "true",
			DiscoveryField: field.Tag.Get("discovery"),
			value:          v.Field(i),
		}
	}
}

// Apply sets values into cfg fields by json tag. Strings are weakly converted to field types.
func Apply(cfg any, values Values) error {
	params, err := GetConfigParams(cfg)
	if err != nil {
		return err
	}

	for name, value := range values {
		p, ok := params[name]
		if !ok {
			return fmt.Errorf("unknown config param \"%s\"", name)
		}

		if err := setValue(p.value, value); err != nil {
			return fmt.Errorf("failed to set config param \"%s\": %v", name, err)
		}
	}

	return nil
}

func setValue(field reflect.Value, value any) error {
	if value == nil {
		return fmt.Errorf("empty value")
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(field.Type()) {
		field.Set(rv)
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           field.Addr().Interface(),
	})
	if err != nil {
		return err
	}

	return decoder.Decode(value)
}

type Remote struct {
	logger    log.Logger
	consul    consul.Consul
	secrets   secrets.Secrets
	standName string
}

func NewRemote(l log.Logger, c consul.Consul, s secrets.Secrets, standName string) *Remote {
	return &Remote{
		logger:    l,
		consul:    c,
		secrets:   s,
		standName: standName,
	}
}

// Fetch reads values of cfg params from consul. A secret param keeps the vault
// path in consul, a discovery param keeps the consul service name.
func (r *Remote) Fetch(ctx context.Context, cfg any) (Values, error) {
	params, err := GetConfigParams(cfg)
	if err != nil {
		return nil, err
	}

	result := make(Values)

	for name, p := range params {
		path := "local"
		if p.ConfigType == ConfigTypeGlobal {
			path = "global"
		}

		res, err := r.consul.GetValue(ctx, path, name)
		if errors.Is(err, consul.ErrKeyNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get data from consul: %v", err)
		}

		consulValue := string(res)
		if consulValue == "" {
			continue
		}

		if p.ConfigType == ConfigTypeDiscovery {
			r.logger.Errorf("bad env \"%s\". you can't set service discovery addrs from consul. please, delete enviroment \"%s\" from consul kv storage", name, name)
			continue
		}

		result[name] = consulValue

		if p.DiscoveryField != "" {
			addrs, err := r.consul.GetServiceAddress(ctx, consulValue)
			if err != nil {
				return nil, fmt.Errorf("failed to get data from consul: %v", err)
			}

			if r.standName != "local" && len(addrs) == 0 {
				r.logger.Errorf("consul discovery return empty response for consul service \"%s\". env \"%s\" will be empty", consulValue, p.DiscoveryField)
			}

			result[p.DiscoveryField] = addrs
		}

		if p.IsSecret {
			value, err := r.secrets.GetSecret(ctx, consulValue)
			if err != nil {
				return nil, fmt.Errorf("failed to get secret from vault: %v", err)
			}

			result[name] = value
		}
	}

	return result, nil
}
