package main

import (
	"fmt"

	"github.com/google/wire"
	"github.com/pandodao/wallet-core/core"
	"github.com/pandodao/wallet-core/service/background"
	"github.com/pandodao/wallet-core/service/chain"
	"github.com/pandodao/wallet-core/service/registry"
	"github.com/pandodao/wallet-core/service/session"
	"github.com/pandodao/wallet-core/service/transfer"
	"github.com/spf13/viper"
)

var serviceSet = wire.NewSet(
	provideChainConfig,
	chain.NewDialer,
	provideBackgroundConfig,
	background.NewOpener,
	registry.New,
	wire.Bind(new(session.Guard), new(*registry.Registry)),
	session.New,
	provideTransferConfig,
	wire.Bind(new(transfer.Guard), new(*registry.Registry)),
	wire.Bind(new(transfer.SeedResolver), new(*session.Resolver)),
	transfer.New,
)

func provideChainConfig(v *viper.Viper) (chain.Config, error) {
	var cfg chain.Config
	if err := v.UnmarshalKey("chain", &cfg); err != nil {
		return cfg, fmt.Errorf("chain config: %w", err)
	}

	return cfg, nil
}

// providerConfig is a provider as written in the config file, with the
// chain kind spelled out.
type providerConfig struct {
	ChainID  uint64   `mapstructure:"chain_id"`
	Name     string   `mapstructure:"name"`
	Kind     string   `mapstructure:"kind"`
	RPC      []string `mapstructure:"rpc"`
	Symbol   string   `mapstructure:"symbol"`
	Decimals uint8    `mapstructure:"decimals"`
	Slip44   uint32   `mapstructure:"slip44"`
	Explorer string   `mapstructure:"explorer"`
}

func (p providerConfig) provider() (*core.Provider, error) {
	var kind core.ChainKind
	if err := kind.UnmarshalText([]byte(p.Kind)); err != nil {
		return nil, fmt.Errorf("provider %d: %w", p.ChainID, err)
	}

	return &core.Provider{
		ChainID:  p.ChainID,
		Name:     p.Name,
		Kind:     kind,
		RPC:      p.RPC,
		Symbol:   p.Symbol,
		Decimals: p.Decimals,
		Slip44:   p.Slip44,
		Explorer: p.Explorer,
	}, nil
}

func provideBackgroundConfig(v *viper.Viper) (background.Config, error) {
	var cfg background.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("background config: %w", err)
	}

	var providers []providerConfig
	if err := v.UnmarshalKey("providers", &providers); err != nil {
		return cfg, fmt.Errorf("providers config: %w", err)
	}

	for _, p := range providers {
		provider, err := p.provider()
		if err != nil {
			return cfg, err
		}
		cfg.Providers = append(cfg.Providers, provider)
	}

	return cfg, nil
}

func provideTransferConfig(v *viper.Viper) transfer.Config {
	return transfer.Config{
		Probes: v.GetInt("transfer.probes"),
	}
}
