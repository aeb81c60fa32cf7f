package main

import (
	"github.com/google/wire"
	"github.com/pandodao/wallet-core/service/registry"
	"github.com/pandodao/wallet-core/worker/balancer"
	"github.com/pandodao/wallet-core/worker/confirmer"
	"github.com/spf13/viper"
)

var workerSet = wire.NewSet(
	wire.Bind(new(confirmer.Guard), new(*registry.Registry)),
	confirmer.New,
	provideBalancerConfig,
	wire.Bind(new(balancer.Guard), new(*registry.Registry)),
	balancer.New,
)

func provideBalancerConfig(v *viper.Viper) balancer.Config {
	return balancer.Config{
		Interval: v.GetDuration("balancer.interval"),
	}
}
