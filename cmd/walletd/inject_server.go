package main

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/wire"
	"github.com/pandodao/wallet-core/handler/api"
	"github.com/pandodao/wallet-core/handler/hc"
	"github.com/pandodao/wallet-core/service/registry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/viper"
)

var serverSet = wire.NewSet(
	provideAPIConfig,
	wire.Bind(new(api.Registry), new(*registry.Registry)),
	api.New,
	provideServer,
)

func provideAPIConfig(v *viper.Viper) api.Config {
	return api.Config{
		StoragePath: v.GetString("storage.path"),
	}
}

func provideServer(apiHandler *api.Server, reg *registry.Registry) *http.Server {
	m := chi.NewMux()
	m.Use(middleware.RealIP)
	m.Use(middleware.Logger)
	m.Use(middleware.Recoverer)
	m.Use(cors.AllowAll().Handler)

	m.Mount("/api", apiHandler.Handler())
	m.Mount("/hc", hc.Handler(version, reg.IsRunning))
	m.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", opt.port),
		Handler: m,
	}
}
