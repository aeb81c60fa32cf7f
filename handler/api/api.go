package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pandodao/wallet-core/core"
	"github.com/pandodao/wallet-core/service/session"
	"github.com/pandodao/wallet-core/service/transfer"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	// StoragePath is opened by POST /service/start when the body names none.
	StoragePath string `valid:"required"`
}

// Registry is the service registry as seen by the API.
type Registry interface {
	Start(ctx context.Context, path string) error
	Stop(ctx context.Context) error
	IsRunning() bool
	Read(ctx context.Context, fn func(bg core.Background) error) error
	Write(ctx context.Context, fn func(bg core.Background) error) error
	ReadWallet(ctx context.Context, walletIndex int, fn func(bg core.Background, wallet *core.Wallet) error) error
	WriteWallet(ctx context.Context, walletIndex int, fn func(bg core.Background, wallet *core.Wallet) error) error
}

func New(
	registry Registry,
	sessions *session.Resolver,
	transfers *transfer.Builder,
	logger *slog.Logger,
	cfg Config,
) *Server {
	if _, err := govalidator.ValidateStruct(cfg); err != nil {
		panic(err)
	}

	sent, err := lru.New[string, core.HistoricalTransaction](1024)
	if err != nil {
		panic(err)
	}

	return &Server{
		registry:  registry,
		sessions:  sessions,
		transfers: transfers,
		logger:    logger.With("server", "api"),
		cfg:       cfg,
		sf:        &singleflight.Group{},
		sent:      sent,
	}
}

type Server struct {
	registry  Registry
	sessions  *session.Resolver
	transfers *transfer.Builder
	logger    *slog.Logger
	cfg       Config
	sf        *singleflight.Group
	// sent remembers completed sends by request id.
	sent *lru.Cache[string, core.HistoricalTransaction]
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Route("/service", func(r chi.Router) {
		r.Get("/", s.serviceStatus)
		r.Post("/start", s.startService)
		r.Post("/stop", s.stopService)
	})

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", s.getSettings)
		r.Put("/", s.putSettings)
	})

	r.Get("/providers", s.listProviders)

	r.Route("/wallets", func(r chi.Router) {
		r.Get("/", s.listWallets)
		r.Post("/", s.addWallet)

		r.Route("/{index}", func(r chi.Router) {
			r.Get("/", s.getWallet)
			r.Post("/unlock", s.unlockWallet)
			r.Post("/tokens", s.addToken)
			r.Get("/history", s.listHistory)
			r.Post("/transfers", s.buildTransfer)
			r.Post("/estimate", s.estimateFee)
			r.Post("/send", s.send)
		})
	})

	return r
}

// walletIndex parses the {index} url param. An unparsable index is an
// access error for that position, like any other out of range index.
func walletIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, core.WalletAccessError(-1)
	}

	return i, nil
}
