package api

import (
	"encoding/hex"
	"net/http"

	"github.com/pandodao/generic"
	"github.com/pandodao/wallet-core/core"
	"github.com/pandodao/wallet-core/service/keychain"
)

func (s *Server) listWallets(w http.ResponseWriter, r *http.Request) {
	var wallets []core.Wallet
	err := s.registry.Read(r.Context(), func(bg core.Background) error {
		wallets = generic.MapSlice(bg.Wallets(), deref[core.Wallet])
		return nil
	})

	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, wallets)
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	index, err := walletIndex(r)
	if err != nil {
		renderError(w, err)
		return
	}

	var view core.Wallet
	err = s.registry.ReadWallet(r.Context(), index, func(_ core.Background, wallet *core.Wallet) error {
		view = *wallet
		return nil
	})

	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, view)
}

type addWalletRequest struct {
	Kind       core.WalletKind     `json:"kind" valid:"required"`
	Name       string              `json:"name" valid:"required,stringlength(1|64)"`
	ChainID    uint64              `json:"chain_id"`
	Password   string              `json:"password"`
	Mnemonic   string              `json:"mnemonic"`
	Passphrase string              `json:"passphrase"`
	SecretKey  string              `json:"secret_key"`
	Accounts   []core.AccountSpec  `json:"accounts" valid:"-"`
	Devices    []string            `json:"devices"`
	PubKeys    []string            `json:"pub_keys"`
	LedgerID   string              `json:"ledger_id"`
	Settings   core.WalletSettings `json:"settings" valid:"-"`
}

func (req *addWalletRequest) params() (core.WalletParams, error) {
	switch req.Kind {
	case core.WalletKindSecretPhrase:
		return &core.Bip39Params{
			Password:   []byte(req.Password),
			Mnemonic:   req.Mnemonic,
			Passphrase: req.Passphrase,
			WalletName: req.Name,
			ChainID:    req.ChainID,
			Accounts:   req.Accounts,
			Devices:    req.Devices,
			Settings:   req.Settings,
		}, nil
	case core.WalletKindSecretKey:
		return &core.SKParams{
			Password:   []byte(req.Password),
			SecretKey:  req.SecretKey,
			WalletName: req.Name,
			ChainID:    req.ChainID,
			Devices:    req.Devices,
			Settings:   req.Settings,
		}, nil
	case core.WalletKindLedger:
		keys := make([][]byte, 0, len(req.PubKeys))
		for _, k := range req.PubKeys {
			b, err := hex.DecodeString(k)
			if err != nil {
				return nil, core.InvalidSecretMaterialError(err)
			}
			keys = append(keys, b)
		}

		return &core.LedgerParams{
			PubKeys:    keys,
			WalletName: req.Name,
			ChainID:    req.ChainID,
			LedgerID:   req.LedgerID,
			Settings:   req.Settings,
		}, nil
	default:
		return nil, core.BackgroundError(core.ErrUnsupportedWallet)
	}
}

type addWalletResponse struct {
	Index    int               `json:"index"`
	Address  string            `json:"address"`
	Session  core.SessionToken `json:"session,omitempty"`
	Mnemonic string            `json:"mnemonic,omitempty"`
}

func (s *Server) addWallet(w http.ResponseWriter, r *http.Request) {
	var req addWalletRequest
	if !bind(w, r, &req) {
		return
	}

	var resp addWalletResponse

	// a phrase wallet without a mnemonic gets a fresh one, shown once
	if req.Kind == core.WalletKindSecretPhrase && req.Mnemonic == "" {
		mnemonic, err := keychain.GenerateMnemonic()
		if err != nil {
			renderError(w, core.BackgroundError(err))
			return
		}
		req.Mnemonic = mnemonic
		resp.Mnemonic = mnemonic
	}

	params, err := req.params()
	if err != nil {
		renderError(w, err)
		return
	}

	// derivation runs under a shared view; only the install is exclusive
	ctx := r.Context()
	var prepared *core.PreparedWallet
	err = s.registry.Read(ctx, func(bg core.Background) error {
		prepared, err = bg.PrepareWallet(ctx, params)
		return err
	})

	if err != nil {
		s.logger.Error("bg.PrepareWallet", "kind", req.Kind, "err", err)
		renderError(w, err)
		return
	}
	defer clear(prepared.Session)

	err = s.registry.Write(ctx, func(bg core.Background) error {
		index, err := bg.InstallWallet(ctx, prepared)
		if err != nil {
			return err
		}

		resp.Index = index
		resp.Address = prepared.Wallet.Accounts[0].Address
		if len(prepared.Session) > 0 {
			resp.Session = core.EncodeSession(prepared.Session)
		}
		return nil
	})

	if err != nil {
		s.logger.Error("bg.InstallWallet", "kind", req.Kind, "err", err)
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusCreated, resp)
}

type unlockRequest struct {
	Password string   `json:"password" valid:"required"`
	Devices  []string `json:"devices"`
}

func (s *Server) unlockWallet(w http.ResponseWriter, r *http.Request) {
	index, err := walletIndex(r)
	if err != nil {
		renderError(w, err)
		return
	}

	var req unlockRequest
	if !bind(w, r, &req) {
		return
	}

	token, err := s.sessions.Login(r.Context(), index, []byte(req.Password), req.Devices)
	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, map[string]any{"session": string(token)})
}

type addTokenRequest struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol" valid:"required"`
	Decimals uint8  `json:"decimals"`
	Address  string `json:"address" valid:"required"`
	Logo     string `json:"logo" valid:"optional,url"`
}

func (s *Server) addToken(w http.ResponseWriter, r *http.Request) {
	index, err := walletIndex(r)
	if err != nil {
		renderError(w, err)
		return
	}

	var req addTokenRequest
	if !bind(w, r, &req) {
		return
	}

	token := &core.Token{
		Name:     req.Name,
		Symbol:   req.Symbol,
		Decimals: req.Decimals,
		Address:  req.Address,
		Logo:     req.Logo,
	}

	var tokens []*core.Token
	err = s.registry.WriteWallet(r.Context(), index, func(bg core.Background, _ *core.Wallet) error {
		if err := bg.AddToken(r.Context(), index, token); err != nil {
			return err
		}

		wallet, err := bg.Wallet(index)
		if err != nil {
			return err
		}
		tokens = wallet.Tokens
		return nil
	})

	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, tokens)
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	index, err := walletIndex(r)
	if err != nil {
		renderError(w, err)
		return
	}

	var history []core.HistoricalTransaction
	err = s.registry.ReadWallet(r.Context(), index, func(_ core.Background, wallet *core.Wallet) error {
		history = generic.MapSlice(wallet.History, deref[core.HistoricalTransaction])
		return nil
	})

	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, history)
}

// deref copies values out of a view; the pointers stay with the registry.
func deref[T any](p *T) T {
	return *p
}
