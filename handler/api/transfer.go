package api

import (
	"fmt"
	"net/http"

	"github.com/pandodao/wallet-core/core"
	"github.com/pandodao/wallet-core/service/transfer"
)

type buildRequest struct {
	Account   int    `json:"account"`
	Token     int    `json:"token"`
	Recipient string `json:"recipient" valid:"required"`
	Amount    string `json:"amount" valid:"required,float"`
	Title     string `json:"title" valid:"stringlength(0|64)"`
}

func (s *Server) buildTransfer(w http.ResponseWriter, r *http.Request) {
	index, err := walletIndex(r)
	if err != nil {
		renderError(w, err)
		return
	}

	var body buildRequest
	if !bind(w, r, &body) {
		return
	}

	req, err := s.transfers.Build(r.Context(), transfer.TransferParams{
		WalletIndex:  index,
		AccountIndex: body.Account,
		TokenIndex:   body.Token,
		Recipient:    body.Recipient,
		Amount:       body.Amount,
		Title:        body.Title,
	})

	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, req)
}

type estimateRequest struct {
	Account  int                      `json:"account"`
	Request  *core.TransactionRequest `json:"request" valid:"-"`
	Probes   int                      `json:"probes" valid:"range(0|32)"`
	Override *core.GasOverride        `json:"override" valid:"-"`
}

func (s *Server) estimateFee(w http.ResponseWriter, r *http.Request) {
	index, err := walletIndex(r)
	if err != nil {
		renderError(w, err)
		return
	}

	var body estimateRequest
	if !bind(w, r, &body) {
		return
	}

	est, err := s.transfers.EstimateFee(r.Context(), transfer.EstimateParams{
		WalletIndex:  index,
		AccountIndex: body.Account,
		Request:      body.Request,
		Probes:       body.Probes,
		Override:     body.Override,
	})

	if err != nil {
		renderError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, est)
}

type sendRequest struct {
	RequestID  string                   `json:"request_id" valid:"uuid,required"`
	Account    int                      `json:"account"`
	Request    *core.TransactionRequest `json:"request" valid:"-"`
	Session    string                   `json:"session"`
	Password   string                   `json:"password"`
	Devices    []string                 `json:"devices"`
	Passphrase string                   `json:"passphrase"`
	Override   *core.GasOverride        `json:"override" valid:"-"`
}

func (req *sendRequest) unlock() (core.Unlock, error) {
	switch {
	case req.Session != "":
		return &core.SessionUnlock{Token: core.SessionToken(req.Session), Devices: req.Devices}, nil
	case req.Password != "":
		return &core.PasswordUnlock{Password: []byte(req.Password), Devices: req.Devices}, nil
	default:
		return nil, core.BackgroundError(core.ErrPasswordRequired)
	}
}

// send signs and broadcasts a request. Calls sharing a request_id, whether
// concurrent or retried later, result in one broadcast.
func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	index, err := walletIndex(r)
	if err != nil {
		renderError(w, err)
		return
	}

	var body sendRequest
	if !bind(w, r, &body) {
		return
	}

	unlock, err := body.unlock()
	if err != nil {
		renderError(w, err)
		return
	}

	ctx := r.Context()
	key := fmt.Sprintf("%d:%s", index, body.RequestID)
	v, err, shared := s.sf.Do(key, func() (any, error) {
		if tx, ok := s.sent.Get(key); ok {
			return tx, nil
		}

		tx, err := s.transfers.SignAndSend(ctx, transfer.SendParams{
			WalletIndex:  index,
			AccountIndex: body.Account,
			Request:      body.Request,
			Unlock:       unlock,
			Passphrase:   body.Passphrase,
			Override:     body.Override,
		})
		if tx == nil {
			return nil, err
		}

		// broadcast but not recorded: remember it so a retry does not resend
		if err != nil {
			s.sent.Add(key, *tx)
			s.logger.Error("send not recorded", "wallet", index, "request", body.RequestID, "hash", tx.Hash)
			return nil, err
		}

		// the record is shared with the wallet history
		var sent core.HistoricalTransaction
		if err := s.registry.ReadWallet(ctx, index, func(core.Background, *core.Wallet) error {
			sent = *tx
			return nil
		}); err != nil {
			sent = *tx
		}

		s.sent.Add(key, sent)
		return sent, nil
	})

	if err != nil {
		s.logger.Debug("send failed", "wallet", index, "request", body.RequestID, "err", err)
		renderError(w, err)
		return
	}

	if shared {
		s.logger.Debug("send shared", "wallet", index, "request", body.RequestID)
	}

	renderJSON(w, http.StatusOK, v.(core.HistoricalTransaction))
}
