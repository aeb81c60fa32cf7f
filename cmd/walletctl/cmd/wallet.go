package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var walletOpt struct {
	Kind       string   `json:"kind"`
	Name       string   `json:"name"`
	ChainID    uint64   `json:"chain_id,omitempty"`
	Password   string   `json:"password,omitempty"`
	Mnemonic   string   `json:"mnemonic,omitempty"`
	Passphrase string   `json:"passphrase,omitempty"`
	SecretKey  string   `json:"secret_key,omitempty"`
	Devices    []string `json:"devices,omitempty"`
	PubKeys    []string `json:"pub_keys,omitempty"`
}

var walletCmd = &cobra.Command{
	Use:   "wallet [index]",
	Short: "list wallets or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/wallets"
		if len(args) == 1 {
			path += "/" + args[0]
		}

		var out any
		if err := call(cmd, http.MethodGet, path, nil, &out); err != nil {
			return err
		}

		return printJson(cmd, out)
	},
}

var walletAddCmd = &cobra.Command{
	Use:   "add",
	Short: "create or import a wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		if err := call(cmd, http.MethodPost, "/wallets", &walletOpt, &out); err != nil {
			return err
		}

		return printJson(cmd, out)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <index>",
	Short: "show the transaction history of a wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out any
		if err := call(cmd, http.MethodGet, fmt.Sprintf("/wallets/%s/history", args[0]), nil, &out); err != nil {
			return err
		}

		return printJson(cmd, out)
	},
}

var unlockOpt struct {
	Password string   `json:"password"`
	Devices  []string `json:"devices,omitempty"`
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <index>",
	Short: "unlock a wallet and print a session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		if err := call(cmd, http.MethodPost, fmt.Sprintf("/wallets/%s/unlock", args[0]), &unlockOpt, &out); err != nil {
			return err
		}

		return printJson(cmd, out)
	},
}

func init() {
	rootCmd.AddCommand(walletCmd, historyCmd, unlockCmd)
	walletCmd.AddCommand(walletAddCmd)

	walletAddCmd.Flags().StringVar(&walletOpt.Kind, "kind", "secret_phrase", "secret_phrase, secret_key or ledger")
	walletAddCmd.Flags().StringVar(&walletOpt.Name, "name", "", "wallet name")
	walletAddCmd.Flags().Uint64Var(&walletOpt.ChainID, "chain", 0, "chain id (default: first provider)")
	walletAddCmd.Flags().StringVar(&walletOpt.Password, "password", "", "wallet password")
	walletAddCmd.Flags().StringVar(&walletOpt.Mnemonic, "mnemonic", "", "mnemonic to import (generated if empty)")
	walletAddCmd.Flags().StringVar(&walletOpt.Passphrase, "passphrase", "", "bip39 passphrase (optional)")
	walletAddCmd.Flags().StringVar(&walletOpt.SecretKey, "secret-key", "", "hex secret key")
	walletAddCmd.Flags().StringSliceVar(&walletOpt.Devices, "devices", nil, "device ids the session is bound to")
	walletAddCmd.Flags().StringSliceVar(&walletOpt.PubKeys, "pub-keys", nil, "hex public keys of a ledger wallet")

	unlockCmd.Flags().StringVar(&unlockOpt.Password, "password", "", "wallet password")
	unlockCmd.Flags().StringSliceVar(&unlockOpt.Devices, "devices", nil, "device ids")
}
