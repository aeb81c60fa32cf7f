package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var sendOpt struct {
	Account   int
	Token     int
	Recipient string
	Amount    string
	Title     string
	RequestID string
	Session   string
	Password  string
	Devices   []string
	DryRun    bool
}

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <index>",
	Short: "build, sign and broadcast a token transfer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base := fmt.Sprintf("/wallets/%s", args[0])

		var req json.RawMessage
		if err := call(cmd, http.MethodPost, base+"/transfers", map[string]any{
			"account":   sendOpt.Account,
			"token":     sendOpt.Token,
			"recipient": sendOpt.Recipient,
			"amount":    sendOpt.Amount,
			"title":     sendOpt.Title,
		}, &req); err != nil {
			return err
		}

		if sendOpt.DryRun {
			var est any
			if err := call(cmd, http.MethodPost, base+"/estimate", map[string]any{
				"account": sendOpt.Account,
				"request": req,
			}, &est); err != nil {
				return err
			}

			return printJson(cmd, map[string]any{"request": req, "estimate": est})
		}

		if sendOpt.RequestID == "" {
			sendOpt.RequestID = uuid.NewString()
		}

		var tx any
		if err := call(cmd, http.MethodPost, base+"/send", map[string]any{
			"request_id": sendOpt.RequestID,
			"account":    sendOpt.Account,
			"request":    req,
			"session":    sendOpt.Session,
			"password":   sendOpt.Password,
			"devices":    sendOpt.Devices,
		}, &tx); err != nil {
			return err
		}

		return printJson(cmd, tx)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().IntVar(&sendOpt.Account, "account", 0, "account index")
	sendCmd.Flags().IntVar(&sendOpt.Token, "token", 0, "token index")
	sendCmd.Flags().StringVar(&sendOpt.Recipient, "to", "", "recipient address")
	sendCmd.Flags().StringVar(&sendOpt.Amount, "amount", "0", "amount in token units")
	sendCmd.Flags().StringVar(&sendOpt.Title, "title", "", "title (optional)")
	sendCmd.Flags().StringVar(&sendOpt.RequestID, "request", "", "request id (optional)")
	sendCmd.Flags().StringVar(&sendOpt.Session, "session", "", "session token")
	sendCmd.Flags().StringVar(&sendOpt.Password, "password", "", "wallet password, used when no session is given")
	sendCmd.Flags().StringSliceVar(&sendOpt.Devices, "devices", nil, "device ids")
	sendCmd.Flags().BoolVar(&sendOpt.DryRun, "dry-run", false, "only build and estimate")
}
