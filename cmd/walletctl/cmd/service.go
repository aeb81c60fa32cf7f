package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show whether the wallet service is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		if err := call(cmd, http.MethodGet, "/service", nil, &out); err != nil {
			return err
		}

		return printJson(cmd, out)
	},
}

var startPath string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "start the wallet service",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		if err := call(cmd, http.MethodPost, "/service/start", map[string]string{"path": startPath}, &out); err != nil {
			return err
		}

		return printJson(cmd, out)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "stop the wallet service",
	RunE: func(cmd *cobra.Command, args []string) error {
		var out map[string]any
		if err := call(cmd, http.MethodPost, "/service/stop", nil, &out); err != nil {
			return err
		}

		return printJson(cmd, out)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, startCmd, stopCmd)

	startCmd.Flags().StringVar(&startPath, "path", "", "storage directory (optional)")
}
