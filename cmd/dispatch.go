package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	dispatchFault string
	dispatchAPI   string
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Run dispatch for a waiting fault on a running service",
	RunE:  runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchFault, "fault", "", "fault id")
	dispatchCmd.Flags().StringVar(&dispatchAPI, "api", "http://localhost:8080", "service base URL")
	_ = dispatchCmd.MarkFlagRequired("fault")
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	endpoint := strings.TrimRight(dispatchAPI, "/") + "/api/faults/" + url.PathEscape(dispatchFault) + "/dispatch"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("dispatch request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dispatch %s: status %d: %s", dispatchFault, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(string(body)))
	return err
}
