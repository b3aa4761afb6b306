package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	triggerServer string
	triggerSource string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Ask a running server to ingest one source, or all of them",
	RunE:  runTrigger,
}

func init() {
	triggerCmd.Flags().StringVar(&triggerServer, "server", "http://localhost:8081", "Server base URL")
	triggerCmd.Flags().StringVar(&triggerSource, "source", "", "Source id (default: all sources)")
	rootCmd.AddCommand(triggerCmd)
}

func triggerURL(base, source string) string {
	base = strings.TrimRight(base, "/")
	if source == "" {
		return base + "/api/v1/ingest/all"
	}
	return base + "/api/v1/ingest/source/" + source
}

func runTrigger(cmd *cobra.Command, _ []string) error {
	secret := strings.TrimSpace(appConfig.AdminSecret)
	if secret == "" {
		return fmt.Errorf("missing admin secret (set TENDERS_ADMIN_SECRET)")
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, triggerURL(triggerServer, triggerSource), nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("X-Admin-Secret", secret)

	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\n%s\n", resp.Status, body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
