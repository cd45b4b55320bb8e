package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const (
	exitUnhealthy       = 1
	exitInvalidResponse = 2
)

func newHealthcheckCommand() *cobra.Command {
	var timeout int
	var url string

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling the /readyz endpoint.

This command is used by Docker HEALTHCHECK to monitor container health.
It exits with code 0 if the server is healthy, non-zero otherwise.

Exit codes:
  0 - Server is healthy
  1 - Server is unhealthy or unreachable
  2 - Invalid response from server`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				url = defaultHealthURL()
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeout)*time.Second)
			defer cancel()

			status, err := performHealthCheck(ctx, http.DefaultClient, url)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server status: %s\n", status)
			return nil
		},
	}
	cmd.Flags().IntVar(&timeout, "timeout", 5, "timeout in seconds")
	cmd.Flags().StringVar(&url, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/readyz)")
	return cmd
}

// HealthResponse matches the /readyz body.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func defaultHealthURL() string {
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	return fmt.Sprintf("http://localhost:%s/readyz", port)
}

// performHealthCheck returns the reported status, or an *exitError with the
// code the process should exit with.
func performHealthCheck(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &exitError{code: exitUnhealthy, err: fmt.Errorf("create request: %w", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &exitError{code: exitUnhealthy, err: fmt.Errorf("health check failed: %w", err)}
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", &exitError{code: exitUnhealthy, err: fmt.Errorf("health check returned status %d", resp.StatusCode)}
		}
		return "", &exitError{code: exitInvalidResponse, err: fmt.Errorf("parse health response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK || health.Status != "healthy" {
		return health.Status, &exitError{code: exitUnhealthy, err: fmt.Errorf("server status: %s (http %d)", health.Status, resp.StatusCode)}
	}
	return health.Status, nil
}
