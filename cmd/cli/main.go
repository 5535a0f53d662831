package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiKey    string
	accountID string
	category  string
	mode      string
	timeout   string
)

func main() {
	root := &cobra.Command{
		Use:   "testforge-cli",
		Short: "CLI client for the testforge submission API",
	}

	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	root.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("TESTFORGE_API_KEY"), "API key")
	root.PersistentFlags().StringVar(&accountID, "account", "dev", "Account ID")

	submitCmd := &cobra.Command{
		Use:   "submit [url]",
		Short: "Submit a target for analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  runSubmit,
	}
	submitCmd.Flags().StringVarP(&category, "category", "c", "web", "Category (web, document, game, mobile, ai, avatar, tool, api)")
	submitCmd.Flags().StringVarP(&mode, "mode", "m", "standard", "Economy mode (standard, economy, ultra_economy)")
	submitCmd.Flags().StringVar(&timeout, "timeout", "", "Analyzer timeout override, e.g. 30s")
	root.AddCommand(submitCmd)

	root.AddCommand(&cobra.Command{
		Use:   "balance",
		Short: "Show the account's credit balance",
		RunE:  runBalance,
	})

	root.AddCommand(&cobra.Command{
		Use:   "history",
		Short: "Show the account's ledger history",
		RunE:  runHistory,
	})

	topupCmd := &cobra.Command{
		Use:   "topup [amount]",
		Short: "Add credits to the account",
		Args:  cobra.ExactArgs(1),
		RunE:  runTopUp,
	}
	root.AddCommand(topupCmd)

	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE:  runHealth,
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSubmit(cmd *cobra.Command, args []string) error {
	body := map[string]any{
		"account_id":   accountID,
		"category":     category,
		"url":          args[0],
		"economy_mode": mode,
	}
	if timeout != "" {
		if _, err := time.ParseDuration(timeout); err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		body["timeout"] = timeout
	}

	resp, err := doRequest(http.MethodPost, "/submissions", body)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func runBalance(cmd *cobra.Command, args []string) error {
	resp, err := doRequest(http.MethodGet, "/accounts/"+accountID+"/balance", nil)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func runHistory(cmd *cobra.Command, args []string) error {
	resp, err := doRequest(http.MethodGet, "/accounts/"+accountID+"/ledger", nil)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func runTopUp(cmd *cobra.Command, args []string) error {
	var amount int
	if _, err := fmt.Sscanf(args[0], "%d", &amount); err != nil {
		return fmt.Errorf("invalid amount %q", args[0])
	}

	resp, err := doRequest(http.MethodPost, "/accounts/"+accountID+"/credits", map[string]any{"amount": amount})
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func runHealth(cmd *cobra.Command, args []string) error {
	resp, err := doRequest(http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	return printResponse(resp)
}

func doRequest(method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	return client.Do(req)
}

func printResponse(resp *http.Response) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
	} else {
		fmt.Println(pretty.String())
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
