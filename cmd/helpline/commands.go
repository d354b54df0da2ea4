package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/helpline-dev/helpline/internal/config"
	"github.com/helpline-dev/helpline/internal/store"
)

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// --- requests ---

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List help requests",
	Long: `List help requests.

Examples:
  helpline requests
  helpline requests --status pending
  helpline requests --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		path := "/help-requests"
		if status != "" {
			path += "?status=" + url.QueryEscape(status)
		}
		resp, err := client.get(ctx, path)
		if err != nil {
			return err
		}

		var requests []store.HelpRequest
		if err := decodeJSON(resp, &requests); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(requests)
		}

		if len(requests) == 0 {
			fmt.Println("No help requests found.")
			return nil
		}

		for _, r := range requests {
			question := r.Question
			if len(question) > 60 {
				question = question[:60] + "..."
			}
			fmt.Printf("%s  %-10s  %s  %s\n",
				colorize(colorCyan, r.ID[:8]),
				statusLabel(r.Status),
				r.CreatedAt.Format(time.RFC3339),
				question,
			)
		}
		return nil
	},
}

func statusLabel(s store.Status) string {
	switch s {
	case store.StatusPending:
		return colorize(colorYellow, string(s))
	case store.StatusResolved:
		return colorize(colorGreen, string(s))
	case store.StatusUnresolved:
		return colorize(colorRed, string(s))
	default:
		return string(s)
	}
}

func init() {
	requestsCmd.Flags().String("status", "", "filter by status (pending, resolved, unresolved)")
	requestsCmd.Flags().Bool("json", false, "output raw JSON")
}

// --- resolve ---

var resolveCmd = &cobra.Command{
	Use:   "resolve <id> <answer>",
	Short: "Answer a pending help request as a supervisor",
	Long: `Answer a pending help request. The answer is texted to the caller and
saved into the knowledge base so future calls are answered directly.

Example:
  helpline resolve 4f1c2a90 "Yes, perms start at $80."`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		answer := strings.Join(args[1:], " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		resp, err := client.post(ctx, "/help-requests/"+url.PathEscape(id)+"/resolve",
			map[string]string{"answer": answer})
		if err != nil {
			return err
		}

		var result struct {
			Request  store.HelpRequest `json:"request"`
			Warnings []string          `json:"warnings"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Resolved %s", result.Request.ID)
		for _, w := range result.Warnings {
			printWarning("%s", w)
		}
		return nil
	},
}

// --- kb ---

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Inspect the knowledge base",
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned answers, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		resp, err := client.get(ctx, "/knowledge-base")
		if err != nil {
			return err
		}

		var entries []store.KnowledgeBaseEntry
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		if len(entries) == 0 {
			fmt.Println("Knowledge base is empty.")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%s\n", colorize(colorBold, "Q: "+e.Question))
			fmt.Printf("%s\n\n", "A: "+e.Answer)
		}
		return nil
	},
}

var kbLookupCmd = &cobra.Command{
	Use:   "lookup <question>",
	Short: "Look up the stored answer for a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		resp, err := client.get(ctx, "/knowledge-base/lookup?question="+url.QueryEscape(question))
		if err != nil {
			return err
		}

		var result struct {
			Found  bool   `json:"found"`
			Answer string `json:"answer"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if !result.Found {
			fmt.Println("No stored answer for that question.")
			return nil
		}
		fmt.Println(result.Answer)
		return nil
	},
}

func init() {
	kbListCmd.Flags().Bool("json", false, "output raw JSON")
	kbCmd.AddCommand(kbListCmd)
	kbCmd.AddCommand(kbLookupCmd)
}

// --- call ---

var callCmd = &cobra.Command{
	Use:   "call <question>",
	Short: "Feed one call through the agent",
	Long: `Feed one synthetic call through the agent: the question is answered from
the knowledge base, or escalated to a supervisor.

Example:
  helpline call --caller 555-123-0001 "Do you do perms?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		caller, _ := cmd.Flags().GetString("caller")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		resp, err := client.post(ctx, "/calls", map[string]string{
			"callerId": caller,
			"question": question,
		})
		if err != nil {
			return err
		}

		var result struct {
			CallID    string `json:"callId"`
			Response  string `json:"response"`
			Escalated bool   `json:"escalated"`
			RequestID string `json:"requestId"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Printf("%s %s\n", colorize(colorBold, "Agent:"), result.Response)
		if result.Escalated {
			printWarning("Escalated to supervisor (request %s)", result.RequestID)
		}
		return nil
	},
}

func init() {
	callCmd.Flags().String("caller", "555-123-0000", "caller phone number")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
