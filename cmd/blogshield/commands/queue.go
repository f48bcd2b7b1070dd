package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blogshield/blogshield/internal/config"
	"github.com/blogshield/blogshield/internal/moderation"
)

func newQueueCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and resolve the moderation queue on a running server",
	}
	cmd.PersistentFlags().StringVar(&server, "server", "", "server base URL (default from config)")

	cmd.AddCommand(
		newQueueListCmd(&server),
		newQueueResolveCmd(&server, "approve", "Approve a queued comment"),
		newQueueResolveCmd(&server, "reject", "Reject a queued comment"),
	)
	return cmd
}

func serverURL(flag string) string {
	if flag != "" {
		return strings.TrimRight(flag, "/")
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		cfg = config.Defaults()
	}
	bind := cfg.Server.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", bind, cfg.Server.Port)
}

func newQueueListCmd(server *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List comments awaiting review, highest priority first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var body struct {
				Count int               `json:"count"`
				Items []moderation.Item `json:"items"`
			}
			if err := getJSON(serverURL(*server)+"/admin/queue", &body); err != nil {
				return err
			}

			if body.Count == 0 {
				fmt.Println("Moderation queue is empty.")
				return nil
			}

			id := color.New(color.FgCyan)
			high := color.New(color.FgRed, color.Bold)
			mid := color.New(color.FgYellow)
			for _, item := range body.Items {
				pri := mid
				if item.Priority >= 50 {
					pri = high
				}
				fmt.Printf("%s  %s  %s\n",
					id.Sprint(item.ID),
					pri.Sprintf("priority %d", item.Priority),
					item.QueuedAt.Format(time.RFC3339))
				fmt.Printf("    %s: %s\n", item.Comment.Author, excerptLine(item.Comment.Content))
				fmt.Printf("    reasons: %s\n", strings.Join(item.Reasons, "; "))
			}
			return nil
		},
	}
}

func newQueueResolveCmd(server *string, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("%s/admin/queue/%s/%s", serverURL(*server), args[0], verb)
			req, err := http.NewRequestWithContext(cmd.Context(), "POST", url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("calling server: %w", err)
			}
			defer resp.Body.Close() //nolint:errcheck // best-effort cleanup

			if resp.StatusCode != http.StatusOK {
				data, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
			}

			var item moderation.Item
			if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
				return fmt.Errorf("decoding response: %w", err)
			}

			status := color.GreenString(string(item.Status))
			if item.Status == moderation.StatusBlocked {
				status = color.RedString(string(item.Status))
			}
			fmt.Printf("%s  %s by %s\n", item.ID, status, item.Moderator)
			return nil
		},
	}
}

func getJSON(url string, v any) error {
	resp, err := http.Get(url) //nolint:gosec // operator-supplied URL
	if err != nil {
		return fmt.Errorf("calling server: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort cleanup

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func excerptLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 80 {
		return s[:80] + "…"
	}
	return s
}
