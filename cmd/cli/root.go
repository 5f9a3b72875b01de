package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hamed0406/llmuptime/internal/domain"
)

// NewRootCmd builds the llmuptime client with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "llmuptime",
		Short:         "Query the LLM uptime API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	base := os.Getenv("API_BASE")
	if base == "" {
		base = "http://127.0.0.1:9876"
	}
	root.PersistentFlags().String("api", base, "API base URL (env API_BASE)")
	root.PersistentFlags().String("api-key", os.Getenv("LLMUPTIME_API_KEY"), "API key (env LLMUPTIME_API_KEY)")
	root.PersistentFlags().Bool("json", false, "print the raw JSON response")

	root.AddCommand(
		newStatusCmd(),
		newHistoryCmd(),
		newStatsCmd(),
		newPruneCmd(),
	)
	return root
}

func clientFrom(cmd *cobra.Command) *apiClient {
	base, _ := cmd.Flags().GetString("api")
	key, _ := cmd.Flags().GetString("api-key")
	return newAPIClient(base, key)
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe every provider now and print the results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var body map[string]json.RawMessage
			hdr, err := clientFrom(cmd).do(http.MethodGet, "/api/status", nil, &body)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, body)
			}

			var ts string
			_ = json.Unmarshal(body["timestamp"], &ts)
			_, _ = fmt.Fprintf(out, "check %s at %s\n", hdr.Get("X-Check-ID"), ts)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "PROVIDER\tNAME\tSTATUS\tLATENCY\tDETAIL")
			for _, key := range sortedKeys(body) {
				if key == "timestamp" {
					continue
				}
				var r domain.ProviderResult
				if err := json.Unmarshal(body[key], &r); err != nil {
					return fmt.Errorf("decoding %s: %w", key, err)
				}
				detail := ""
				if r.Error != nil {
					detail = *r.Error
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", key, r.Name, r.Status, millis(r.ResponseTime), detail)
			}
			return tw.Flush()
		},
	}
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded probe results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			hours, _ := cmd.Flags().GetInt("hours")
			var body struct {
				History map[string][]domain.HistoryEntry `json:"history"`
			}
			q := url.Values{"hours": {strconv.Itoa(hours)}}
			if _, err := clientFrom(cmd).do(http.MethodGet, "/api/history", q, &body); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, body)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "PROVIDER\tTIMESTAMP\tSTATUS\tLATENCY\tERROR")
			for _, key := range sortedKeys(body.History) {
				for _, e := range body.History[key] {
					msg := ""
					if e.Error != nil {
						msg = *e.Error
					}
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", key, e.Timestamp.Format("2006-01-02 15:04:05"), e.Status, millis(e.ResponseTime), msg)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("hours", 24, "window size in hours")
	return cmd
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show uptime and latency per provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			hours, _ := cmd.Flags().GetInt("hours")
			var body struct {
				Stats map[string]domain.UptimeStats `json:"stats"`
			}
			q := url.Values{"hours": {strconv.Itoa(hours)}}
			if _, err := clientFrom(cmd).do(http.MethodGet, "/api/stats", q, &body); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if wantJSON(cmd) {
				return printJSON(out, body)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "PROVIDER\tCHECKS\tOK\tUPTIME\tAVG\tMIN\tMAX")
			for _, key := range sortedKeys(body.Stats) {
				s := body.Stats[key]
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f%%\t%s\t%s\t%s\n", key,
					s.TotalChecks, s.SuccessCount, s.UptimePercent,
					millis(s.AvgResponseTime), millis(s.MinResponseTime), millis(s.MaxResponseTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Int("hours", 24, "window size in hours")
	return cmd
}

func newPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete history older than --days (admin key)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			days, _ := cmd.Flags().GetInt("days")
			var body struct {
				Deleted int64 `json:"deleted"`
			}
			q := url.Values{"days": {strconv.Itoa(days)}}
			if _, err := clientFrom(cmd).do(http.MethodPost, "/api/admin/prune", q, &body); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %d rows older than %d days\n", body.Deleted, days)
			return err
		},
	}
	cmd.Flags().Int("days", 7, "retention in days")
	return cmd
}

func millis(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64) + " ms"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
