package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/ticketlens/internal/pipeline"
	"github.com/kalambet/ticketlens/internal/report"
	"github.com/kalambet/ticketlens/internal/storage"
	"github.com/kalambet/ticketlens/internal/ticket"
	"github.com/kalambet/ticketlens/internal/ticketstore"
)

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file|-]",
	Short: "Analyze a ticket",
	Long: `Analyze a ticket and print the report.

The ticket is read from a JSON file (flat or Jira REST issue), from stdin
with "-", or built from flags. Flags override fields read from a file.

Examples:
  ticketlens analyze PROJ-123.json
  jira issue view PROJ-123 --raw | ticketlens analyze - --format text
  ticketlens analyze --title "Add SSO login" --priority high --labels auth,web
  ticketlens analyze design.json --pdf mockups.pdf --figma-token $FIGMA_TOKEN`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatStr, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		noStore, _ := cmd.Flags().GetBool("no-store")
		pdfs, _ := cmd.Flags().GetStringSlice("pdf")
		figmaToken, _ := cmd.Flags().GetString("figma-token")

		format, err := report.ParseFormat(formatStr)
		if err != nil {
			return err
		}
		t, err := readTicket(cmd, args, cmd.InOrStdin())
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if figmaToken != "" {
			cfg.Figma.Token = figmaToken
		}

		ctx := cmd.Context()
		a, err := openApp(ctx, cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		out, err := a.analyzer.Run(ctx, pipeline.Request{Ticket: t, PDFs: pdfs, NoStore: noStore})
		if errors.Is(err, ticket.ErrInsufficientData) {
			return fmt.Errorf("ticket needs a title or description")
		}
		if err != nil {
			return err
		}

		text, err := a.engine.Renderer().Render(report.Document{Ticket: out.Ticket, Result: out.Result}, format)
		if err != nil {
			return err
		}
		if err := writeOutput(cmd.OutOrStdout(), output, text); err != nil {
			return err
		}

		if out.Stored {
			printSuccess("Stored %s (%d questions, %d test cases)", out.ID, out.Result.QuestionCount(), out.Result.TestCaseCount())
		}
		if output != "" {
			printSuccess("Report written to %s", output)
		}
		return nil
	},
}

func init() {
	f := analyzeCmd.Flags()
	f.String("id", "", "ticket key, e.g. PROJ-123")
	f.String("title", "", "ticket title")
	f.String("description", "", "ticket description")
	f.String("priority", "", "critical, high, medium, or low")
	f.StringSlice("labels", nil, "comma-separated labels")
	f.StringSlice("components", nil, "comma-separated components")
	f.String("format", "markdown", "report format: markdown, json, text, or html")
	f.StringP("output", "o", "", "write the report to a file instead of stdout")
	f.Bool("no-store", false, "do not persist the analysis")
	f.StringSlice("pdf", nil, "design PDF to extract context from (repeatable)")
	f.String("figma-token", "", "Figma API token (overrides figma.token)")
}

// readTicket builds the ticket from the optional file argument and flags.
func readTicket(cmd *cobra.Command, args []string, stdin io.Reader) (ticket.Ticket, error) {
	var t ticket.Ticket
	if len(args) == 1 {
		var (
			data []byte
			err  error
		)
		if args[0] == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return t, fmt.Errorf("reading ticket: %w", err)
		}
		if t, err = ticket.ParseJSON(data); err != nil {
			return t, err
		}
	}

	flags := cmd.Flags()
	if v, _ := flags.GetString("id"); v != "" {
		t.ID = v
	}
	if v, _ := flags.GetString("title"); v != "" {
		t.Title = v
	}
	if v, _ := flags.GetString("description"); v != "" {
		t.Description = v
	}
	if v, _ := flags.GetString("priority"); v != "" {
		t.Priority = ticket.Priority(v)
	}
	if v, _ := flags.GetStringSlice("labels"); len(v) > 0 {
		t.Labels = v
	}
	if v, _ := flags.GetStringSlice("components"); len(v) > 0 {
		t.Components = v
	}

	if len(args) == 0 && strings.TrimSpace(t.Title) == "" && strings.TrimSpace(t.Description) == "" {
		return t, errors.New("provide a ticket file, - for stdin, or --title/--description")
	}
	return t, nil
}

func writeOutput(stdout io.Writer, path, text string) error {
	if path == "" {
		_, err := io.WriteString(stdout, text)
		if err == nil && !strings.HasSuffix(text, "\n") {
			_, err = io.WriteString(stdout, "\n")
		}
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// withEngine opens the ticket store for commands that only read or manage
// stored tickets.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *ticketstore.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(cmd.Context(), e)
}

func notFound(id string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("ticket %s not found", id)
	}
	return err
}

// --- show ---

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the stored report of a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatStr, _ := cmd.Flags().GetString("format")
		format, err := report.ParseFormat(formatStr)
		if err != nil {
			return err
		}
		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			text, err := e.Report(ctx, args[0], format)
			if err != nil {
				return notFound(args[0], err)
			}
			return writeOutput(cmd.OutOrStdout(), "", text)
		})
	},
}

func init() {
	showCmd.Flags().String("format", "markdown", "report format: markdown, json, text, or html")
}

// --- list / recent / search ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored tickets, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			tickets, err := e.List(ctx, limit, offset)
			if err != nil {
				return err
			}
			printSummaries(cmd.OutOrStdout(), tickets)
			return nil
		})
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List tickets created in the last days",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			tickets, err := e.Recent(ctx, days)
			if err != nil {
				return err
			}
			printSummaries(cmd.OutOrStdout(), tickets)
			return nil
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <words...>",
	Short: "Find stored tickets matching every word",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			tickets, err := e.Search(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			printSummaries(cmd.OutOrStdout(), tickets)
			return nil
		})
	},
}

func init() {
	listCmd.Flags().Int("limit", 20, "maximum number of tickets")
	listCmd.Flags().Int("offset", 0, "number of tickets to skip")
	recentCmd.Flags().Int("days", 7, "look back this many days")
	searchCmd.Flags().Int("limit", 0, "maximum number of results (default search.default_limit)")
}

// --- stats / timeline ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics over stored tickets",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			st, err := e.Statistics(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Tickets:              %d\n", st.TotalTickets)
			fmt.Fprintf(w, "Questions:            %d (%.1f per ticket)\n", st.TotalQuestions, st.AvgQuestionsPerTicket)
			fmt.Fprintf(w, "Test cases:           %d (%.1f per ticket)\n", st.TotalTestCases, st.AvgTestCasesPerTicket)
			fmt.Fprintf(w, "Risk areas:           %d\n", st.TotalRisks)
			fmt.Fprintf(w, "Storage size:         %.2f MB\n", st.StorageSizeMB)
			printBreakdown(w, "Priorities", st.PriorityDistribution)
			printBreakdown(w, "Categories", st.CategoryBreakdown)
			printBreakdown(w, "Labels", st.LabelBreakdown)
			return nil
		})
	},
}

func printBreakdown(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range sortedByCount(counts) {
		fmt.Fprintf(w, "  %-20s %d\n", k, counts[k])
	}
}

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show tickets created per day",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			points, err := e.Timeline(ctx, days)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(points) == 0 {
				fmt.Fprintln(w, "No tickets in range.")
				return nil
			}
			for _, p := range points {
				fmt.Fprintf(w, "%s  %3d  %s\n", p.Date, p.Count, strings.Repeat("#", min(p.Count, 50)))
			}
			return nil
		})
	},
}

func init() {
	statsCmd.Flags().Bool("json", false, "print statistics as JSON")
	timelineCmd.Flags().Int("days", 30, "number of days to cover (0 for all)")
}

// --- export / backup ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every stored ticket to JSON or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatStr, _ := cmd.Flags().GetString("format")
		format, err := ticketstore.ParseExportFormat(formatStr)
		if err != nil {
			return err
		}
		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			path, err := e.Export(ctx, format)
			if err != nil {
				return err
			}
			printSuccess("Exported to %s", path)
			return nil
		})
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Archive the storage tree (and upload it when backup.s3_bucket is set)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			printStep("Creating backup...")
			res, err := e.Backup(ctx)
			if err != nil && !errors.Is(err, ticketstore.ErrUploadFailed) {
				return err
			}
			printSuccess("Backed up %d files (%d bytes) to %s", res.Files, res.Bytes, res.Path)
			if err != nil {
				return err
			}
			if res.Location != "" {
				printSuccess("Uploaded to %s", res.Location)
			}
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().String("format", "json", "export format: json or csv")
}

// --- delete / purge / reindex ---

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			if err := e.Delete(ctx, args[0]); err != nil {
				return notFound(args[0], err)
			}
			printSuccess("Deleted %s", args[0])
			return nil
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every stored ticket (exports and backups are kept)",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes every stored ticket. Re-run with --confirm to proceed.")
			return nil
		}
		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			n, err := e.DeleteAll(ctx)
			if err != nil {
				return err
			}
			printSuccess("Deleted %d tickets", n)
			return nil
		})
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the search index from the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			n, err := e.Reindex(ctx)
			if err != nil {
				return err
			}
			printSuccess("Indexed %d tickets", n)
			return nil
		})
	},
}

func init() {
	purgeCmd.Flags().Bool("confirm", false, "confirm deletion")
}
