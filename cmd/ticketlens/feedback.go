package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/ticketlens/internal/ticketstore"
)

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Rate stored analyses and review the ratings",
}

var feedbackRateCmd = &cobra.Command{
	Use:   "rate <id> <section>=<1-5>...",
	Short: "Rate sections of a stored analysis",
	Long: `Rate sections of a stored analysis on a 1-5 scale.

Sections: ` + strings.Join(ticketstore.FeedbackSections, ", ") + `.
The comment and item lists are attached to the overall rating, or to the
first section given when overall is not rated.`,
	Example: `  ticketlens feedback rate PROJ-42 overall=4 questions=2 --comment "Too generic."`,
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := parseRatings(args[1:])
		if err != nil {
			return err
		}
		first := &entries[0]
		comment, _ := cmd.Flags().GetString("comment")
		first.Comment = comment
		first.HelpfulItems, _ = cmd.Flags().GetStringArray("helpful")
		first.UnhelpfulItems, _ = cmd.Flags().GetStringArray("unhelpful")
		first.MissingTopics, _ = cmd.Flags().GetStringArray("missing")
		user, _ := cmd.Flags().GetString("user")

		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			rows, err := e.SubmitFeedback(ctx, args[0], user, entries)
			if err != nil {
				return notFound(args[0], err)
			}
			printSuccess("Recorded %d rating(s) for %s", len(rows), rows[0].TicketID)
			return nil
		})
	},
}

// parseRatings reads section=rating pairs. overall, when given, comes first.
func parseRatings(pairs []string) ([]ticketstore.FeedbackEntry, error) {
	entries := make([]ticketstore.FeedbackEntry, 0, len(pairs))
	for _, p := range pairs {
		section, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("rating %q: want <section>=<1-5>", p)
		}
		rating, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("rating %q: %w", p, err)
		}
		entries = append(entries, ticketstore.FeedbackEntry{Section: section, Rating: rating})
	}
	if i := slices.IndexFunc(entries, func(fe ticketstore.FeedbackEntry) bool {
		return strings.EqualFold(strings.TrimSpace(fe.Section), "overall")
	}); i > 0 {
		entries[0], entries[i] = entries[i], entries[0]
	}
	return entries, nil
}

var feedbackShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "List the feedback left on a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			rows, err := e.TicketFeedback(ctx, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintf(w, "No feedback for %s.\n", args[0])
				return nil
			}
			for _, fb := range rows {
				fmt.Fprintf(w, "%s  %-24s %d/5  %s\n", fb.CreatedAt.Format("2006-01-02 15:04"), fb.Section, fb.Rating, truncate(fb.Comment, 60))
			}
			return nil
		})
	},
}

var feedbackSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize ratings across stored analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		section, _ := cmd.Flags().GetString("section")
		days, _ := cmd.Flags().GetInt("days")
		asJSON, _ := cmd.Flags().GetBool("json")
		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			sum, err := e.FeedbackSummary(ctx, section, days)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), sum)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Feedback:        %d\n", sum.Total)
			fmt.Fprintf(w, "Average rating:  %.2f\n", sum.AverageRating)
			fmt.Fprintln(w, "Distribution:")
			for r := 5; r >= 1; r-- {
				n := sum.RatingDistribution[r]
				fmt.Fprintf(w, "  %d  %3d  %s\n", r, n, strings.Repeat("#", min(n, 50)))
			}
			if len(sum.BySection) > 0 {
				fmt.Fprintln(w, "Sections:")
				for _, s := range sum.BySection {
					fmt.Fprintf(w, "  %-26s %.2f (%d)\n", s.Section, s.AverageRating, s.Count)
				}
			}
			printList(w, "Complaints", sum.CommonComplaints)
			printList(w, "Suggestions", sum.ImprovementSuggestions)
			printList(w, "Missing topics", sum.MissingTopics)
			if len(sum.LowRated) > 0 {
				fmt.Fprintf(w, "Low rated (<= %d):\n", ticketstore.LowRatingThreshold)
				for _, fb := range sum.LowRated {
					fmt.Fprintf(w, "  %-12s %-24s %d/5  %s\n", fb.TicketID, fb.Section, fb.Rating, truncate(fb.Comment, 50))
				}
			}
			return nil
		})
	},
}

func printList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, s := range items {
		fmt.Fprintf(w, "  - %s\n", s)
	}
}

var feedbackExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every feedback entry to JSON or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatStr, _ := cmd.Flags().GetString("format")
		format, err := ticketstore.ParseExportFormat(formatStr)
		if err != nil {
			return err
		}
		return withEngine(cmd, func(ctx context.Context, e *ticketstore.Engine) error {
			path, err := e.ExportFeedback(ctx, format)
			if err != nil {
				return err
			}
			printSuccess("Exported feedback to %s", path)
			return nil
		})
	},
}

func init() {
	feedbackRateCmd.Flags().String("comment", "", "free-text comment")
	feedbackRateCmd.Flags().String("user", "", "who is rating")
	feedbackRateCmd.Flags().StringArray("helpful", nil, "an item that was helpful (repeatable)")
	feedbackRateCmd.Flags().StringArray("unhelpful", nil, "an item that was not helpful (repeatable)")
	feedbackRateCmd.Flags().StringArray("missing", nil, "a topic the analysis missed (repeatable)")
	feedbackSummaryCmd.Flags().String("section", "", "only summarize one section")
	feedbackSummaryCmd.Flags().Int("days", 30, "number of days to cover (0 for all)")
	feedbackSummaryCmd.Flags().Bool("json", false, "print the summary as JSON")
	feedbackExportCmd.Flags().String("format", "json", "export format: json or csv")

	feedbackCmd.AddCommand(feedbackRateCmd, feedbackShowCmd, feedbackSummaryCmd, feedbackExportCmd)
}
