package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	env "github.com/netflix/go-env"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ca-srg/hybridgate/internal/metrics"
)

var (
	statsDays    int
	statsFormat  string
	statsDBPath  string
	statsOutcome string
	statsDate    string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show recorded search tool invocation counts",
	Long: `
Show how many search tool invocations the gateway has recorded, split by
outcome (success, empty, degraded, rejected), in total and per day.

The database path is taken from --db, then METRICS_DB_PATH, then
~/.hybridgate/stats.db.

Examples:
  hybridgate stats
  hybridgate stats --days 30 --format json
  hybridgate stats --outcome rejected
  hybridgate stats --date 2026-10-01
`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsDays, "days", 7, "Number of days of daily counts to show")
	statsCmd.Flags().StringVar(&statsFormat, "format", "text", "Output format: text|json|yaml")
	statsCmd.Flags().StringVar(&statsDBPath, "db", "", "Path to the invocation metrics database")
	statsCmd.Flags().StringVar(&statsOutcome, "outcome", "", "Only show one outcome: success|empty|degraded|rejected")
	statsCmd.Flags().StringVar(&statsDate, "date", "", "Show a single day (YYYY-MM-DD) instead of the last --days days")
}

// statsFilter narrows the report to some outcomes and optionally one date.
type statsFilter struct {
	Days     int
	Date     string
	Outcomes []metrics.Outcome
}

func parseStatsFilter(days int, outcome, date string) (statsFilter, error) {
	f := statsFilter{Days: days, Outcomes: metrics.Outcomes}
	if days <= 0 {
		return f, fmt.Errorf("--days must be positive, got %d", days)
	}

	if outcome = strings.ToLower(strings.TrimSpace(outcome)); outcome != "" {
		found := false
		for _, o := range metrics.Outcomes {
			if string(o) == outcome {
				f.Outcomes = []metrics.Outcome{o}
				found = true
				break
			}
		}
		if !found {
			return f, fmt.Errorf("unknown outcome %q (want success, empty, degraded or rejected)", outcome)
		}
	}

	if date = strings.TrimSpace(date); date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return f, fmt.Errorf("--date must be YYYY-MM-DD, got %q", date)
		}
		f.Date = date
	}
	return f, nil
}

type statsEnv struct {
	MetricsDBPath string `env:"METRICS_DB_PATH"`
}

type dailyStats struct {
	Date   string           `json:"date" yaml:"date"`
	Counts map[string]int64 `json:"counts" yaml:"counts"`
}

type statsReport struct {
	Outcomes []string         `json:"-" yaml:"-"`
	Database string           `json:"database" yaml:"database"`
	Totals   map[string]int64 `json:"totals" yaml:"totals"`
	Daily    []dailyStats     `json:"daily" yaml:"daily"`
}

func resolveStatsDBPath() (string, error) {
	if statsDBPath != "" {
		return statsDBPath, nil
	}
	var e statsEnv
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return "", fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if e.MetricsDBPath != "" {
		return e.MetricsDBPath, nil
	}
	return metrics.DefaultPath()
}

func runStats(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(strings.TrimSpace(statsFormat))
	switch format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unsupported format %q (want text, json or yaml)", statsFormat)
	}
	filter, err := parseStatsFilter(statsDays, statsOutcome, statsDate)
	if err != nil {
		return err
	}

	dbPath, err := resolveStatsDBPath()
	if err != nil {
		return err
	}

	store, err := metrics.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open metrics database: %w", err)
	}
	defer func() { _ = store.Close() }()

	report, err := buildStatsReport(store, dbPath, filter)
	if err != nil {
		return err
	}
	return writeStatsReport(cmd.OutOrStdout(), format, report)
}

func buildStatsReport(store *metrics.Store, dbPath string, filter statsFilter) (*statsReport, error) {
	report := &statsReport{
		Database: dbPath,
		Totals:   make(map[string]int64, len(filter.Outcomes)),
		Daily:    []dailyStats{},
	}
	for _, o := range filter.Outcomes {
		report.Outcomes = append(report.Outcomes, string(o))
	}

	if len(filter.Outcomes) == 1 {
		total, err := store.GetTotalByOutcome(filter.Outcomes[0])
		if err != nil {
			return nil, err
		}
		report.Totals[string(filter.Outcomes[0])] = total
	} else {
		totals, err := store.GetAllTotals()
		if err != nil {
			return nil, err
		}
		for outcome, n := range totals {
			report.Totals[string(outcome)] = n
		}
	}

	if filter.Date != "" {
		day := dailyStats{Date: filter.Date, Counts: make(map[string]int64, len(filter.Outcomes))}
		for _, o := range filter.Outcomes {
			n, err := store.GetCountByDate(o, filter.Date)
			if err != nil {
				return nil, err
			}
			day.Counts[string(o)] = n
		}
		report.Daily = append(report.Daily, day)
		return report, nil
	}

	counts, err := store.GetDailyCounts(filter.Days)
	if err != nil {
		return nil, err
	}

	selected := make(map[metrics.Outcome]bool, len(filter.Outcomes))
	for _, o := range filter.Outcomes {
		selected[o] = true
	}
	byDate := make(map[string]map[string]int64)
	for _, dc := range counts {
		if !selected[dc.Outcome] {
			continue
		}
		day, ok := byDate[dc.Date]
		if !ok {
			day = make(map[string]int64, len(filter.Outcomes))
			for _, o := range filter.Outcomes {
				day[string(o)] = 0
			}
			byDate[dc.Date] = day
		}
		day[string(dc.Outcome)] += dc.Count
	}
	for date, day := range byDate {
		report.Daily = append(report.Daily, dailyStats{Date: date, Counts: day})
	}
	sort.Slice(report.Daily, func(i, j int) bool {
		return report.Daily[i].Date > report.Daily[j].Date
	})
	return report, nil
}

func writeStatsReport(w io.Writer, format string, report *statsReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	}

	fmt.Fprintf(w, "Database: %s\n\n", report.Database)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"DATE"}
	for _, o := range report.Outcomes {
		header = append(header, strings.ToUpper(o))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	row := func(label string, counts map[string]int64) {
		cols := []string{label}
		for _, o := range report.Outcomes {
			cols = append(cols, fmt.Sprintf("%d", counts[o]))
		}
		fmt.Fprintln(tw, strings.Join(cols, "\t"))
	}
	for _, d := range report.Daily {
		row(d.Date, d.Counts)
	}
	row("TOTAL", report.Totals)
	return tw.Flush()
}
