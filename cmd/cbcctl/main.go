// Package main provides cbcctl, the operator CLI for the competency scale and
// student mastery reports.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/cbc-grading-api/internal/bootstrap"
	"github.com/noah-isme/cbc-grading-api/internal/cbc"
	"github.com/noah-isme/cbc-grading-api/internal/config"
	"github.com/noah-isme/cbc-grading-api/internal/dto"
	"github.com/noah-isme/cbc-grading-api/internal/service"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cbcctl",
		Short:         "Inspect the CBC competency scale and student mastery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(levelsCmd())
	cmd.AddCommand(classifyCmd())
	cmd.AddCommand(masteryCmd())

	return cmd
}

func levelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "levels",
		Short: "List the competency levels, best first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tLABEL\tFROM\tKEY\tMASTERED")
			for _, level := range dto.NewLevelResponses() {
				fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%s\t%t\n", level.Code, level.Label, level.MinPercent, level.Shortcut, level.Mastered)
			}
			return w.Flush()
		},
	}
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify SCORE TOTAL",
		Short: "Map a raw score onto the competency scale",
		Example: `  cbcctl classify 7 10     # ME (70%)
  cbcctl classify 18.5 20  # EE (92.5%)`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("score: %w", err)
			}
			total, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("total: %w", err)
			}

			level, err := cbc.Classify(score, total)
			if err != nil {
				return fmt.Errorf("cannot classify %s/%s: %w", args[0], args[1], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%.1f%%)\n", level, level.Label(), cbc.Percentage(score, total))
			return nil
		},
	}
}

func masteryCmd() *cobra.Command {
	var (
		studentID  uint
		areaID     uint
		outputJSON bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mastery",
		Short: "Print a student's mastery report for one learning area",
		Long: `Build a student's mastery report from the configured records backend.

The backend is chosen by CBC_BACKEND_MODE (rest or database) exactly as for
the API server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if studentID == 0 || areaID == 0 {
				return fmt.Errorf("--student and --area are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()

			records, err := bootstrap.OpenRecords(cfg, logger)
			if err != nil {
				return err
			}
			defer records.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			mastery := service.NewMasteryService(records, nil, 0, validator.New(validator.WithRequiredStructEnabled()), logger)
			report, err := mastery.StudentMastery(ctx, dto.MasteryRequest{StudentID: studentID, LearningAreaID: areaID})
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().UintVar(&studentID, "student", 0, "Student id")
	cmd.Flags().UintVar(&areaID, "area", 0, "Learning area id")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output the report as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")

	return cmd
}

func printReport(out io.Writer, response dto.MasteryResponse) error {
	report := response.Report
	fmt.Fprintf(out, "%s (%s): %d of %d outcomes mastered (%d%%)\n",
		report.Name, report.Code, report.Mastery.Mastered, report.Mastery.Total, report.Mastery.Percentage)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STRAND\tSUB-STRAND\tMASTERED\tTOTAL\tPERCENT")
	for _, strand := range report.Strands {
		for _, sub := range strand.SubStrands {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d%%\n", strand.Name, sub.Name, sub.Mastery.Mastered, sub.Mastery.Total, sub.Mastery.Percentage)
		}
	}
	return w.Flush()
}
