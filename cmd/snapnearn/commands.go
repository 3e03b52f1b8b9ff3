package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/DarsanV/HackaThrone-team91/internal/lifecycle"
	"github.com/DarsanV/HackaThrone-team91/internal/notice"
	"github.com/DarsanV/HackaThrone-team91/internal/policy"
)

func purgeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge REPORT_ID",
		Short: "Remove a report and its dispute from the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			engine := lifecycle.New(store, lifecycle.WithLogger(slog.Default()))
			if err := engine.Purge(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", args[0])
			return nil
		},
	}
}

func noticeCommand(configPath *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "notice REPORT_ID",
		Short: "Render the challan notice PDF of a challan-issued report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			pol, err := policy.Load(cfg.Policy.Path)
			if err != nil {
				return fmt.Errorf("load policy: %w", err)
			}
			rep, err := store.GetReport(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output == "" {
				output = fmt.Sprintf("challan-%s.pdf", args[0])
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}

			schedule := pol.Schedule()
			opts := notice.Options{Authority: cfg.Notice.Authority, Schedule: &schedule}
			if cfg.Notice.PaymentURL != "" && rep.Challan != nil {
				opts.PaymentURL = cfg.Notice.PaymentURL + "/" + rep.Challan.ChallanNumber
			}
			if err := notice.Render(f, rep, opts); err != nil {
				f.Close()
				os.Remove(output)
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default challan-REPORT_ID.pdf)")
	return cmd
}

func policyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect fine and risk policy files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check PATH",
		Short: "Validate a policy file and print its hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := policy.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "policy ok: %s\n", pol.Hash)
			fmt.Fprintf(out, "  fines:   %d violation types, default %d\n", len(pol.Fines), pol.DefaultFine)
			for _, s := range pol.Risk.Signals {
				fmt.Fprintf(out, "  signal:  %-18s weight %.2f threshold %.2f\n", s.Name, s.Weight, s.Threshold)
			}
			return nil
		},
	})
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "snapnearn %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}
}
