package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/warp/cafeteria-engine/autoreservation"
	"github.com/warp/cafeteria-engine/reservation"
)

// newBatchCmd runs the auto-reservation batch once, through the same retry
// envelope as the scheduler, and prints the manifest as JSON.
func newBatchCmd(configPath *string) *cobra.Command {
	var date, from, to string

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run the auto-reservation batch once",
		Long: "Runs the auto-reservation batch for --date, for every date in --from..--to, " +
			"or, without flags, for the next business date the cutoff still allows.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" && (from != "" || to != "") {
				return fmt.Errorf("--date cannot be combined with --from/--to")
			}
			if (from == "") != (to == "") {
				return fmt.Errorf("--from and --to must be given together")
			}

			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			var results []*autoreservation.BatchResult
			switch {
			case date != "":
				d, err := reservation.ParseDate(date, a.location)
				if err != nil {
					return fmt.Errorf("invalid --date %q, want YYYY-MM-DD", date)
				}
				result, err := a.scheduler.CreateReservationsForDate(ctx, d)
				if err != nil {
					return err
				}
				results = append(results, result)

			case from != "":
				start, err := reservation.ParseDate(from, a.location)
				if err != nil {
					return fmt.Errorf("invalid --from %q, want YYYY-MM-DD", from)
				}
				end, err := reservation.ParseDate(to, a.location)
				if err != nil {
					return fmt.Errorf("invalid --to %q, want YYYY-MM-DD", to)
				}
				results, err = a.scheduler.CreateReservationsForDateRange(ctx, start, end)
				if err != nil {
					return err
				}

			default:
				result, err := a.scheduler.ExecuteNow(ctx)
				if err != nil {
					return err
				}
				results = append(results, result)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(results); err != nil {
				return err
			}

			for _, r := range results {
				if r.HasFailures() {
					return fmt.Errorf("%d users failed for %s", r.FailedReservations, reservation.FormatDate(r.Date))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "target date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&from, "from", "", "first date of a range (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last date of a range (YYYY-MM-DD)")
	return cmd
}
