package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrygo/backoffice/server/stats"
	"github.com/hrygo/backoffice/server/timezone"
)

var (
	statsTimezone   string
	statsExpiryDays int
	statsJSON       bool
)

func init() {
	statsCmd.Flags().StringVar(&statsTimezone, "timezone", "UTC", "IANA timezone contract dates are read in")
	statsCmd.Flags().IntVar(&statsExpiryDays, "expiry-days", 30, "days ahead a contract end counts as expiring")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the overview as JSON")
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "overview",
	Short: "Print the dashboard overview of every collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		loc, err := timezone.ParseTimezone(statsTimezone)
		if err != nil {
			return err
		}
		p, err := loadProfile()
		if err != nil {
			return err
		}
		s, err := newStore(p)
		if err != nil {
			return err
		}
		defer s.Close()

		collector := stats.NewCollector(s, stats.Config{
			ExpiryWindow: time.Duration(statsExpiryDays) * 24 * time.Hour,
			Location:     loc,
		})
		overview := collector.Collect(cmd.Context())
		if statsJSON {
			raw, err := json.Marshal(overview)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), raw)
		}
		fmt.Fprint(cmd.OutOrStdout(), overview.GetSummary())
		return nil
	},
}
