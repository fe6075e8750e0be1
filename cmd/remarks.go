package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/BerniceZTT/crm_engagement/schedule"
)

var remarksCmd = &cobra.Command{
	Use:   "remarks",
	Short: "Inspect the remark automation rules",
}

var remarksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the active remark rules (built-in or --remarks-file)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		engine, err := remarksEngine()
		if err != nil {
			return err
		}
		snap := engine.Snapshot()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "REMARK\tDAYS\tTEMPLATE\n")
		for _, r := range snap.Rules() {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", r.Key, r.OffsetDays, r.Template)
		}
		fmt.Fprintf(tw, "\nversion %d, %d rules\n", snap.Version(), snap.Len())
		return tw.Flush()
	},
}

var remarksAllocateCmd = &cobra.Command{
	Use:   "allocate <remark>",
	Short: "Show the follow-up date and feedback template a remark would get",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := remarksEngine()
		if err != nil {
			return err
		}
		remark := strings.Join(args, " ")

		today := engine.Today()
		if raw, _ := cmd.Flags().GetString("date"); raw != "" {
			if today, err = civil.ParseDate(raw); err != nil {
				return fmt.Errorf("--date: %w", err)
			}
		}

		s := engine.AllocateOn(remark, today)
		out := cmd.OutOrStdout()
		if !s.Matched {
			_, err = fmt.Fprintf(out, "%q has no automation rule; enter the follow-up date manually\n", remark)
			return err
		}
		_, err = fmt.Fprintf(out, "remark:   %s\nfrom:     %s (%s)\nnfd:      %s (%s)\ntemplate: %s\n",
			s.Remark, today, today.In(time.UTC).Weekday(), s.Date, s.Date.In(time.UTC).Weekday(), s.Template)
		return err
	},
}

func init() {
	rootCmd.AddCommand(remarksCmd)
	remarksCmd.AddCommand(remarksListCmd, remarksAllocateCmd)

	remarksAllocateCmd.Flags().String("date", "", "base date yyyy-mm-dd (default today)")
}

// remarksEngine 内置规则，配置了规则文件时以文件为准
func remarksEngine() (*schedule.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	engine := schedule.NewEngine(nil)
	if cfg.Remarks.File != "" {
		if _, err := schedule.LoadFile(cfg.Remarks.File, engine); err != nil {
			return nil, err
		}
	}
	return engine, nil
}
