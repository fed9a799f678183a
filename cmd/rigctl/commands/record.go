package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	subject  string
	duration time.Duration

	recordCmd = &cobra.Command{
		Use:   "record",
		Short: "Record one session without the API",
		Example: `  # Record subject m12 for ten minutes
  rigctl record --subject m12 --duration 10m`,
		RunE: runRecord,
	}
)

func init() {
	recordCmd.Flags().StringVar(&subject, "subject", "", "subject name")
	recordCmd.Flags().DurationVar(&duration, "duration", time.Minute, "recording length; Ctrl+C stops early")
	_ = recordCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(recordCmd)
}

func runRecord(cmd *cobra.Command, _ []string) error {
	if duration <= 0 {
		return fmt.Errorf("invalid duration %s", duration)
	}
	r, err := openRig()
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Errorf("close rig: %s", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sum, err := r.Record(ctx, subject, duration)
	if sum == nil {
		return err
	}
	if err != nil {
		logger.Errorf("recording finished with errors: %s", err)
	}
	for _, c := range sum.Cameras {
		size := "?"
		if info, statErr := os.Stat(c.Video); statErr == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		logger.Infof("%s: %d frames (%d dropped, %d late) -> %s [%s]",
			c.Name, c.Frames, c.Stats.Dropped, c.Stats.Late, c.Video, size)
	}
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	return nil
}
