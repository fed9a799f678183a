package commands

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"ephys-cam/pkg/config"
)

var (
	force bool

	detailsCmd = &cobra.Command{
		Use:   "details",
		Short: "Manage the camera details file and device state",
	}

	detailsWriteCmd = &cobra.Command{
		Use:   "write",
		Short: "Write the default two camera details file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(settings.DetailsFile); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", settings.DetailsFile)
			}
			if err := config.Default().Save(settings.DetailsFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", settings.DetailsFile)
			return nil
		},
	}

	detailsShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the camera details and the devices of the backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			details, err := config.Load(settings.DetailsFile)
			if err != nil {
				return err
			}
			lib, err := openLibrary()
			if err != nil {
				return err
			}
			devices, err := lib.Devices()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(struct {
				Backend string          `json:"backend"`
				Devices []string        `json:"devices"`
				Details *config.Details `json:"details"`
			}{settings.Backend, devices, details}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	detailsSaveStateCmd = &cobra.Command{
		Use:   "save-state",
		Short: "Open every camera and save its device state into the state directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := openRig()
			if err != nil {
				return err
			}
			defer r.Close()
			paths, err := r.SaveDeviceStates()
			for _, p := range paths {
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", p)
			}
			return err
		},
	}
)

func init() {
	detailsWriteCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	detailsCmd.AddCommand(detailsWriteCmd, detailsShowCmd, detailsSaveStateCmd)
	rootCmd.AddCommand(detailsCmd)
}
