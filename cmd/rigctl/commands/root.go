package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"ephys-cam/pkg/config"
	"ephys-cam/pkg/rig"
	"ephys-cam/pkg/sdk"
	"ephys-cam/pkg/utils"

	_ "ephys-cam/pkg/sdk/sim"
	_ "ephys-cam/pkg/sdk/v4l2"
)

var (
	cfgFile  string
	settings *config.Settings
	logger   *zap.SugaredLogger

	rootCmd = &cobra.Command{
		Use:   "rigctl",
		Short: "rigctl - synchronized camera recording for the ephys rig",
		Long: `rigctl opens every camera listed in the camera details file, applies the
saved device state, crop, rotation and exposure, and records triggered video
with per-frame timestamps.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadSettings,
	}
)

func init() {
	logger = utils.GetLogger()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (yaml, json or toml)")
	rootCmd.PersistentFlags().Int("port", 0, "http port (default 9999)")
	rootCmd.PersistentFlags().Int("webdav-port", 0, "webdav port (default 9998)")
	rootCmd.PersistentFlags().String("details", "", "camera details file (default camera_details.json)")
	rootCmd.PersistentFlags().String("state-dir", "", "device state directory (default configs)")
	rootCmd.PersistentFlags().String("backend", "", fmt.Sprintf("camera backend %v (default sim)", sdk.Backends()))
	rootCmd.PersistentFlags().Float64("fps", 0, "frame rate (default 30)")
	rootCmd.PersistentFlags().String("ntp-server", "", "ntp server used to record the clock offset")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	bind := map[string]string{
		"port":         "port",
		"webdav_port":  "webdav-port",
		"details_file": "details",
		"state_dir":    "state-dir",
		"backend":      "backend",
		"fps":          "fps",
		"ntp_server":   "ntp-server",
		"log_level":    "log-level",
	}
	for key, flag := range bind {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// loadSettings merges defaults, RIG_* variables, the settings file and the
// flags that were set.
func loadSettings(_ *cobra.Command, _ []string) error {
	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	s, err := config.LoadSettings(v)
	if err != nil {
		return err
	}
	if err = utils.SetLevel(s.LogLevel); err != nil {
		return err
	}
	settings = s

	return nil
}

func openLibrary() (sdk.Library, error) {
	return sdk.Get(settings.Backend)
}

func openRig() (*rig.Rig, error) {
	lib, err := openLibrary()
	if err != nil {
		return nil, err
	}
	details, err := config.Load(settings.DetailsFile)
	if err != nil {
		return nil, err
	}

	return rig.New(lib, details, rig.OptionsFromSettings(settings))
}

func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
