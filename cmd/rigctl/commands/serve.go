package commands

import (
	"context"

	"github.com/spf13/cobra"

	"ephys-cam/pkg/api"
	"ephys-cam/pkg/utils"
	"ephys-cam/pkg/webdav"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the cameras and serve the control API",
	Long: `Open every configured camera and serve the HTTP control API. Recordings
are started and stopped through the API; output directories can be exported
over WebDAV on demand.`,
	Example: `  # Serve with the simulated cameras
  rigctl serve

  # Serve real cameras on a custom port
  rigctl serve --backend v4l2 --port 9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	r, err := openRig()
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Errorf("close rig: %s", err)
		}
	}()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	dav := webdav.New(ctx, settings.WebdavPort, r.Mounts())
	defer dav.Stop()

	srv := api.NewServer(r, dav, settings.CORSOrigins...)
	logger.Infof("serving %d camera(s) from %s", len(r.Sessions()), settings.DetailsFile)

	return utils.ListenAndServe(ctx, srv.Handler(), settings.Port)
}
