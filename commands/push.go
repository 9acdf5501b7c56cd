package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"nester/harvester"
)

func pushCommand(a *app) *cobra.Command {
	var url, file string

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Send a scan result document to a collector",
		Example: `  nester push --url http://192.168.40.131:5000 --file scan.json
  harvester-scan | nester push --url http://collector:5000 --file -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog, err := a.setupLogger(false)
			if err != nil {
				return err
			}
			defer closeLog()

			var body []byte
			if file == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(file)
			}
			if err != nil {
				return errors.Wrapf(err, "failed to read %s", file)
			}

			client, err := harvester.New(url, nil)
			if err != nil {
				return err
			}
			if err := client.PushRaw(cmd.Context(), body); err != nil {
				return err
			}

			a.log.Debug().Str("url", url).Int("bytes", len(body)).Msg("scan result pushed")
			fmt.Fprintln(cmd.OutOrStdout(), "success")
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&url, "url", "http://localhost:5000", "Collector base URL")
	fl.StringVar(&file, "file", "-", "JSON document to send, - for stdin")
	return cmd
}
