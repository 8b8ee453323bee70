package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hrygo/xflo/export"
	"github.com/hrygo/xflo/internal/chat"
)

var exportCmd = &cobra.Command{
	Use:   "export <thread-id>",
	Short: "Write a thread as Markdown or HTML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(cmd.Flag("format").Value.String())
		if err != nil {
			return err
		}
		p, err := loadProfile()
		if err != nil {
			return err
		}
		driver, s, err := openStore(cmd.Context(), p)
		if err != nil {
			return err
		}
		defer driver.Close()

		// Resolution does not need a streamer or a restorer.
		th, ok := chat.NewSession(s, nil, nil, p.Model).Resolve(args[0])
		if !ok {
			return errors.Wrapf(chat.ErrUnknownThread, "%q", args[0])
		}

		out := cmd.OutOrStdout()
		if path := cmd.Flag("output").Value.String(); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return errors.Wrap(err, "failed to create export file")
			}
			defer f.Close()
			out = f
		}
		return export.Write(out, th, format)
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "markdown", "output format (markdown, html)")
	exportCmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")
}
