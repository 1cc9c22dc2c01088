package cmd

import (
	"io"
	"os"

	"emperror.dev/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/absfs/sqfuse"
)

var catCmd = &cobra.Command{
	Use:     "cat <image> <path>...",
	Short:   "print files of a squashfs image",
	Example: "sqfuse cat ./base.sqfs /etc/os-release",
	Args:    cobra.MinimumNArgs(2),
	Run:     doCat,
}

func doCat(cmd *cobra.Command, args []string) {
	withSession(args[0], func(s *sqfuse.Session, logger *zerolog.Logger) error {
		fsys := s.FileSystem()
		for _, name := range args[1:] {
			f, err := fsys.Open(name)
			if err != nil {
				return err
			}
			n, err := io.Copy(os.Stdout, f)
			f.Close()
			if err != nil {
				return errors.Wrapf(err, "cannot read '%s'", name)
			}
			logger.Debug().Str("path", name).Int64("bytes", n).Msg("copied")
		}
		return nil
	})
}
