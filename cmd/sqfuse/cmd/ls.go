package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/absfs/sqfuse"
)

var lsCmd = &cobra.Command{
	Use:     "ls <image> [path]",
	Short:   "list a directory of a squashfs image",
	Example: "sqfuse ls -l ./base.sqfs /etc",
	Args:    cobra.RangeArgs(1, 2),
	Run:     doLs,
}

func initLs() {
	lsCmd.Flags().BoolP("long", "l", false, "show mode, owner, size and modification time")
	lsCmd.Flags().BoolP("recursive", "R", false, "list subdirectories recursively")
}

func doLs(cmd *cobra.Command, args []string) {
	dir := "/"
	if len(args) > 1 {
		dir = path.Clean("/" + args[1])
	}
	long := getFlagBool(cmd, "long")
	recursive := getFlagBool(cmd, "recursive")

	withSession(args[0], func(s *sqfuse.Session, logger *zerolog.Logger) error {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 1, ' ', 0)
		defer w.Flush()
		return listDir(s, w, dir, long, recursive, logger)
	})
}

func listDir(s *sqfuse.Session, w *tabwriter.Writer, dir string, long, recursive bool, logger *zerolog.Logger) error {
	fsys := s.FileSystem()
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return err
	}
	logger.Debug().Str("dir", dir).Int("entries", len(entries)).Msg("listing")

	if recursive {
		fmt.Fprintf(w, "%s:\n", dir)
	}
	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, path.Join(dir, e.Name()))
		}
		if !long {
			fmt.Fprintln(w, e.Name())
			continue
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, longLine(fsys, path.Join(dir, e.Name()), info))
	}

	if recursive {
		for _, sub := range subdirs {
			fmt.Fprintln(w)
			if err := listDir(s, w, sub, long, recursive, logger); err != nil {
				return err
			}
		}
	}
	return nil
}

type readlinker interface {
	Readlink(name string) (string, error)
}

// longLine formats an entry like ls -l.
func longLine(fsys readlinker, p string, info fs.FileInfo) string {
	var uid, gid uint32
	if st, ok := statOf(info); ok {
		uid, gid = st.UID, st.GID
	}
	name := info.Name()
	if info.Mode()&fs.ModeSymlink != 0 {
		if target, err := fsys.Readlink(p); err == nil {
			name += " -> " + target
		}
	}
	return fmt.Sprintf("%s\t%d\t%d\t%s\t%s\t%s",
		info.Mode(), uid, gid,
		humanize.IBytes(uint64(info.Size())),
		info.ModTime().Format("2006-01-02 15:04"),
		name)
}
