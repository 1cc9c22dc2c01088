package cmd

import (
	"fmt"
	"io/fs"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/absfs/sqfuse"
	"github.com/absfs/sqfuse/internal/squashfs"
)

var statCmd = &cobra.Command{
	Use:     "stat <image> [path]...",
	Aliases: []string{"info"},
	Short:   "show attributes of entries, or a summary of the image",
	Example: "sqfuse stat ./base.sqfs\nsqfuse stat ./base.sqfs /bin/sh",
	Args:    cobra.MinimumNArgs(1),
	Run:     doStat,
}

func initStat() {
	statCmd.Flags().BoolP("dereference", "L", false, "follow symbolic links")
}

func statOf(info fs.FileInfo) (squashfs.Stat, bool) {
	st, ok := info.Sys().(squashfs.Stat)
	return st, ok
}

func doStat(cmd *cobra.Command, args []string) {
	follow := getFlagBool(cmd, "dereference")

	withSession(args[0], func(s *sqfuse.Session, logger *zerolog.Logger) error {
		if len(args) == 1 {
			return printImageInfo(s)
		}

		fsys := s.FileSystem()
		for _, name := range args[1:] {
			var info fs.FileInfo
			var err error
			if follow {
				info, err = fsys.Stat(name)
			} else {
				info, err = fsys.Lstat(name)
			}
			if err != nil {
				return err
			}
			st, _ := statOf(info)
			fmt.Printf("  File: %s\n", name)
			fmt.Printf("  Size: %d (%s)\tInode: %d\tLinks: %d\n", info.Size(), humanize.IBytes(uint64(info.Size())), st.Ino, st.Nlink)
			fmt.Printf("  Mode: %s (%04o)\tUid: %d\tGid: %d\n", info.Mode(), st.Mode&0o7777, st.UID, st.GID)
			if st.Rdev != 0 {
				fmt.Printf("Device: %d,%d\n", st.Rdev>>8&0xfff, st.Rdev&0xff|(st.Rdev>>12)&0xfff00)
			}
			fmt.Printf("Modify: %s (%s)\n", info.ModTime().Format(time.RFC3339), humanize.Time(info.ModTime()))
		}
		return nil
	})
}

func printImageInfo(s *sqfuse.Session) error {
	info, err := s.Info()
	if err != nil {
		return err
	}
	fsinfo, err := s.Statfs()
	if err != nil {
		return err
	}
	fmt.Printf("Compression: %s\n", info.Compression)
	fmt.Printf("Block size:  %s\n", humanize.IBytes(uint64(info.BlockSize)))
	fmt.Printf("Image size:  %s (%d blocks)\n", humanize.IBytes(info.BytesUsed), fsinfo.Blocks)
	fmt.Printf("Inodes:      %s\n", humanize.Comma(int64(info.Inodes)))
	fmt.Printf("Fragments:   %s\n", humanize.Comma(int64(info.Fragments)))
	fmt.Printf("Owner ids:   %d\n", info.IDs)
	fmt.Printf("Created:     %s (%s)\n", info.ModTime.Format(time.RFC3339), humanize.Time(info.ModTime))
	return nil
}
