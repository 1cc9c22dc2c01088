package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emperror.dev/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/absfs/sqfuse"
)

var mountCmd = &cobra.Command{
	Use:     "mount [image] [mountpoint]",
	Short:   "mount a squashfs image read-only",
	Long:    "mount serves the image until it receives SIGINT or SIGTERM; image and mountpoint default to the config file",
	Example: "sqfuse mount ./base.sqfs /mnt/base",
	Args:    cobra.MaximumNArgs(2),
	Run:     doMount,
}

func initMount() {
	mountCmd.Flags().String("fsname", "", "filesystem name shown in the mount table")
	mountCmd.Flags().StringSliceP("option", "o", nil, "additional FUSE mount options")
	mountCmd.Flags().Bool("allow-other", false, "allow other users to access the mount")
	mountCmd.Flags().Bool("allow-root", false, "allow root to access the mount")
	mountCmd.Flags().Bool("no-default-permissions", false, "do permission checks in sqfuse instead of the kernel")
	mountCmd.Flags().Bool("direct-io", false, "bypass the page cache")
	mountCmd.Flags().Bool("debug", false, "log every FUSE request")
	mountCmd.Flags().Uint32("uid", 0, "report this owner for every entry (0 keeps the image owners)")
	mountCmd.Flags().Uint32("gid", 0, "report this group for every entry (0 keeps the image groups)")
}

func doMountConf(cmd *cobra.Command, args []string) {
	if len(args) > 0 {
		conf.Image = args[0]
	}
	if len(args) > 1 {
		conf.Mountpoint = args[1]
	}
	if str := getFlagString(cmd, "fsname"); str != "" {
		conf.FSName = str
	}
	if opts, err := cmd.Flags().GetStringSlice("option"); err == nil && len(opts) > 0 {
		conf.Options = append(conf.Options, opts...)
	}
	if getFlagBool(cmd, "allow-other") {
		conf.AllowOther = true
	}
	if getFlagBool(cmd, "allow-root") {
		conf.AllowRoot = true
	}
	if getFlagBool(cmd, "no-default-permissions") {
		conf.DefaultPermissions = false
	}
	if getFlagBool(cmd, "direct-io") {
		conf.DirectIO = true
	}
	if getFlagBool(cmd, "debug") {
		conf.Debug = true
	}
	if cmd.Flags().Changed("uid") {
		conf.UID, _ = cmd.Flags().GetUint32("uid")
	}
	if cmd.Flags().Changed("gid") {
		conf.GID, _ = cmd.Flags().GetUint32("gid")
	}
}

func mountOptions() *sqfuse.MountOptions {
	opts := sqfuse.DefaultMountOptions(conf.Mountpoint)
	opts.FSName = conf.FSName
	opts.AllowOther = conf.AllowOther
	opts.AllowRoot = conf.AllowRoot
	opts.DefaultPermissions = conf.DefaultPermissions
	opts.UID = conf.UID
	opts.GID = conf.GID
	opts.DirectIO = conf.DirectIO
	opts.AttrTimeout = conf.AttrTimeout.Duration
	opts.EntryTimeout = conf.EntryTimeout.Duration
	opts.Options = conf.Options
	opts.Debug = conf.Debug
	return opts
}

func doMount(cmd *cobra.Command, args []string) {
	doMountConf(cmd, args)
	if conf.Image == "" || conf.Mountpoint == "" {
		_ = cmd.Help()
		cobra.CheckErr(errors.New("image and mountpoint are required"))
	}

	logger, closer, err := createLogger()
	cobra.CheckErr(err)
	if closer != nil {
		defer closer.Close()
	}

	start := time.Now()
	s, err := openSession(conf.Image, logger)
	if err != nil {
		logger.Error().Stack().Err(err).Msgf("cannot open image '%s'", conf.Image)
		cobra.CheckErr(err)
	}

	opts := mountOptions()
	opts.Logger = logger
	fsys, err := sqfuse.Mount(s, opts)
	if err != nil {
		s.Destroy()
		logger.Error().Stack().Err(err).Msgf("cannot mount '%s'", conf.Mountpoint)
		cobra.CheckErr(err)
	}
	fmt.Printf("mounted %s at %s\n", conf.Image, conf.Mountpoint)

	done := make(chan struct{})
	go func() {
		fsys.Wait()
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("unmounting")
	case <-done:
		logger.Info().Msg("unmounted externally")
	}

	stats := fsys.Stats()
	if err := fsys.Unmount(); err != nil {
		logger.Error().Stack().Err(err).Msg("unmount failed")
	}

	fmt.Printf("\nStatistics:\n")
	fmt.Printf("  Uptime:          %s\n", time.Since(start).Round(time.Second))
	fmt.Printf("  Operations:      %s\n", humanize.Comma(int64(stats.Operations)))
	fmt.Printf("  Bytes Read:      %s\n", humanize.IBytes(stats.BytesRead))
	fmt.Printf("  Errors:          %s\n", humanize.Comma(int64(stats.Errors)))
	fmt.Printf("  Open Handles:    %d\n", stats.OpenHandles)
	fmt.Printf("  Metadata Cache:  %.1f%% hits\n", stats.MetadataCacheHitRate*100)
	fmt.Printf("  Fragment Cache:  %.1f%% hits\n", stats.FragmentCacheHitRate*100)
}
