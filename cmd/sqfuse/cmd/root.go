package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/absfs/sqfuse"
	"github.com/absfs/sqfuse/config"
)

const VERSION = "v0.3.0"

// all possible flags of all commands go here
var persistentFlagConfigFile string
var persistentFlagLogfile string
var persistentFlagLoglevel string
var persistentFlagOffset int64

var conf *config.Config

var rootCmd = &cobra.Command{
	Use:   "sqfuse",
	Short: "sqfuse serves squashfs images read-only",
	Long: fmt.Sprintf(`Mount a squashfs image as a read-only FUSE filesystem,
or browse it without mounting.
Version %s`, VERSION),
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func getFlagString(cmd *cobra.Command, flag string) string {
	str, err := cmd.Flags().GetString(flag)
	if err != nil {
		_ = cmd.Help()
		cobra.CheckErr(errors.Errorf("cannot get flag %s: %v", flag, err))
	}
	return str
}

func getFlagBool(cmd *cobra.Command, flag string) bool {
	b, err := cmd.Flags().GetBool(flag)
	if err != nil {
		_ = cmd.Help()
		cobra.CheckErr(errors.Errorf("cannot get flag %s: %v", flag, err))
	}
	return b
}

func initConfig() {
	data := config.DefaultConfig
	if persistentFlagConfigFile != "" {
		var err error
		data, err = os.ReadFile(persistentFlagConfigFile)
		if err != nil {
			_ = rootCmd.Help()
			fmt.Fprintf(os.Stderr, "error reading config file %s: %v\n", persistentFlagConfigFile, err)
			os.Exit(1)
		}
	}
	var err error
	conf, err = config.LoadConfig(string(data))
	if err != nil {
		_ = rootCmd.Help()
		fmt.Fprintf(os.Stderr, "error loading config file %s: %v\n", persistentFlagConfigFile, err)
		os.Exit(1)
	}

	// overwrite config file with command line data
	if persistentFlagLogfile != "" {
		conf.Log.File = persistentFlagLogfile
	}
	if persistentFlagLoglevel != "" {
		conf.Log.Level = strings.ToUpper(persistentFlagLoglevel)
	}
	if rootCmd.PersistentFlags().Changed("offset") {
		conf.Offset = persistentFlagOffset
	}
	if err := conf.Validate(); err != nil {
		_ = rootCmd.Help()
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
}

// createLogger builds the command logger from the Log section. The
// returned closer is nil when logging goes to the console.
func createLogger() (*zerolog.Logger, io.Closer, error) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	level, err := zerolog.ParseLevel(strings.ToLower(conf.Log.Level))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "invalid log level '%s'", conf.Log.Level)
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	var closer io.Closer
	if conf.Log.File != "" {
		f, err := os.OpenFile(conf.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "cannot open log file '%s'", conf.Log.File)
		}
		out, closer = f, f
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &logger, closer, nil
}

// openSession opens the image named on the command line.
func openSession(image string, logger *zerolog.Logger) (*sqfuse.Session, error) {
	return sqfuse.Open(image, conf.Offset, &sqfuse.SessionOptions{
		Serialize:   conf.Serialize,
		HandleLimit: conf.HandleLimit,
		CacheBlocks: conf.CacheBlocks,
		Logger:      logger,
	})
}

// withSession runs fn against an opened image and tears everything down
// afterwards.
func withSession(image string, fn func(s *sqfuse.Session, logger *zerolog.Logger) error) {
	logger, closer, err := createLogger()
	cobra.CheckErr(err)
	if closer != nil {
		defer closer.Close()
	}

	s, err := openSession(image, logger)
	if err != nil {
		logger.Error().Stack().Err(err).Msgf("cannot open image '%s'", image)
		cobra.CheckErr(err)
	}

	err = fn(s, logger)
	if derr := s.Destroy(); derr != nil {
		logger.Error().Stack().Err(derr).Msg("cannot close image")
	}
	if err != nil {
		logger.Debug().Stack().Err(err).Msg("command failed")
		cobra.CheckErr(err)
	}
}

// addPersistentFlags registers the flags shared by every command.
func addPersistentFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&persistentFlagConfigFile, "config", "", "config file (default is the built-in configuration)")
	flagSet.StringVar(&persistentFlagLogfile, "log-file", "", "log output file (default is console)")
	flagSet.StringVar(&persistentFlagLoglevel, "log-level", "", "log level (DEBUG|INFO|WARN|ERROR)")
	flagSet.Int64Var(&persistentFlagOffset, "offset", 0, "byte offset of the image inside the file")
}

func init() {
	cobra.OnInitialize(initConfig)

	addPersistentFlags(rootCmd.PersistentFlags())

	initMount()
	initLs()
	initStat()

	rootCmd.AddCommand(mountCmd, lsCmd, catCmd, statCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
