// Package cli implements the carsync command-line interface.
//
// Every command except version and init opens the service described by
// config.yaml, runs, and closes it again. Output is human-readable YAML or
// colored status lines by default, JSON with --json.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"github.com/mesh-intelligence/carsync/internal/logger"
	"github.com/mesh-intelligence/carsync/internal/paths"
	"github.com/mesh-intelligence/carsync/pkg/carsync"
	"github.com/mesh-intelligence/carsync/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	envFile   string
	jsonMode  bool
}

// app is the state shared by the subcommands of one root command.
type app struct {
	flags     rootFlags
	configDir string
	config    types.Config
	log       *slog.Logger
}

// sysError marks a failure of the environment rather than of the input.
type sysError struct{ err error }

func (e sysError) Error() string { return e.err.Error() }
func (e sysError) Unwrap() error { return e.err }

func asSys(err error) error {
	if err == nil {
		return nil
	}
	return sysError{err}
}

// NewRootCmd creates the top-level "carsync" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "carsync",
		Short: "Keep vehicle, client and order records in sync across dealership stores",
		Long: `carsync propagates records between the stores of a dealership workflow
(inventory, showrooms, garage, order desks) along declared sync links, and
keeps the client-car links with their integrity audit.`,
		Version:           carsync.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}

	root.PersistentFlags().StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: $(CWD)/.carsync)")
	root.PersistentFlags().StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.carsync-db)")
	root.PersistentFlags().StringVar(&a.flags.envFile, "env-file", ".env", "dotenv file loaded before reading the configuration")
	root.PersistentFlags().BoolVar(&a.flags.jsonMode, "json", false, "output as JSON")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newTopologyCmd(a),
		newLinkStoresCmd(a),
		newSyncCmd(a),
		newAutoSyncCmd(a),
		newRecordsCmd(a),
		newCarCmd(a),
		newLinkCmd(a),
		newUnlinkCmd(a),
		newClientCmd(a),
		newSearchCmd(a),
		newDeliveriesCmd(a),
		newReportCmd(a),
		newStatusCmd(a),
		newSyncLogCmd(a),
		newReconcileCmd(a),
		newServeCmd(a),
	)
	return root
}

// Execute runs the root command and exits with the matching code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "carsync:", err)
		var se sysError
		if errors.As(err, &se) {
			os.Exit(exitSysError)
		}
		os.Exit(exitUserError)
	}
	os.Exit(exitSuccess)
}

// load resolves the directories, reads config.yaml and builds the logger.
func (a *app) load(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	if a.flags.envFile != "" {
		if err := godotenv.Load(a.flags.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.flags.envFile, err)
		}
	}

	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return asSys(fmt.Errorf("resolve config dir: %w", err))
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return asSys(err)
	}
	dataDir, err := paths.ResolveDataDir(a.flags.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return asSys(fmt.Errorf("resolve data dir: %w", err))
	}

	a.configDir = configDir
	a.config = buildConfig(v, configDir, dataDir)
	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration in %s: %w", configDir, err)
	}
	a.log = logger.NewWithWriter(a.config.GetEnv(), cmd.ErrOrStderr())
	return nil
}

// open attaches the service. The caller must Close it.
func (a *app) open() (*carsync.Service, error) {
	svc, err := carsync.Open(a.config, a.log)
	if err != nil {
		return nil, asSys(err)
	}
	return svc, nil
}

// withService opens the service, runs fn and closes the service, keeping
// the first error.
func (a *app) withService(fn func(svc *carsync.Service) error) (err error) {
	svc, err := a.open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil && err == nil {
			err = asSys(cerr)
		}
	}()
	return fn(svc)
}
