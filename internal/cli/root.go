package cli

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/atomspace/internal/atomspace"
	"github.com/lazypower/atomspace/internal/config"
	"github.com/lazypower/atomspace/internal/logging"
	"github.com/lazypower/atomspace/internal/store"
)

// app holds the global flags and what PersistentPreRunE builds from them.
type app struct {
	configPath string
	dbPath     string
	owner      int64

	cfg config.Config
	log *zap.SugaredLogger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "atomspace",
		Short:         "Per-agent hypergraph knowledge store",
		Long:          "AtomSpace stores typed nodes and links for many agents in one SQLite database and serves them over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default ~/.atomspace/config.toml)")
	pf.StringVar(&a.dbPath, "db", "", "database path (overrides config and ATOMSPACE_DB)")
	pf.Int64Var(&a.owner, "owner", 1, "owner id to act as")

	root.AddCommand(
		versionCmd(),
		a.serveCmd(),
		a.nodeCmd(),
		a.linkCmd(),
		a.tripleCmd(),
		a.triplesCmd(),
		a.matchCmd(),
		a.statsCmd(),
		a.shareCmd(),
		a.agentsCmd(),
		a.exportCmd(),
		a.importCmd(),
	)
	return root
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if cfg.Database.Path == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return err
		}
		cfg.Database.Path = p
	}
	a.cfg = cfg

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

func (a *app) limits() atomspace.Limits {
	l := a.cfg.Limits
	return atomspace.Limits{
		DefaultPage: l.DefaultPage,
		MaxPage:     l.MaxPage,
		MaxPublic:   l.MaxPublic,
		ExportCap:   l.ExportCap,
	}
}

func (a *app) openDB() (*store.DB, error) {
	db, err := store.Open(a.cfg.Database.Path, a.log)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	return db, nil
}

// withSpace opens the database, runs fn against the acting owner's
// atomspace and closes the database again.
func (a *app) withSpace(fn func(as *atomspace.AtomSpace) error) error {
	if a.owner <= 0 {
		return errors.Newf("--owner must be positive, got %d", a.owner)
	}
	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(atomspace.New(db, a.owner, atomspace.Options{Logger: a.log, Limits: a.limits()}))
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
