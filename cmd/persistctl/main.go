// Package main provides persistctl, an administration CLI for entities kept by the persist
// engine in any of its stores.
package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/jacentio/persist/config"
	"github.com/jacentio/persist/result"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli holds the flags of the root command and the app opened for the running command.
type cli struct {
	configFile string
	app        *app
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "persistctl",
		Short: "Inspect and edit persisted entities",
		Long: `persistctl reads and writes entities through the persist engine, so the same
existence, parent and optimistic-locking rules apply as in the applications that own them.

Entity types are declared under store.types in persist.yaml.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.init,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return c.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file (default: persist.yaml or ~/.persist/persist.yaml)")
	flags.String("backend", "", "store backend: memory, sqlite, postgres or dynamo")
	flags.String("dsn", "", "data source name of the SQL backends")
	flags.String("table-prefix", "", "prefix of every table name")
	flags.Int("num-shards", 0, "write shards of the dynamo parent index")
	flags.String("cache", "", "entity cache: none, lru or redis")
	flags.String("nats-url", "", "publish change events to this NATS server")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")

	root.AddCommand(
		newSchemaCmd(c),
		newPutCmd(c),
		newGetCmd(c),
		newDeleteCmd(c),
		newCountCmd(c),
		newChildrenCmd(c),
	)
	return root
}

// init loads the configuration and opens the store.
func (c *cli) init(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.Log.Logger(cmd.ErrOrStderr())

	a, err := open(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	c.app = a
	return nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.close()
	c.app = nil
	return err
}

func printJSON(cmd *cobra.Command, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return err
}

// value turns an operation outcome into a plain Go return: failed results become their
// *result.Fault.
func value[T any](res result.Result[T], err error) (T, error) {
	if err != nil {
		var zero T
		return zero, err
	}
	return res.GetOrError()
}
