package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSchemaCmd(c *cli) *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the tables of the declared entity types",
		Long: `Schema prints the CREATE TABLE statements of the SQL backends, or the table names of
the dynamo backend. SQL tables are created when persistctl opens the store; with --apply the
dynamo tables are created too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := c.app
			out := cmd.OutOrStdout()
			switch {
			case a.sql != nil:
				stmts, err := a.sql.DDL(a.cfg.Schemas()...)
				if err != nil {
					return err
				}
				for _, stmt := range stmts {
					fmt.Fprintf(out, "%s;\n", stmt)
				}
			case a.dynamo != nil:
				if apply {
					if err := a.dynamo.EnsureTables(cmd.Context()); err != nil {
						return fmt.Errorf("create tables: %w", err)
					}
				}
				for _, s := range a.cfg.Schemas() {
					name, err := a.dynamo.TableName(s.Type)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, name)
				}
			default:
				fmt.Fprintf(out, "backend %s has no schema\n", a.cfg.Store.Backend)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "create missing dynamo tables")
	return cmd
}
