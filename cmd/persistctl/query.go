package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/store"
)

func newCountCmd(c *cli) *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "count <type> [query]",
		Short: "Count entities",
		Long: `Count prints the number of live entities of a type, or of those matched by a named
query registered with the store.

Example:
  persistctl count order
  persistctl count line byParent --param parent=o-1`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			finder, err := c.app.finder(args[0])
			if err != nil {
				return err
			}
			if len(args) == 1 {
				if len(params) > 0 {
					return fmt.Errorf("--param needs a query")
				}
				n, err := value(finder.CountAll(cmd.Context()))
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int64{"count": n})
			}

			p, err := parseParams(params)
			if err != nil {
				return err
			}
			n, err := value(finder.Count(cmd.Context(), args[1], p))
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int64{"count": n})
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "query parameter as name=value (repeatable)")
	return cmd
}

func newChildrenCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "children <type> <parentOid>",
		Short: "List the dependents of a parent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.app.dependents(args[0])
			if err != nil {
				return err
			}
			recs, err := value(d.FindChildsOf(cmd.Context(), model.OID(args[1])))
			if err != nil {
				return err
			}
			return printJSON(cmd, recs)
		},
	}
}

func parseParams(raw []string) (store.Params, error) {
	p := make(store.Params, len(raw))
	for _, kv := range raw {
		name, v, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q: want name=value", kv)
		}
		p[name] = v
	}
	return p, nil
}
