package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacentio/persist/model"
)

func newGetCmd(c *cli) *cobra.Command {
	var (
		at   string
		work bool
	)
	cmd := &cobra.Command{
		Use:   "get <type> <oid[@version]>",
		Short: "Load an entity",
		Long: `Get prints a stored entity. For versioned types, <oid>@<version> loads one version,
--at loads the version active at an instant, --work loads the work version, and a bare
<oid> lists every version.

Example:
  persistctl get order o-1
  persistctl get script s-1 --at 2024-06-01T00:00:00Z`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := c.app.get(cmd.Context(), args[0], splitKey(args[1]), at, work)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "load the version active at this instant (RFC 3339)")
	cmd.Flags().BoolVar(&work, "work", false, "load the work version")
	return cmd
}

func (a *app) get(ctx context.Context, entityType string, id model.VersionedOID, at string, work bool) (any, error) {
	crud, err := a.crud(entityType)
	if err != nil {
		return nil, err
	}
	if !crud.Schema().Versioned {
		if at != "" || work {
			return nil, fmt.Errorf("%s is not a versioned entity type", entityType)
		}
		return value(crud.Load(ctx, id.OID))
	}

	v, err := a.versions(entityType)
	if err != nil {
		return nil, err
	}
	switch {
	case !id.Version.IsZero():
		return value(v.LoadVersion(ctx, id))
	case work:
		return value(v.LoadWorkVersion(ctx, id.OID))
	case at != "":
		instant, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return nil, fmt.Errorf("invalid --at: %w", err)
		}
		return value(v.LoadActiveVersionAt(ctx, id.OID, instant))
	default:
		return value(v.ListVersions(ctx, id.OID))
	}
}
