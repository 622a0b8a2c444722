package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/result"
)

// deleted is the report of a delete command.
type deleted struct {
	Deleted  []*Record `json:"deleted"`
	Failed   []string  `json:"failed,omitempty"`
	Children int       `json:"children,omitempty"`
}

func newDeleteCmd(c *cli) *cobra.Command {
	var cascade bool
	cmd := &cobra.Command{
		Use:   "delete <type> <oid[@version]>",
		Short: "Delete an entity",
		Long: `Delete removes an entity. For versioned types a bare <oid> deletes every version.
With --cascade the direct dependents of the entity are deleted first; otherwise they are
left to the store's own cascade.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := splitKey(args[1])
			var children int
			if cascade {
				n, err := c.app.cascade(ctx, args[0], id.OID)
				if err != nil {
					return err
				}
				children = n
			}
			report, err := c.app.delete(ctx, args[0], id)
			if err != nil && report == nil {
				return err
			}
			report.Children = children
			if perr := printJSON(cmd, report); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "delete direct dependents first")
	return cmd
}

// cascade deletes the dependents of parent in every declared child type.
func (a *app) cascade(ctx context.Context, parentType string, parent model.OID) (int, error) {
	var total int
	for _, t := range a.cfg.Store.Types {
		if t.Parent != parentType {
			continue
		}
		d, err := a.dependents(t.Name)
		if err != nil {
			return total, err
		}
		n, failed, err := d.CascadeDelete(ctx, parent)
		total += n
		if err != nil {
			return total, err
		}
		if failed > 0 {
			return total, fmt.Errorf("cascade %s %s to %s: %d dependents not deleted", parentType, parent, t.Name, failed)
		}
	}
	return total, nil
}

// delete returns the report of what was deleted. A partial failure returns both the report
// and a *result.BatchError.
func (a *app) delete(ctx context.Context, entityType string, id model.VersionedOID) (*deleted, error) {
	crud, err := a.crud(entityType)
	if err != nil {
		return nil, err
	}

	if !crud.Schema().Versioned {
		rec, err := value(crud.Delete(ctx, id.OID))
		if err != nil {
			return nil, err
		}
		return &deleted{Deleted: []*Record{rec}}, nil
	}

	v, err := a.versions(entityType)
	if err != nil {
		return nil, err
	}
	if !id.Version.IsZero() {
		rec, err := value(v.DeleteVersion(ctx, id))
		if err != nil {
			return nil, err
		}
		return &deleted{Deleted: []*Record{rec}}, nil
	}

	res, err := v.DeleteAllVersions(ctx, id.OID)
	if err != nil {
		return nil, err
	}
	recs, err := value[[]*Record](res, nil)
	var batch *result.BatchError
	switch {
	case err == nil:
		return &deleted{Deleted: recs}, nil
	case errors.As(err, &batch):
		report := &deleted{Deleted: recs}
		for _, f := range batch.Faults {
			report.Failed = append(report.Failed, f.Error())
		}
		return report, err
	default:
		return nil, err
	}
}
