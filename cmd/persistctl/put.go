package main

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/jacentio/persist/model"
	"github.com/jacentio/persist/result"
)

type putOptions struct {
	parent     string
	validFrom  string
	validUntil string
	work       bool
}

func newPutCmd(c *cli) *cobra.Command {
	var opts putOptions
	cmd := &cobra.Command{
		Use:   "put <type> <oid[@version]> <json>",
		Short: "Create or update an entity",
		Long: `Put stores the JSON document as the descriptor of an entity. The entity is created
when it does not exist and updated otherwise. An empty OID ("") creates an entity with a
new OID; a versioned type without @version creates a new version.

Example:
  persistctl put order o-1 '{"customer":"ada"}'
  persistctl put line l-1 '{"qty":2}' --parent o-1
  persistctl put script s-1 '{"title":"draft"}' --work`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := c.app.put(cmd.Context(), args[0], splitKey(args[1]), json.RawMessage(args[2]), opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, rec)
		},
	}
	cmd.Flags().StringVar(&opts.parent, "parent", "", "parent OID of a dependent entity")
	cmd.Flags().StringVar(&opts.validFrom, "valid-from", "", "start of the validity window (RFC 3339)")
	cmd.Flags().StringVar(&opts.validUntil, "valid-until", "", "end of the validity window (RFC 3339)")
	cmd.Flags().BoolVar(&opts.work, "work", false, "mark the version as work in progress")
	return cmd
}

func (a *app) put(ctx context.Context, entityType string, id model.VersionedOID, data json.RawMessage, opts putOptions) (*Record, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("descriptor of %s %s is not valid JSON", entityType, id.OID)
	}
	validity, err := parseValidity(opts.validFrom, opts.validUntil)
	if err != nil {
		return nil, err
	}

	crud, err := a.crud(entityType)
	if err != nil {
		return nil, err
	}
	schema := crud.Schema()

	rec := &Record{Version: id.Version, Validity: validity, Work: opts.work, Data: data}
	rec.OID = id.OID

	existing, err := a.current(ctx, entityType, id)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		if schema.ParentType == "" {
			return value(crud.Create(ctx, rec))
		}
		if opts.parent == "" {
			return nil, fmt.Errorf("%s is a dependent of %s: --parent is required", entityType, schema.ParentType)
		}
		d, err := a.dependents(entityType)
		if err != nil {
			return nil, err
		}
		return value(d.Create(ctx, model.OID(opts.parent), rec))
	}

	rec.SetEntityVersion(existing.GetEntityVersion())
	rec.ParentOID = existing.ParentOID
	updated, err := value(crud.Update(ctx, rec))
	if err != nil || opts.parent == "" || model.OID(opts.parent) == existing.ParentOID {
		return updated, err
	}
	if schema.ParentType == "" {
		return nil, fmt.Errorf("%s is not a dependent entity type", entityType)
	}
	d, err := a.dependents(entityType)
	if err != nil {
		return nil, err
	}
	return value(d.ChangeParent(ctx, updated.OID, model.OID(opts.parent)))
}

// current loads the stored entity put would update, or nil when put must create it.
func (a *app) current(ctx context.Context, entityType string, id model.VersionedOID) (*Record, error) {
	if id.OID.IsZero() {
		return nil, nil
	}
	crud, err := a.crud(entityType)
	if err != nil {
		return nil, err
	}

	var res result.Result[*Record]
	switch {
	case !crud.Schema().Versioned:
		res, err = crud.Load(ctx, id.OID)
	case id.Version.IsZero():
		return nil, nil
	default:
		v, verr := a.versions(entityType)
		if verr != nil {
			return nil, verr
		}
		res, err = v.LoadVersion(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if fault, failed := res.AsError(); failed {
		if fault.HasType(result.EntityNotFound) {
			return nil, nil
		}
		return nil, fault
	}
	return res.MustGet(), nil
}

func parseValidity(from, until string) (model.Validity, error) {
	var v model.Validity
	if from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return v, fmt.Errorf("invalid --valid-from: %w", err)
		}
		v.From = &t
	}
	if until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return v, fmt.Errorf("invalid --valid-until: %w", err)
		}
		v.Until = &t
	}
	if v.From != nil && v.Until != nil && !v.Until.After(*v.From) {
		return v, fmt.Errorf("validity window ends before it starts")
	}
	return v, nil
}
