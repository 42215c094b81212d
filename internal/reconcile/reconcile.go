// Package reconcile brings Home Assistant in line with the catalog at
// startup: entity ids are migrated back to their canonical form and the
// dashboard card bundle is registered as a Lovelace resource.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zorak1103/ha-macs/internal/catalog"
	"github.com/zorak1103/ha-macs/internal/dispatch"
	"github.com/zorak1103/ha-macs/internal/homeassistant"
	"github.com/zorak1103/ha-macs/internal/logging"
)

// Report summarizes one identifier migration.
type Report struct {
	// Renamed maps old entity ids to the canonical id they were moved to.
	Renamed map[string]string `json:"renamed"`
	// Skipped lists canonical ids already taken by another entity.
	Skipped []string `json:"skipped"`
	// Missing lists catalog ids not present in the registry yet.
	Missing []string `json:"missing"`
}

// MigrateEntityIDs renames every registered catalog entity whose entity id
// drifted from <kind>.<id>. An entity is only renamed when the canonical id
// is free, so running it again changes nothing.
func MigrateEntityIDs(ctx context.Context, client homeassistant.Client, c *catalog.Catalog) (*Report, error) {
	entries, err := client.GetEntityRegistry(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing entity registry: %w", err)
	}

	taken := make(map[string]bool, len(entries))
	for _, e := range entries {
		taken[e.EntityID] = true
	}

	report := &Report{Renamed: map[string]string{}}
	for _, entity := range c.All() {
		def := entity.Definition()
		entry, ok := dispatch.FindByUniqueID(entries, def.ID)
		if !ok {
			report.Missing = append(report.Missing, def.ID)
			continue
		}

		canonical := def.EntityID()
		if entry.EntityID == canonical {
			continue
		}
		if taken[canonical] {
			report.Skipped = append(report.Skipped, canonical)
			continue
		}

		if err := client.UpdateEntityID(ctx, entry.EntityID, canonical); err != nil {
			return report, fmt.Errorf("renaming %s to %s: %w", entry.EntityID, canonical, err)
		}
		delete(taken, entry.EntityID)
		taken[canonical] = true
		report.Renamed[entry.EntityID] = canonical
	}
	return report, nil
}

// CardPath is where the dashboard bundle is served.
const CardPath = "/macs/macs-card.js"

// ResourceAction describes what SyncResource did.
type ResourceAction string

// Resource sync outcomes.
const (
	ResourceCreated   ResourceAction = "created"
	ResourceUpdated   ResourceAction = "updated"
	ResourceUnchanged ResourceAction = "unchanged"
	ResourceYAMLMode  ResourceAction = "yaml_mode"
	// ResourceSkipped means no public URL is configured, so there is no
	// address a browser could load the bundle from.
	ResourceSkipped ResourceAction = "skipped"
)

// CardURL returns the versioned bundle URL under publicURL. An empty
// publicURL yields a host-relative URL.
func CardURL(publicURL, version string) string {
	return strings.TrimRight(publicURL, "/") + CardPath + "?v=" + version
}

// resourcePath is the path part of a resource URL, ignoring scheme, host
// and query.
func resourcePath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		base, _, _ := strings.Cut(raw, "?")
		return base
	}
	return u.Path
}

// SyncResource makes sure exactly one Lovelace module resource points at the
// versioned card bundle. An existing entry is matched on CardPath alone, so
// a changed public URL rewrites it in place. Dashboards configured in YAML
// mode are left alone.
func SyncResource(ctx context.Context, client homeassistant.Client, publicURL, version string) (ResourceAction, error) {
	info, err := client.GetLovelaceInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("reading lovelace info: %w", err)
	}
	if info.YAMLResources() {
		return ResourceYAMLMode, nil
	}

	resources, err := client.ListLovelaceResources(ctx)
	if err != nil {
		return "", fmt.Errorf("listing lovelace resources: %w", err)
	}

	want := CardURL(publicURL, version)
	for _, r := range resources {
		if resourcePath(r.URL) != CardPath {
			continue
		}
		if r.URL == want && r.Type == homeassistant.ResourceTypeModule {
			return ResourceUnchanged, nil
		}
		if _, err := client.UpdateLovelaceResource(ctx, r.ID.String(), homeassistant.ResourceTypeModule, want); err != nil {
			return "", fmt.Errorf("updating lovelace resource %s: %w", r.ID, err)
		}
		return ResourceUpdated, nil
	}

	if _, err := client.CreateLovelaceResource(ctx, homeassistant.ResourceTypeModule, want); err != nil {
		return "", fmt.Errorf("creating lovelace resource: %w", err)
	}
	return ResourceCreated, nil
}

// Options configures a Reconciler.
type Options struct {
	PublicURL string
	Version   string
	// SyncResource disables Lovelace resource registration when false.
	SyncResource bool
}

// Result is the outcome of one full reconciliation.
type Result struct {
	Migration *Report        `json:"migration,omitempty"`
	Resource  ResourceAction `json:"resource,omitempty"`
}

// Reconciler runs both reconciliation steps against one client.
type Reconciler struct {
	client  homeassistant.Client
	catalog *catalog.Catalog
	opts    Options
	logger  *logging.Logger
}

// New creates a reconciler. An empty version is resolved with Version.
func New(client homeassistant.Client, c *catalog.Catalog, opts Options, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Discard()
	}
	opts.Version = Version(opts.Version)
	return &Reconciler{client: client, catalog: c, opts: opts, logger: logger.Component("reconcile")}
}

// Run migrates entity ids and syncs the card resource. Both steps are
// attempted even if the first fails; the errors are joined.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	res := &Result{}
	var errs []error

	report, err := MigrateEntityIDs(ctx, r.client, r.catalog)
	res.Migration = report
	if err != nil {
		errs = append(errs, err)
		r.logger.Error("Entity id migration failed", "error", err)
	}
	if report != nil {
		for from, to := range report.Renamed {
			r.logger.Info("Migrated entity id", "from", from, "to", to)
		}
		for _, id := range report.Skipped {
			r.logger.Warn("Canonical entity id already taken", "entity_id", id)
		}
		if len(report.Missing) > 0 {
			r.logger.Debug("Entities not registered yet", "count", len(report.Missing))
		}
	}

	switch {
	case !r.opts.SyncResource:
	case r.opts.PublicURL == "":
		res.Resource = ResourceSkipped
		r.logger.Warn("Lovelace resource sync skipped, frontend.public_url is not set")
	default:
		action, err := SyncResource(ctx, r.client, r.opts.PublicURL, r.opts.Version)
		res.Resource = action
		if err != nil {
			errs = append(errs, err)
			r.logger.Error("Lovelace resource sync failed", "error", err)
		} else {
			r.logger.Info("Lovelace resource synced", "action", action, "url", CardURL(r.opts.PublicURL, r.opts.Version))
		}
	}

	return res, errors.Join(errs...)
}
