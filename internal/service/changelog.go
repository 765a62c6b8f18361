package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/neofi/eventapi/internal/domain"
	"github.com/neofi/eventapi/internal/repository"
)

// ChangelogEntry is one step of an event's history, annotated with the field
// changes relative to its immediate predecessor.
type ChangelogEntry struct {
	VersionNumber int64              `json:"version_number"`
	ChangeType    domain.ChangeType  `json:"change_type"`
	ChangedBy     string             `json:"changed_by"`
	SourceVersion *int64             `json:"source_version,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	Summary       []domain.FieldDiff `json:"summary"`
}

// ChangelogPage is one page of changelog entries plus the cursor for the next.
type ChangelogPage struct {
	Entries    []ChangelogEntry `json:"entries"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// Changelog reads version history. All access goes through the store's read
// contract; these operations never block writers and honor caller
// cancellation since they have no durability consequence.
type Changelog struct {
	store repository.VersionStore
	authz Authorizer
}

// NewChangelog creates the changelog reader.
func NewChangelog(store repository.VersionStore, authz Authorizer) *Changelog {
	return &Changelog{store: store, authz: authz}
}

// Changelog returns one page of history in the requested order. Each entry's
// summary is the diff against version_number-1; version 1 reports all
// populated fields as added.
func (c *Changelog) Changelog(ctx context.Context, eventID uuid.UUID, actor string, opts repository.ListOptions) (ChangelogPage, error) {
	if err := authorizeRead(ctx, c.authz, eventID, actor); err != nil {
		return ChangelogPage{}, err
	}

	versions, nextCursor, err := c.store.List(ctx, eventID, opts)
	if err != nil {
		return ChangelogPage{}, err
	}

	entries := make([]ChangelogEntry, 0, len(versions))
	for i, version := range versions {
		if err := ctx.Err(); err != nil {
			return ChangelogPage{}, err
		}
		summary, err := c.summarize(ctx, eventID, versions, i, opts.Descending)
		if err != nil {
			return ChangelogPage{}, err
		}
		entries = append(entries, ChangelogEntry{
			VersionNumber: version.VersionNumber,
			ChangeType:    version.ChangeType,
			ChangedBy:     version.ChangedBy,
			SourceVersion: version.SourceVersion,
			CreatedAt:     version.CreatedAt,
			Summary:       summary,
		})
	}
	return ChangelogPage{Entries: entries, NextCursor: nextCursor}, nil
}

// summarize diffs versions[i] against its predecessor, reusing the adjacent
// page element when it holds the predecessor and fetching across the page
// boundary otherwise.
func (c *Changelog) summarize(ctx context.Context, eventID uuid.UUID, versions []domain.EventVersion, i int, descending bool) ([]domain.FieldDiff, error) {
	version := versions[i]
	if version.VersionNumber == 1 {
		return domain.InitialDiff(version.Snapshot), nil
	}

	var predecessor *domain.EventVersion
	if descending {
		if i+1 < len(versions) && versions[i+1].VersionNumber == version.VersionNumber-1 {
			predecessor = &versions[i+1]
		}
	} else {
		if i > 0 && versions[i-1].VersionNumber == version.VersionNumber-1 {
			predecessor = &versions[i-1]
		}
	}
	if predecessor == nil {
		fetched, err := c.store.Get(ctx, eventID, version.VersionNumber-1)
		if err != nil {
			return nil, err
		}
		predecessor = &fetched
	}
	return domain.Diff(predecessor.Snapshot, version.Snapshot, domain.DiffOptions{}), nil
}

// Compare diffs two versions in the order given; direction is never
// normalized, so old values come from v1 and new values from v2.
func (c *Changelog) Compare(ctx context.Context, eventID uuid.UUID, v1, v2 int64, actor string, opts domain.DiffOptions) ([]domain.FieldDiff, error) {
	if err := authorizeRead(ctx, c.authz, eventID, actor); err != nil {
		return nil, err
	}
	base, err := c.store.Get(ctx, eventID, v1)
	if err != nil {
		return nil, err
	}
	target, err := c.store.Get(ctx, eventID, v2)
	if err != nil {
		return nil, err
	}
	return domain.Diff(base.Snapshot, target.Snapshot, opts), nil
}

// Latest returns the version the event currently points at, including the
// delete marker when the event is logically deleted.
func (c *Changelog) Latest(ctx context.Context, eventID uuid.UUID, actor string) (domain.EventVersion, error) {
	if err := authorizeRead(ctx, c.authz, eventID, actor); err != nil {
		return domain.EventVersion{}, err
	}
	return c.store.Latest(ctx, eventID)
}

// Version returns one historical snapshot.
func (c *Changelog) Version(ctx context.Context, eventID uuid.UUID, versionNumber int64, actor string) (domain.EventVersion, error) {
	if err := authorizeRead(ctx, c.authz, eventID, actor); err != nil {
		return domain.EventVersion{}, err
	}
	return c.store.Get(ctx, eventID, versionNumber)
}
