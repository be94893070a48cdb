package vault

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cuemby/passd/pkg/config"
	"github.com/cuemby/passd/pkg/metadata"
	"github.com/cuemby/passd/pkg/passderr"
)

// FindOptions carries find's optional filter, sort, and pagination
// arguments. A nil Filter matches every secret; a nil Limit returns
// everything from Offset onward.
type FindOptions struct {
	Filter *Filter
	Sort   []SortField
	Offset int
	Limit  *int
}

type indexedSecret struct {
	relativePath string
	meta         metadata.Metadata
}

// Find walks cfg.MetadataDir for metadata sidecars, applies opts.Filter,
// sorts by opts.Sort, and returns the relative paths of the matching
// secrets after clamping Offset/Limit to the filtered result's bounds.
// Sidecars that fail to parse are silently skipped, since find reports on
// what it could read, not an index of what exists; diagnose is the tool
// for surfacing unreadable sidecars.
func Find(cfg *config.Config, opts FindOptions) ([]string, error) {
	if _, err := os.Stat(cfg.MetadataDir); err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, passderr.Wrap(passderr.KindIO, "failed to stat metadata directory", err)
	}

	var entries []indexedSecret
	walkErr := filepath.WalkDir(cfg.MetadataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".meta.toml") {
			return nil
		}
		rel, err := filepath.Rel(cfg.MetadataDir, path)
		if err != nil {
			return nil
		}
		relativePath := filepath.ToSlash(strings.TrimSuffix(rel, ".meta.toml"))

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		m, err := metadata.Parse(data)
		if err != nil {
			return nil
		}
		entries = append(entries, indexedSecret{relativePath: relativePath, meta: m})
		return nil
	})
	if walkErr != nil {
		return nil, passderr.Wrap(passderr.KindIO, "failed to walk metadata directory", walkErr)
	}

	if opts.Filter != nil {
		filtered := entries[:0]
		for _, e := range entries {
			if opts.Filter.Matches(e.meta) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	if len(opts.Sort) > 0 {
		sortEntries(entries, opts.Sort)
	} else {
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].relativePath < entries[j].relativePath
		})
	}

	total := len(entries)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if opts.Limit != nil {
		limit := *opts.Limit
		if limit < 0 {
			limit = 0
		}
		if offset+limit < end {
			end = offset + limit
		}
	}

	result := make([]string, 0, end-offset)
	for _, e := range entries[offset:end] {
		result = append(result, e.meta.Path)
	}
	return result, nil
}

// sortEntries performs a stable multi-field sort: ties on one field fall
// through to the next, and a field that's missing or incomparable on
// either side of a pair is treated as a tie rather than breaking the sort.
func sortEntries(entries []indexedSecret, fields []SortField) {
	sort.SliceStable(entries, func(i, j int) bool {
		for _, f := range fields {
			vi, oki := metadata.GetField(entries[i].meta, f.Field)
			vj, okj := metadata.GetField(entries[j].meta, f.Field)
			if !oki || !okj {
				continue
			}
			cmp, ok := compareValues(vi, vj)
			if !ok || cmp == 0 {
				continue
			}
			if f.Direction == SortDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}
