// Package countries caches the dial-code reference data consumed by the
// country selector. The directory loads once per process, deduplicates by
// dial code (first occurrence wins), and stays read-only afterwards. An empty
// directory is a valid degraded state: callers disable submission rather
// than fail.
package countries

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"pixelpilot/pkg/domain"
)

// Record is the wire shape of one source entry.
type Record struct {
	Name struct {
		Common string `json:"common"`
	} `json:"name"`
	CCA3 string `json:"cca3"`
	IDD  struct {
		Root     string   `json:"root"`
		Suffixes []string `json:"suffixes"`
	} `json:"idd"`
	Flags struct {
		PNG string `json:"png"`
		SVG string `json:"svg"`
		Alt string `json:"alt"`
	} `json:"flags"`
}

// Source fetches the raw country list.
type Source interface {
	Fetch(ctx context.Context) ([]Record, error)
}

// LoadError wraps a source failure. The directory keeps its prior state and
// does not retry on its own.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load country directory: %v", e.Err) }

func (e *LoadError) Unwrap() error { return e.Err }

// Directory is the in-process dial-code cache.
type Directory struct {
	source Source

	mu      sync.RWMutex
	entries []domain.Country
	byDial  map[string]domain.Country

	group singleflight.Group
}

// NewDirectory returns an empty directory backed by source.
func NewDirectory(source Source) *Directory {
	return &Directory{
		source: source,
		byDial: make(map[string]domain.Country),
	}
}

// Load fetches and caches the country list. It is idempotent: once the cache
// holds entries further calls are no-ops, and concurrent calls share a single
// fetch. On failure the cache is left untouched.
func (d *Directory) Load(ctx context.Context) error {
	if d.Len() > 0 {
		return nil
	}
	_, err, _ := d.group.Do("load", func() (any, error) {
		if d.Len() > 0 {
			return nil, nil
		}
		records, err := d.source.Fetch(ctx)
		if err != nil {
			return nil, &LoadError{Err: err}
		}
		entries, byDial := dedupe(records)
		d.mu.Lock()
		d.entries = entries
		d.byDial = byDial
		d.mu.Unlock()
		return nil, nil
	})
	return err
}

// All returns the cached entries in source order.
func (d *Directory) All() []domain.Country {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Country, len(d.entries))
	copy(out, d.entries)
	return out
}

// ByDialCode looks up the unique entry for a dial code.
func (d *Directory) ByDialCode(code string) (domain.Country, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.byDial[code]
	return c, ok
}

// Len reports the number of cached entries.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// dedupe walks records in received order, skipping entries without an IDD
// root and entries whose dial code was already seen.
func dedupe(records []Record) ([]domain.Country, map[string]domain.Country) {
	entries := make([]domain.Country, 0, len(records))
	byDial := make(map[string]domain.Country, len(records))
	for _, rec := range records {
		root := strings.TrimSpace(rec.IDD.Root)
		if root == "" {
			continue
		}
		dial := root
		if len(rec.IDD.Suffixes) > 0 {
			dial += rec.IDD.Suffixes[0]
		}
		if _, seen := byDial[dial]; seen {
			continue
		}
		flag := rec.Flags.SVG
		if flag == "" {
			flag = rec.Flags.PNG
		}
		country := domain.Country{
			CommonName: rec.Name.Common,
			Alpha3:     rec.CCA3,
			DialCode:   dial,
			FlagURL:    flag,
		}
		byDial[dial] = country
		entries = append(entries, country)
	}
	return entries, byDial
}
