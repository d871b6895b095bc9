// Package gallery maintains the authoritative mapping from identity to
// reference embedding, sourced from a directory of reference images.
//
// Loading is deterministic: files are processed in lexicographic name order
// regardless of filesystem enumeration or encoding concurrency, and
// duplicate identity keys resolve to the lexicographically last file.
// Per-file problems are collected as warnings and never abort a load.
package gallery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vkravcenko/attendance/internal/codec"
	"github.com/vkravcenko/attendance/internal/match"
)

// ErrDuplicateIdentity is returned by Register when the identity already
// exists and no overwrite was requested.
var ErrDuplicateIdentity = errors.New("identity already enrolled")

// ErrInvalidIdentity is returned by Register for identities that cannot
// form a safe gallery filename.
var ErrInvalidIdentity = errors.New("identity contains reserved characters")

// supportedExtensions are the reference image formats scanned by Load.
var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Entry is one enrolled identity. Entries are immutable once returned from
// Snapshot; re-registration replaces the entry, it never mutates it.
type Entry struct {
	Identity  string
	Embedding codec.Embedding
	Source    string // filename within the gallery directory
	SHA256    string
	ModTime   time.Time
	FaceCount int // detections in the reference image; the first is used
}

// WarningKind classifies a non-fatal per-file load problem.
type WarningKind string

const (
	WarnUnreadable        WarningKind = "unreadable"
	WarnNoFace            WarningKind = "no_face"
	WarnMultipleFaces     WarningKind = "multiple_faces"
	WarnDuplicateIdentity WarningKind = "duplicate_identity"
	WarnCache             WarningKind = "cache"
)

// LoadWarning is one collected problem from a directory scan.
type LoadWarning struct {
	File   string
	Kind   WarningKind
	Detail string
}

func (w LoadWarning) String() string {
	return fmt.Sprintf("%s: %s (%s)", w.File, w.Detail, w.Kind)
}

// LoadReport summarizes a completed directory scan.
type LoadReport struct {
	Loaded    int
	CacheHits int
	Warnings  []LoadWarning
}

// LoadOptions tune a directory scan. The zero value is usable.
type LoadOptions struct {
	Concurrency int    // parallel encodes, default 4
	Progress    func() // called once per processed file, may be nil
}

// Gallery owns the identity -> embedding mapping and its lifecycle.
type Gallery struct {
	dir string
	enc codec.Encoder

	mu      sync.RWMutex
	entries map[string]*Entry // keyed by NormalizeIdentity
	order   []string          // normalized keys in enrollment order
	gen     uint64            // bumped on every mutation
}

// fileResult is the outcome of encoding one reference image, held until all
// files finish so results can be applied in lexicographic order.
type fileResult struct {
	name     string
	sha      string
	modTime  time.Time
	dets     []codec.Detection
	cacheHit bool
	readErr  error
	encErr   error
}

// Load scans dir for reference images and builds a gallery using enc.
// Unchanged files (by content hash) are served from the encoding cache
// sidecar instead of being re-encoded.
func Load(ctx context.Context, dir string, enc codec.Encoder, opts *LoadOptions) (*Gallery, *LoadReport, error) {
	if opts == nil {
		opts = &LoadOptions{}
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading gallery directory: %w", err)
	}

	var names []string
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(de.Name()))] {
			names = append(names, de.Name())
		}
	}
	sort.Strings(names)

	cache := loadCache(dir)
	results := make([]fileResult, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, name := range names {
		g.Go(func() error {
			results[i] = encodeFile(gctx, dir, name, enc, cache)
			if opts.Progress != nil {
				opts.Progress()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	gal := &Gallery{
		dir:     dir,
		enc:     enc,
		entries: make(map[string]*Entry),
	}
	report := &LoadReport{}

	newCache := make(map[string]cacheEntry)
	for _, res := range results {
		entry, warn := gal.applyResult(res)
		if warn != nil {
			report.Warnings = append(report.Warnings, *warn)
		}
		if entry == nil {
			continue
		}
		if res.cacheHit {
			report.CacheHits++
		}
		newCache[res.name] = cacheEntry{
			SHA256:    entry.SHA256,
			ModTime:   entry.ModTime,
			Embedding: entry.Embedding,
			Faces:     entry.FaceCount,
		}
	}
	report.Loaded = len(gal.entries)

	if err := saveCache(dir, newCache); err != nil {
		report.Warnings = append(report.Warnings, LoadWarning{
			File:   CacheFileName,
			Kind:   WarnCache,
			Detail: err.Error(),
		})
	}

	return gal, report, nil
}

// encodeFile reads and encodes one reference image, consulting the cache.
func encodeFile(ctx context.Context, dir, name string, enc codec.Encoder, cache map[string]cacheEntry) fileResult {
	res := fileResult{name: name}

	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil {
		res.readErr = err
		return res
	}
	res.modTime = info.ModTime()

	data, err := os.ReadFile(path)
	if err != nil {
		res.readErr = err
		return res
	}

	sum := sha256.Sum256(data)
	res.sha = hex.EncodeToString(sum[:])

	if cached, ok := cache[name]; ok && cached.SHA256 == res.sha && len(cached.Embedding) > 0 {
		res.cacheHit = true
		// Reconstruct the detection count so multi-face references keep
		// warning on cached loads; only the first embedding is stored.
		n := cached.Faces
		if n < 1 {
			n = 1
		}
		dets := make([]codec.Detection, n)
		dets[0].Embedding = cached.Embedding
		res.dets = dets
		return res
	}

	dets, err := enc.Encode(ctx, data)
	if err != nil {
		res.encErr = err
		return res
	}
	res.dets = dets
	return res
}

// applyResult folds one file result into the gallery. Called in
// lexicographic filename order. Returns the applied entry (nil if skipped)
// and a warning to report, if any.
func (gal *Gallery) applyResult(res fileResult) (*Entry, *LoadWarning) {
	switch {
	case res.readErr != nil:
		return nil, &LoadWarning{File: res.name, Kind: WarnUnreadable, Detail: res.readErr.Error()}
	case res.encErr != nil:
		return nil, &LoadWarning{File: res.name, Kind: WarnUnreadable, Detail: res.encErr.Error()}
	case len(res.dets) == 0:
		return nil, &LoadWarning{File: res.name, Kind: WarnNoFace, Detail: "no face detected, file skipped"}
	}

	identity := IdentityFromFilename(res.name)
	entry := &Entry{
		Identity:  identity,
		Embedding: res.dets[0].Embedding,
		Source:    res.name,
		SHA256:    res.sha,
		ModTime:   res.modTime,
		FaceCount: len(res.dets),
	}

	var warn *LoadWarning
	if len(res.dets) > 1 {
		warn = &LoadWarning{
			File:   res.name,
			Kind:   WarnMultipleFaces,
			Detail: fmt.Sprintf("%d faces detected, using the first", len(res.dets)),
		}
	}

	key := NormalizeIdentity(identity)
	if prev, ok := gal.entries[key]; ok {
		// Lexicographically later file wins; the identity keeps its
		// original enrollment position.
		warn = &LoadWarning{
			File:   res.name,
			Kind:   WarnDuplicateIdentity,
			Detail: fmt.Sprintf("identity %q already loaded from %s, replaced", prev.Identity, prev.Source),
		}
		gal.entries[key] = entry
		return entry, warn
	}

	gal.entries[key] = entry
	gal.order = append(gal.order, key)
	return entry, warn
}

// Register enrolls a new identity from raw image bytes. Enrollment is a
// deliberate single-face step: zero faces fails with codec.ErrNoFace,
// several with codec.ErrMultipleFaces, and an existing identity without
// the overwrite flag with ErrDuplicateIdentity. The gallery is unchanged
// on any failure.
func (gal *Gallery) Register(ctx context.Context, identity string, imageData []byte, overwrite bool) (Entry, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return Entry{}, errors.New("identity must not be empty")
	}
	// The identity becomes the reference filename. Path separators would
	// let it escape the gallery directory, and a dot would truncate it to
	// a different identity on the next directory scan.
	if strings.ContainsAny(identity, "./\\") {
		return Entry{}, fmt.Errorf("%q: %w", identity, ErrInvalidIdentity)
	}

	dets, err := gal.enc.Encode(ctx, imageData)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding enrollment image: %w", err)
	}
	det, err := codec.ExactlyOne(dets)
	if err != nil {
		return Entry{}, err
	}

	gal.mu.Lock()
	defer gal.mu.Unlock()

	key := NormalizeIdentity(identity)
	if _, exists := gal.entries[key]; exists && !overwrite {
		return Entry{}, fmt.Errorf("%q: %w", identity, ErrDuplicateIdentity)
	}

	name := identity + "." + codec.FileExtension(imageData)
	path := filepath.Join(gal.dir, name)
	if err := os.WriteFile(path, imageData, 0o644); err != nil {
		return Entry{}, fmt.Errorf("saving reference image: %w", err)
	}

	sum := sha256.Sum256(imageData)
	entry := &Entry{
		Identity:  identity,
		Embedding: det.Embedding,
		Source:    name,
		SHA256:    hex.EncodeToString(sum[:]),
		ModTime:   time.Now(),
		FaceCount: 1,
	}

	if _, exists := gal.entries[key]; !exists {
		gal.order = append(gal.order, key)
	}
	gal.entries[key] = entry
	gal.gen++

	if err := gal.updateCacheLocked(); err != nil {
		// The entry is enrolled and its image saved; the next load just
		// re-encodes.
		fmt.Fprintf(os.Stderr, "warning: updating encoding cache: %v\n", err)
	}

	return *entry, nil
}

// updateCacheLocked rewrites the sidecar from current entries.
func (gal *Gallery) updateCacheLocked() error {
	entries := make(map[string]cacheEntry, len(gal.entries))
	for _, e := range gal.entries {
		entries[e.Source] = cacheEntry{
			SHA256:    e.SHA256,
			ModTime:   e.ModTime,
			Embedding: e.Embedding,
			Faces:     e.FaceCount,
		}
	}
	return saveCache(gal.dir, entries)
}

// Snapshot returns all entries in enrollment order. The slice and its
// embeddings are stable for the duration of a matching round; concurrent
// Register calls never mutate a returned snapshot.
func (gal *Gallery) Snapshot() []Entry {
	gal.mu.RLock()
	defer gal.mu.RUnlock()

	out := make([]Entry, 0, len(gal.order))
	for _, key := range gal.order {
		out = append(out, *gal.entries[key])
	}
	return out
}

// Candidates returns the snapshot in the matcher's input form, preserving
// enrollment order for the tie-break.
func (gal *Gallery) Candidates() []match.Candidate {
	snapshot := gal.Snapshot()
	out := make([]match.Candidate, len(snapshot))
	for i, e := range snapshot {
		out[i] = match.Candidate{Identity: e.Identity, Embedding: e.Embedding}
	}
	return out
}

// Len returns the number of enrolled identities.
func (gal *Gallery) Len() int {
	gal.mu.RLock()
	defer gal.mu.RUnlock()
	return len(gal.entries)
}

// Generation returns a counter that changes whenever the gallery is
// mutated, letting callers invalidate derived structures such as a
// matching index.
func (gal *Gallery) Generation() uint64 {
	gal.mu.RLock()
	defer gal.mu.RUnlock()
	return gal.gen
}

// Dir returns the gallery directory.
func (gal *Gallery) Dir() string {
	return gal.dir
}

// New creates an empty gallery over dir, for callers that enroll before
// ever loading (e.g. a first run against an empty directory).
func New(dir string, enc codec.Encoder) *Gallery {
	return &Gallery{
		dir:     dir,
		enc:     enc,
		entries: make(map[string]*Entry),
	}
}
