// Package session orchestrates one end-to-end identification attempt:
// capture, encode, match, mark. It owns no persistent state.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vkravcenko/attendance/internal/codec"
	"github.com/vkravcenko/attendance/internal/gallery"
	"github.com/vkravcenko/attendance/internal/ledger"
	"github.com/vkravcenko/attendance/internal/match"
)

// CaptureFunc produces one frame from the external capture collaborator.
// A nil frame with a nil error means the user cancelled; no other protocol
// is assumed. Capture is the only call expected to block on a device and
// must honor ctx cancellation.
type CaptureFunc func(ctx context.Context) ([]byte, error)

// Clock supplies the current time; swapped for a fixed clock in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the default Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// MultiFacePolicy decides what identification does when the probe frame
// contains more than one face.
type MultiFacePolicy string

const (
	// PolicyFirstFace identifies the first detected face and reports the
	// bystanders in Result.FaceCount.
	PolicyFirstFace MultiFacePolicy = "first"
	// PolicyReject refuses to identify an ambiguous frame.
	PolicyReject MultiFacePolicy = "reject"
)

// Status classifies the outcome of one identification round. Unknown faces
// and frames without a face are normal outcomes, not errors.
type Status string

const (
	StatusCancelled Status = "cancelled"
	StatusNoFace    Status = "no_face"
	StatusAmbiguous Status = "ambiguous"
	StatusUnknown   Status = "unknown"
	StatusMatched   Status = "matched"
)

// Result is the outcome of one identification round. Ephemeral, never
// persisted.
type Result struct {
	ID        string      `json:"id"`
	Status    Status      `json:"status"`
	Identity  string      `json:"identity,omitempty"`
	Distance  float64     `json:"distance,omitempty"`
	FaceCount int         `json:"face_count"`
	Mark      MarkSummary `json:"mark"`
}

// MarkSummary reports what the ledger did, when a match was recorded.
type MarkSummary struct {
	Attempted bool   `json:"attempted"`
	Outcome   string `json:"outcome,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Controller wires the collaborators for identification rounds. Retry is
// user-driven: the controller never loops on a failed capture, so a broken
// camera surfaces instead of being masked.
type Controller struct {
	gallery     *gallery.Gallery
	ledger      *ledger.Ledger
	enc         codec.Encoder
	clock       Clock
	threshold   float64
	policy      MultiFacePolicy
	indexCutoff int

	idxMu  sync.Mutex
	idx    *match.Index
	idxGen uint64
}

// NewController creates a session controller. A nil clock defaults to
// SystemClock; an empty policy defaults to PolicyFirstFace. Galleries with
// at least indexCutoff identities are matched through an HNSW index instead
// of the exact scan; a cutoff of 0 disables the index.
func NewController(gal *gallery.Gallery, led *ledger.Ledger, enc codec.Encoder, threshold float64, indexCutoff int, policy MultiFacePolicy, clock Clock) *Controller {
	if clock == nil {
		clock = SystemClock{}
	}
	if policy == "" {
		policy = PolicyFirstFace
	}
	if threshold <= 0 {
		threshold = match.DefaultThreshold
	}
	return &Controller{
		gallery:     gal,
		ledger:      led,
		enc:         enc,
		clock:       clock,
		threshold:   threshold,
		policy:      policy,
		indexCutoff: indexCutoff,
	}
}

// matchProbe decides the probe against the current gallery snapshot. Small
// galleries use the exact scan; large ones go through a cached HNSW index
// that is rebuilt when the gallery generation changes.
func (c *Controller) matchProbe(probe codec.Embedding) match.Outcome {
	candidates := c.gallery.Candidates()
	if c.indexCutoff <= 0 || len(candidates) < c.indexCutoff {
		return match.Match(probe, candidates, c.threshold)
	}
	if ix := c.index(candidates); ix != nil {
		return ix.Match(probe, c.threshold)
	}
	return match.Match(probe, candidates, c.threshold)
}

// index returns the cached index for the current gallery generation,
// rebuilding it after any enrollment. Returns nil if the snapshot cannot be
// indexed; the caller falls back to the exact scan.
func (c *Controller) index(candidates []match.Candidate) *match.Index {
	gen := c.gallery.Generation()

	c.idxMu.Lock()
	defer c.idxMu.Unlock()

	if c.idx != nil && c.idxGen == gen && c.idx.Len() == len(candidates) {
		return c.idx
	}

	ix, err := match.NewIndex(candidates)
	if err != nil {
		return nil
	}
	c.idx = ix
	c.idxGen = gen
	return ix
}

// IdentifyAndMark runs one identification round: capture a frame, encode
// it, match the probe against a stable gallery snapshot and, on a match,
// record attendance with the given operator note. Cancelled captures,
// frames without a face, ambiguous frames under PolicyReject and unknown
// faces all return without side effects.
func (c *Controller) IdentifyAndMark(ctx context.Context, capture CaptureFunc, note string) (Result, error) {
	res := Result{ID: uuid.NewString()}

	frame, err := capture(ctx)
	if err != nil {
		return res, fmt.Errorf("capturing frame: %w", err)
	}
	if frame == nil {
		res.Status = StatusCancelled
		return res, nil
	}

	dets, err := c.enc.Encode(ctx, frame)
	if err != nil {
		return res, fmt.Errorf("encoding probe: %w", err)
	}
	res.FaceCount = len(dets)

	if len(dets) == 0 {
		res.Status = StatusNoFace
		return res, nil
	}
	if len(dets) > 1 && c.policy == PolicyReject {
		res.Status = StatusAmbiguous
		return res, nil
	}

	// The snapshot is taken once; a register racing this round cannot
	// change the matching decision mid-round.
	outcome := c.matchProbe(dets[0].Embedding)
	res.Distance = outcome.Distance

	if !outcome.Matched {
		res.Status = StatusUnknown
		return res, nil
	}

	res.Status = StatusMatched
	res.Identity = outcome.Identity
	res.Mark.Attempted = true

	markOutcome, err := c.ledger.Mark(ctx, outcome.Identity, c.clock.Now(), note)
	res.Mark.Outcome = markOutcome.String()
	res.Mark.Duplicate = markOutcome == ledger.AlreadyRecordedToday
	if err != nil {
		return res, fmt.Errorf("marking attendance for %s: %w", outcome.Identity, err)
	}

	return res, nil
}

// Threshold returns the configured match threshold.
func (c *Controller) Threshold() float64 { return c.threshold }

// Policy returns the configured multi-face policy.
func (c *Controller) Policy() MultiFacePolicy { return c.policy }
