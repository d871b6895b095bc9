package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/vkravcenko/attendance/internal/codec"
	"github.com/vkravcenko/attendance/internal/gallery"
	"github.com/vkravcenko/attendance/internal/ledger"
)

// stubEncoder returns canned detections keyed by frame content.
type stubEncoder struct {
	responses map[string][]codec.Detection
	err       error
}

func (s *stubEncoder) Encode(_ context.Context, imageData []byte) ([]codec.Detection, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.responses[string(imageData)], nil
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func frameCapture(frame []byte) CaptureFunc {
	return func(context.Context) ([]byte, error) { return frame, nil }
}

// newFixture builds a controller over a two-person gallery (alice at the
// origin, bob at distance 1.2 from her) and a fresh ledger.
func newFixture(t *testing.T, policy MultiFacePolicy) (*Controller, *stubEncoder, *ledger.Ledger) {
	t.Helper()
	dir := t.TempDir()

	enc := &stubEncoder{responses: map[string][]codec.Detection{
		"ref-alice": {{Embedding: codec.Embedding{0, 0, 0}}},
		"ref-bob":   {{Embedding: codec.Embedding{1.2, 0, 0}}},
	}}

	gal := gallery.New(dir, enc)
	if _, err := gal.Register(context.Background(), "alice", []byte("ref-alice"), false); err != nil {
		t.Fatalf("enrolling alice: %v", err)
	}
	if _, err := gal.Register(context.Background(), "bob", []byte("ref-bob"), false); err != nil {
		t.Fatalf("enrolling bob: %v", err)
	}

	led, _, err := ledger.Open(filepath.Join(dir, "audit.txt"), filepath.Join(dir, "attendance.csv"))
	if err != nil {
		t.Fatalf("opening ledger: %v", err)
	}

	clock := fixedClock{at: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	return NewController(gal, led, enc, 0.6, 0, policy, clock), enc, led
}

func TestIdentifyAndMark_Matched(t *testing.T) {
	ctrl, enc, led := newFixture(t, PolicyFirstFace)
	// Probe at distance 0.3 from alice and 0.9 from bob.
	enc.responses["probe"] = []codec.Detection{{Embedding: codec.Embedding{0.3, 0, 0}}}

	res, err := ctrl.IdentifyAndMark(context.Background(), frameCapture([]byte("probe")), "")
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if res.Status != StatusMatched {
		t.Fatalf("expected matched, got %s", res.Status)
	}
	if res.Identity != "alice" {
		t.Errorf("expected alice, got %q", res.Identity)
	}
	if res.Distance < 0.29 || res.Distance > 0.31 {
		t.Errorf("expected distance ~0.3, got %v", res.Distance)
	}
	if !res.Mark.Attempted || res.Mark.Duplicate {
		t.Errorf("expected a fresh mark, got %+v", res.Mark)
	}
	if res.ID == "" {
		t.Error("expected a session id")
	}

	records := led.Records()
	if len(records) != 1 {
		t.Fatalf("expected 1 ledger record, got %d", len(records))
	}
	want := ledger.Record{Name: "alice", Date: "2024-05-01", Time: "09:00:00"}
	if records[0] != want {
		t.Errorf("expected %+v, got %+v", want, records[0])
	}
}

func TestIdentifyAndMark_DuplicateSameDay(t *testing.T) {
	ctrl, enc, led := newFixture(t, PolicyFirstFace)
	enc.responses["probe"] = []codec.Detection{{Embedding: codec.Embedding{0.3, 0, 0}}}

	capture := frameCapture([]byte("probe"))
	if _, err := ctrl.IdentifyAndMark(context.Background(), capture, ""); err != nil {
		t.Fatalf("first round: %v", err)
	}

	res, err := ctrl.IdentifyAndMark(context.Background(), capture, "")
	if err != nil {
		t.Fatalf("second round: %v", err)
	}
	if res.Status != StatusMatched {
		t.Errorf("expected matched, got %s", res.Status)
	}
	if !res.Mark.Duplicate {
		t.Error("expected the second same-day round to report a duplicate")
	}
	if n := len(led.Records()); n != 1 {
		t.Errorf("expected 1 record after duplicate round, got %d", n)
	}
}

func TestIdentifyAndMark_Unknown(t *testing.T) {
	ctrl, enc, led := newFixture(t, PolicyFirstFace)
	// Beyond the threshold from both enrolled identities.
	enc.responses["probe"] = []codec.Detection{{Embedding: codec.Embedding{5, 5, 5}}}

	res, err := ctrl.IdentifyAndMark(context.Background(), frameCapture([]byte("probe")), "")
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if res.Status != StatusUnknown {
		t.Errorf("expected unknown, got %s", res.Status)
	}
	if res.Mark.Attempted {
		t.Error("unknown faces must not touch the ledger")
	}
	if n := len(led.Records()); n != 0 {
		t.Errorf("expected empty ledger, got %d records", n)
	}
}

func TestIdentifyAndMark_NoFace(t *testing.T) {
	ctrl, enc, _ := newFixture(t, PolicyFirstFace)
	enc.responses["probe"] = nil

	res, err := ctrl.IdentifyAndMark(context.Background(), frameCapture([]byte("probe")), "")
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if res.Status != StatusNoFace {
		t.Errorf("expected no_face, got %s", res.Status)
	}
	if res.FaceCount != 0 {
		t.Errorf("expected face count 0, got %d", res.FaceCount)
	}
}

func TestIdentifyAndMark_Cancelled(t *testing.T) {
	ctrl, _, _ := newFixture(t, PolicyFirstFace)

	res, err := ctrl.IdentifyAndMark(context.Background(), frameCapture(nil), "")
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if res.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", res.Status)
	}
}

func TestIdentifyAndMark_CaptureError(t *testing.T) {
	ctrl, _, _ := newFixture(t, PolicyFirstFace)

	captureErr := errors.New("camera unavailable")
	capture := func(context.Context) ([]byte, error) { return nil, captureErr }

	if _, err := ctrl.IdentifyAndMark(context.Background(), capture, ""); !errors.Is(err, captureErr) {
		t.Errorf("expected the capture error to surface, got %v", err)
	}
}

func TestIdentifyAndMark_EncoderError(t *testing.T) {
	ctrl, enc, _ := newFixture(t, PolicyFirstFace)
	enc.err = errors.New("encoder down")

	if _, err := ctrl.IdentifyAndMark(context.Background(), frameCapture([]byte("probe")), ""); err == nil {
		t.Fatal("expected error when the encoder fails, got nil")
	}
}

func TestIdentifyAndMark_MultiFaceFirstPolicy(t *testing.T) {
	ctrl, enc, _ := newFixture(t, PolicyFirstFace)
	enc.responses["probe"] = []codec.Detection{
		{Embedding: codec.Embedding{0.3, 0, 0}}, // alice
		{Embedding: codec.Embedding{5, 5, 5}},   // bystander
	}

	res, err := ctrl.IdentifyAndMark(context.Background(), frameCapture([]byte("probe")), "")
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if res.Status != StatusMatched || res.Identity != "alice" {
		t.Errorf("expected alice via first face, got %s/%q", res.Status, res.Identity)
	}
	if res.FaceCount != 2 {
		t.Errorf("expected face count 2, got %d", res.FaceCount)
	}
}

func TestIdentifyAndMark_MultiFaceRejectPolicy(t *testing.T) {
	ctrl, enc, led := newFixture(t, PolicyReject)
	enc.responses["probe"] = []codec.Detection{
		{Embedding: codec.Embedding{0.3, 0, 0}},
		{Embedding: codec.Embedding{5, 5, 5}},
	}

	res, err := ctrl.IdentifyAndMark(context.Background(), frameCapture([]byte("probe")), "")
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if res.Status != StatusAmbiguous {
		t.Errorf("expected ambiguous, got %s", res.Status)
	}
	if res.Mark.Attempted || len(led.Records()) != 0 {
		t.Error("ambiguous rounds must not touch the ledger")
	}
}

func TestIdentifyAndMark_EmptyGallery(t *testing.T) {
	dir := t.TempDir()
	enc := &stubEncoder{responses: map[string][]codec.Detection{
		"probe": {{Embedding: codec.Embedding{0, 0, 0}}},
	}}
	gal := gallery.New(dir, enc)
	led, _, err := ledger.Open(filepath.Join(dir, "audit.txt"), filepath.Join(dir, "attendance.csv"))
	if err != nil {
		t.Fatalf("opening ledger: %v", err)
	}
	ctrl := NewController(gal, led, enc, 0.6, 0, PolicyFirstFace, fixedClock{at: time.Now()})

	res, err := ctrl.IdentifyAndMark(context.Background(), frameCapture([]byte("probe")), "")
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if res.Status != StatusUnknown {
		t.Errorf("expected unknown against an empty gallery, got %s", res.Status)
	}
}

func TestIdentifyAndMark_IndexedGalleryAgrees(t *testing.T) {
	dir := t.TempDir()

	enc := &stubEncoder{responses: map[string][]codec.Detection{
		"probe": {{Embedding: codec.Embedding{0.3, 0, 0}}},
	}}
	gal := gallery.New(dir, enc)
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("person-%02d", i)
		content := "ref-" + name
		enc.responses[content] = []codec.Detection{{Embedding: codec.Embedding{float32(i), 0, 0}}}
		if _, err := gal.Register(context.Background(), name, []byte(content), false); err != nil {
			t.Fatalf("enrolling %s: %v", name, err)
		}
	}

	led, _, err := ledger.Open(filepath.Join(dir, "audit.txt"), filepath.Join(dir, "attendance.csv"))
	if err != nil {
		t.Fatalf("opening ledger: %v", err)
	}
	clock := fixedClock{at: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}

	// Cutoff below the gallery size forces the index path.
	indexed := NewController(gal, led, enc, 0.6, 5, PolicyFirstFace, clock)
	res, err := indexed.IdentifyAndMark(context.Background(), frameCapture([]byte("probe")), "")
	if err != nil {
		t.Fatalf("identify via index: %v", err)
	}
	if res.Status != StatusMatched || res.Identity != "person-00" {
		t.Errorf("expected person-00 via the index, got %s/%q", res.Status, res.Identity)
	}
	if res.Distance < 0.29 || res.Distance > 0.31 {
		t.Errorf("expected exact distance ~0.3 from the re-rank, got %v", res.Distance)
	}
}

func TestIdentifyAndMark_IndexRebuiltAfterEnrollment(t *testing.T) {
	ctrl, enc, _ := newFixture(t, PolicyFirstFace)
	ctrl.indexCutoff = 1 // force the index path for the two-person gallery
	enc.responses["probe"] = []codec.Detection{{Embedding: codec.Embedding{0.3, 0, 0}}}

	res, err := ctrl.IdentifyAndMark(context.Background(), frameCapture([]byte("probe")), "")
	if err != nil {
		t.Fatalf("first round: %v", err)
	}
	if res.Identity != "alice" {
		t.Fatalf("expected alice, got %q", res.Identity)
	}

	// Enroll carol right on top of the probe; the cached index must be
	// rebuilt, not reused.
	enc.responses["ref-carol"] = []codec.Detection{{Embedding: codec.Embedding{0.3, 0, 0}}}
	if _, err := ctrl.gallery.Register(context.Background(), "carol", []byte("ref-carol"), false); err != nil {
		t.Fatalf("enrolling carol: %v", err)
	}

	res, err = ctrl.IdentifyAndMark(context.Background(), frameCapture([]byte("probe")), "")
	if err != nil {
		t.Fatalf("second round: %v", err)
	}
	if res.Distance != 0 {
		t.Errorf("expected exact-hit distance 0 against the rebuilt index, got %v", res.Distance)
	}
	if res.Identity != "carol" {
		t.Errorf("expected carol after re-indexing, got %q", res.Identity)
	}
}

type recordingMirror struct {
	records []ledger.Record
}

func (m *recordingMirror) RecordAttendance(_ context.Context, rec ledger.Record) error {
	m.records = append(m.records, rec)
	return nil
}

func TestIdentifyAndMark_NoteReachesMirror(t *testing.T) {
	ctrl, enc, led := newFixture(t, PolicyFirstFace)
	enc.responses["probe"] = []codec.Detection{{Embedding: codec.Embedding{0.3, 0, 0}}}

	mirror := &recordingMirror{}
	led.SetMirror(mirror)

	res, err := ctrl.IdentifyAndMark(context.Background(), frameCapture([]byte("probe")), "badge 42")
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if res.Status != StatusMatched {
		t.Fatalf("expected matched, got %s", res.Status)
	}

	if len(mirror.records) != 1 {
		t.Fatalf("expected 1 mirrored record, got %d", len(mirror.records))
	}
	if mirror.records[0].Note != "badge 42" {
		t.Errorf("expected the note to reach the mirror, got %q", mirror.records[0].Note)
	}
}

func TestNewController_Defaults(t *testing.T) {
	ctrl := NewController(nil, nil, nil, 0, 0, "", nil)
	if ctrl.Threshold() != 0.6 {
		t.Errorf("expected default threshold 0.6, got %v", ctrl.Threshold())
	}
	if ctrl.Policy() != PolicyFirstFace {
		t.Errorf("expected default policy first, got %q", ctrl.Policy())
	}
}
