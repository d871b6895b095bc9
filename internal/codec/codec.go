// Package codec defines the contract with the external face-embedding
// encoder and provides the HTTP client implementation for it.
//
// The encoder maps an image to zero, one or many face detections. Zero
// detections means no face was found; more than one means several faces were
// present, in unspecified order. Callers decide per call site how ambiguity
// is handled (enrollment requires exactly one face, identification may take
// the first).
package codec

import (
	"context"
	"errors"
)

// Embedding is a fixed-length face descriptor produced by the encoder.
// Immutable once produced; compared only via a distance function.
type Embedding []float32

// Detection is a single face found in an image.
type Detection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding Embedding `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	DetScore  float64   `json:"det_score"`
}

// Encoder converts raw image bytes into face detections.
type Encoder interface {
	Encode(ctx context.Context, imageData []byte) ([]Detection, error)
}

var (
	// ErrNoFace is returned when an operation requires at least one face
	// and the encoder found none.
	ErrNoFace = errors.New("no face detected in image")

	// ErrMultipleFaces is returned when an operation requires exactly one
	// face and the encoder found several.
	ErrMultipleFaces = errors.New("multiple faces detected in image")
)

// ExactlyOne returns the single detection from an encoder result, or
// ErrNoFace / ErrMultipleFaces. Used by enrollment, which must not guess.
func ExactlyOne(dets []Detection) (Detection, error) {
	switch len(dets) {
	case 0:
		return Detection{}, ErrNoFace
	case 1:
		return dets[0], nil
	default:
		return Detection{}, ErrMultipleFaces
	}
}
