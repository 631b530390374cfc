// Package classifier turns captured photos into recycling labels, either by
// asking a remote service or by running the local fallback model.
package classifier

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/smartbin/internal/camera"
)

var (
	// ErrClassify reports a failed classification attempt.
	ErrClassify = errors.New("classification failed")
	// ErrInvalidImage reports input the model cannot decode.
	ErrInvalidImage = errors.New("invalid image")
)

// Label is the outcome of a classification.
type Label int

const (
	Unknown Label = iota
	Recyclable
	NonRecyclable
)

// String returns the wire form of the label.
func (l Label) String() string {
	switch l {
	case Recyclable:
		return "recyclable"
	case NonRecyclable:
		return "nonrecyclable"
	default:
		return "unknown"
	}
}

// ParseLabel maps a service response to a Label. Anything unrecognised is Unknown.
func ParseLabel(s string) Label {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recyclable":
		return Recyclable
	case "nonrecyclable", "non-recyclable", "non_recyclable":
		return NonRecyclable
	default:
		return Unknown
	}
}

// Source identifies which classifier produced a result.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Result carries either a label or the reason classification failed.
type Result struct {
	Label  Label
	Source Source
	Err    error
}

// OK reports whether the result holds a label.
func (r Result) OK() bool {
	return r.Err == nil
}

// Classifier labels a photo.
type Classifier interface {
	Classify(ctx context.Context, photo camera.Photo) (Label, error)
}

// Attempt runs a classifier and folds its outcome into a Result.
func Attempt(ctx context.Context, c Classifier, source Source, photo camera.Photo) Result {
	label, err := c.Classify(ctx, photo)
	if err != nil {
		return Result{Label: Unknown, Source: source, Err: err}
	}
	return Result{Label: label, Source: source}
}

type timeoutClassifier struct {
	next    Classifier
	timeout time.Duration
}

// WithTimeout bounds every call to c. A non-positive timeout returns c unchanged.
func WithTimeout(c Classifier, timeout time.Duration) Classifier {
	if timeout <= 0 {
		return c
	}
	return &timeoutClassifier{next: c, timeout: timeout}
}

func (t *timeoutClassifier) Classify(ctx context.Context, photo camera.Photo) (Label, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Classify(ctx, photo)
}
