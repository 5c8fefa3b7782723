package playback

import (
	"errors"
	"fmt"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrDisposed      = errors.New("playback controller disposed")
	ErrNotLoaded     = errors.New("asset not loaded")
)

// StreamError reports that one entry's audio could not be fetched or
// decoded. Other entries are unaffected.
type StreamError struct {
	Name string
	Err  error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Name, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}
