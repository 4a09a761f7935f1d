package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harrylevesque/kdcode/internal/decoder"
)

// DefaultFPS is the capture cadence of a paced source.
const DefaultFPS = 5

// ErrBadFrame marks a single unreadable frame; the scan skips it.
var ErrBadFrame = errors.New("scan: unreadable frame")

// Frame is one captured image.
type Frame struct {
	Seq      int
	Image    image.Image
	Captured time.Time
	Origin   string // file name or other capture label
}

// FrameSource produces frames at its own cadence. Next returns io.EOF when
// the source is exhausted. Close releases the device, unblocks Next and may
// be called more than once.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// SliceSource replays in-memory images.
type SliceSource struct {
	mu     sync.Mutex
	images []image.Image
	next   int
	closed bool
}

func NewSliceSource(images ...image.Image) *SliceSource {
	return &SliceSource{images: images}
}

func (s *SliceSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.next >= len(s.images) {
		return Frame{}, io.EOF
	}
	f := Frame{
		Seq:      s.next,
		Image:    s.images[s.next],
		Captured: time.Now(),
		Origin:   fmt.Sprintf("frame-%d", s.next),
	}
	s.next++
	return f, nil
}

func (s *SliceSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

var frameExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true}

// DirSource reads image files from a directory in name order, at most fps
// frames per second; fps <= 0 reads as fast as possible.
type DirSource struct {
	paths  []string
	next   int
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func NewDirSource(dir string, fps float64) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan: read frame directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	s := &DirSource{paths: paths, done: make(chan struct{})}
	if fps > 0 {
		s.ticker = time.NewTicker(time.Duration(float64(time.Second) / fps))
	}
	return s, nil
}

// Next is not safe for concurrent use; the scanner has a single producer.
func (s *DirSource) Next(ctx context.Context) (Frame, error) {
	if s.next >= len(s.paths) {
		return Frame{}, io.EOF
	}
	if s.ticker != nil && s.next > 0 {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-s.done:
			return Frame{}, io.EOF
		case <-s.ticker.C:
		}
	}
	select {
	case <-s.done:
		return Frame{}, io.EOF
	default:
	}

	path := s.paths[s.next]
	seq := s.next
	s.next++
	img, err := readImage(path)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %w", ErrBadFrame, filepath.Base(path), err)
	}
	return Frame{Seq: seq, Image: img, Captured: time.Now(), Origin: filepath.Base(path)}, nil
}

func readImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decoder.ReadImage(data, 0)
}

func (s *DirSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.ticker != nil {
			s.ticker.Stop()
		}
	})
	return nil
}
