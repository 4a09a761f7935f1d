// Package scan runs the decoder continuously over a stream of frames: one
// producer feeds a drop-oldest queue, a pool of workers decodes, and the first
// verified symbol ends the scan.
package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/harrylevesque/kdcode/internal/decoder"
	"github.com/harrylevesque/kdcode/internal/symbol"
	"github.com/harrylevesque/kdcode/internal/utils"
)

// ErrNoSymbol is returned when the source ran out before any frame decoded.
var ErrNoSymbol = errors.New("scan: no symbol found")

// Config tunes a Scanner.
type Config struct {
	Hint decoder.Hint

	// Multithreading enables a pool of Workers decoders; otherwise frames are
	// decoded one at a time.
	Multithreading bool
	Workers        int // 0 means one per CPU

	QueueSize int // 1 or 2; 0 means 1
}

// DefaultConfig returns single-threaded scanning with the default hint.
func DefaultConfig() Config {
	return Config{Hint: decoder.DefaultHint(), QueueSize: 1}
}

// Result is the outcome of a successful scan.
type Result struct {
	Session  string
	Symbol   *symbol.DecodedSymbol
	Frame    int    // Seq of the frame that decoded
	Origin   string // its capture label
	Attempts int    // frames decoded, including the winner
	Dropped  int    // frames evicted unseen
}

type decodeFunc func(context.Context, image.Image, decoder.Hint) (*symbol.DecodedSymbol, error)

// Scanner decodes frames until one yields a verified symbol.
type Scanner struct {
	cfg    Config
	log    *utils.Logger
	decode decodeFunc
}

// NewScanner returns a scanner; a nil logger discards output.
func NewScanner(cfg Config, logger *utils.Logger) *Scanner {
	if logger == nil {
		logger = utils.NewWriterLogger(io.Discard)
	}
	return &Scanner{cfg: cfg, log: logger, decode: decoder.Decode}
}

func (s *Scanner) workers() int {
	if !s.cfg.Multithreading {
		return 1
	}
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return runtime.NumCPU()
}

// Scan consumes src until a frame decodes, the source is exhausted, a
// structural error occurs or ctx is cancelled. src is always closed before
// Scan returns. Image-quality failures move on to the next frame.
func (s *Scanner) Scan(ctx context.Context, src FrameSource) (*Result, error) {
	defer src.Close()
	if err := s.cfg.Hint.Validate(); err != nil {
		return nil, err
	}
	size := s.cfg.QueueSize
	if size == 0 {
		size = 1
	}
	queue, err := NewQueue(size)
	if err != nil {
		return nil, err
	}

	session := uuid.NewString()
	workers := s.workers()
	s.log.Infof("scan %s: started, %d worker(s), queue %d", session, workers, size)

	scanCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(scanCtx)
	// Release the device as soon as the scan stops, even mid-Next.
	release := context.AfterFunc(gctx, func() { src.Close() })
	defer release()

	var (
		mu       sync.Mutex
		found    *Result
		attempts int
		lastErr  error
	)

	g.Go(func() error {
		defer queue.Close()
		for {
			f, err := src.Next(gctx)
			switch {
			case err == nil:
				if queue.Push(f) {
					s.log.Infof("scan %s: dropped a stale frame", session)
				}
			case errors.Is(err, io.EOF), gctx.Err() != nil:
				return nil
			case errors.Is(err, ErrBadFrame):
				s.log.Warnf("scan %s: %v", session, err)
			default:
				return fmt.Errorf("scan: frame source: %w", err)
			}
		}
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				f, err := queue.Pop(gctx)
				if err != nil {
					return nil
				}
				sym, err := s.decode(gctx, f.Image, s.cfg.Hint)

				mu.Lock()
				if err == nil {
					attempts++
					if found == nil {
						found = &Result{Session: session, Symbol: sym, Frame: f.Seq, Origin: f.Origin}
					}
					mu.Unlock()
					stop()
					return nil
				}
				if gctx.Err() != nil {
					mu.Unlock()
					return nil
				}
				attempts++
				lastErr = err
				mu.Unlock()

				if !symbol.IsImageQuality(err) {
					return err
				}
				s.log.Infof("scan %s: %s: %v", session, f.Origin, err)
			}
		})
	}

	werr := g.Wait()
	mu.Lock()
	defer mu.Unlock()
	if found != nil {
		found.Attempts = attempts
		found.Dropped = queue.Dropped()
		s.log.Infof("scan %s: decoded %s after %d attempt(s)", session, found.Origin, attempts)
		return found, nil
	}
	if werr != nil {
		s.log.Errorf("scan %s: %v", session, werr)
		return nil, werr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.log.Infof("scan %s: no symbol in %d attempt(s)", session, attempts)
	if lastErr != nil {
		return nil, fmt.Errorf("%w after %d attempt(s): %w", ErrNoSymbol, attempts, lastErr)
	}
	return nil, ErrNoSymbol
}
