package transport

import (
	"context"
	"hash"
	"io"
	"sync/atomic"
	"time"

	"github.com/glorpus-work/bagfetch/pkg/digest"
	"github.com/glorpus-work/bagfetch/pkg/errors"
)

// StreamOptions configures Stream.
type StreamOptions struct {
	ChunkSize int
	// Total is the expected length used for progress reports, or -1.
	Total    int64
	Progress func(written, total int64)
	// ChunkTimeout bounds the wait for each chunk. When it fires, Abort is
	// called and must unblock the pending Read.
	ChunkTimeout time.Duration
	Abort        func()
	// Algorithm, when set, makes Stream hash the payload as it is written.
	Algorithm digest.Algorithm
}

// StreamResult is what Stream observed.
type StreamResult struct {
	Bytes  int64
	Digest digest.Digest
}

// Stream copies src to dst in ChunkSize pieces, checking ctx between chunks.
// Errors are classified: cancellation is Cancelled, read failures and stalls
// are NetworkError, write failures are PermanentError.
func Stream(ctx context.Context, dst io.Writer, src io.Reader, opts StreamOptions) (StreamResult, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	var h hash.Hash
	if opts.Algorithm != "" {
		var err error
		if h, err = opts.Algorithm.New(); err != nil {
			return StreamResult{}, errors.Permanent(0, err)
		}
		dst = io.MultiWriter(dst, h)
	}

	var stalled atomic.Bool
	var watchdog *time.Timer
	if opts.ChunkTimeout > 0 && opts.Abort != nil {
		watchdog = time.AfterFunc(opts.ChunkTimeout, func() {
			stalled.Store(true)
			opts.Abort()
		})
		defer watchdog.Stop()
	}

	buf := make([]byte, opts.ChunkSize)
	var res StreamResult
	for {
		if err := ctx.Err(); err != nil {
			return res, errors.Cancelled(err)
		}
		n, rerr := io.ReadFull(src, buf)
		if watchdog != nil {
			watchdog.Reset(opts.ChunkTimeout)
		}
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return res, errors.Permanent(0, errors.Wrap(err, "could not write file"))
			}
			res.Bytes += int64(n)
			if opts.Progress != nil {
				opts.Progress(res.Bytes, opts.Total)
			}
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			if err := ctx.Err(); err != nil {
				return res, errors.Cancelled(err)
			}
			if stalled.Load() {
				return res, errors.Network(errors.ErrChunkTimeout)
			}
			return res, errors.Network(rerr)
		}
	}

	if h != nil {
		res.Digest = digest.Sum(opts.Algorithm, h)
	}
	return res, nil
}
