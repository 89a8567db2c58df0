// Package transfer streams bytes between local files and provider SDKs while
// reporting progress and honouring context cancellation.
package transfer

import (
	"context"
	"io"
)

// Reader wraps an io.Reader, reporting the cumulative number of bytes read
// after every successful Read. It stops with ctx.Err() once ctx is done.
type Reader struct {
	ctx      context.Context
	r        io.Reader
	n        int64
	progress func(int64)
}

// NewReader returns a Reader over r. progress may be nil.
func NewReader(ctx context.Context, r io.Reader, progress func(int64)) *Reader {
	return &Reader{ctx: ctx, r: r, progress: progress}
}

func (pr *Reader) Read(p []byte) (int, error) {
	if err := pr.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.n += int64(n)
		if pr.progress != nil {
			pr.progress(pr.n)
		}
	}
	return n, err
}

// N returns the number of bytes read so far.
func (pr *Reader) N() int64 { return pr.n }
