package download

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/glorpus-work/bagfetch/pkg/errors"
	"github.com/glorpus-work/bagfetch/pkg/transport"
)

// Batch is the outcome of FetchAll. Results are in manifest order.
type Batch struct {
	Results []transport.Result
	// Rejected is set when the batch was refused before any I/O.
	Rejected error
}

// Failed returns the results that did not succeed.
func (b Batch) Failed() []transport.Result {
	var out []transport.Result
	for _, r := range b.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Succeeded counts successful results, skipped ones included.
func (b Batch) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.OK() {
			n++
		}
	}
	return n
}

// Skipped counts entries satisfied by an existing file.
func (b Batch) Skipped() int {
	n := 0
	for _, r := range b.Results {
		if r.Skipped {
			n++
		}
	}
	return n
}

// Bytes sums the bytes written by successful fetches.
func (b Batch) Bytes() int64 {
	var n int64
	for _, r := range b.Results {
		if r.OK() {
			n += r.Bytes
		}
	}
	return n
}

// Cancelled reports whether any entry stopped because of cancellation.
func (b Batch) Cancelled() bool {
	for _, r := range b.Results {
		if r.Kind == errors.KindCancelled {
			return true
		}
	}
	return false
}

// Err aggregates every failure into one error, or returns nil.
func (b Batch) Err() error {
	if b.Rejected != nil {
		return b.Rejected
	}
	var result *multierror.Error
	for _, r := range b.Failed() {
		result = multierror.Append(result, fmt.Errorf("%s: %w", r.EntryID, r.Err))
	}
	return result.ErrorOrNil()
}
