// Package jsonl appends snapshots to a writer as JSON Lines. Writes go
// through a single background goroutine so concurrent requests never
// interleave lines.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/eastwind-labs/anthropic-bridge/pkg/snapshot"
)

var ErrClosed = errors.New("jsonl recorder closed")

func NewRecorder(ctx context.Context, out io.WriteCloser) snapshot.Recorder {
	r := &Recorder{
		cx:         ctx,
		entries:    make(chan *entry, 64),
		bw:         bufio.NewWriterSize(out, 64*1024),
		out:        out,
		closed:     make(chan struct{}),
		flushEvery: 32,
	}
	r.start()
	return r
}

type Recorder struct {
	cx         context.Context
	wg         sync.WaitGroup
	entries    chan *entry
	bw         *bufio.Writer
	out        io.WriteCloser
	closed     chan struct{}
	once       sync.Once
	pending    int
	flushEvery int
}

func (r *Recorder) start() {
	r.wg.Add(1)
	writeLine := func(e *entry) {
		if _, err := r.bw.Write(e.line); err != nil {
			e.report(r.cx, err)
			return
		}
		if err := r.bw.WriteByte('\n'); err != nil {
			e.report(r.cx, err)
			return
		}
		r.pending++
		if r.flushEvery > 0 && (r.pending >= r.flushEvery || len(r.entries) == 0) {
			if err := r.bw.Flush(); err != nil {
				e.report(r.cx, err)
				return
			}
			r.pending = 0
		}
		e.report(r.cx, nil)
	}
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.closed:
				// drain what is already queued, then stop
				for {
					select {
					case e := <-r.entries:
						if e != nil {
							writeLine(e)
						}
					default:
						return
					}
				}
			case e := <-r.entries:
				if e != nil {
					writeLine(e)
				}
			}
		}
	}()
}

func (r *Recorder) Record(snap *snapshot.Snapshot) error {
	select {
	case <-r.cx.Done():
		return r.cx.Err()
	case <-r.closed:
		return ErrClosed
	default:
	}
	line, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	e := &entry{line: line, callback: make(chan error, 1)}
	select {
	case <-r.cx.Done():
		return r.cx.Err()
	case <-r.closed:
		return ErrClosed
	case r.entries <- e:
	}
	select {
	case <-r.cx.Done():
		return r.cx.Err()
	case err := <-e.callback:
		return err
	}
}

func (r *Recorder) Close() error {
	r.once.Do(func() {
		close(r.closed)
	})
	r.wg.Wait()
	if r.bw != nil {
		if err := r.bw.Flush(); err != nil {
			return err
		}
	}
	return r.out.Close()
}

type entry struct {
	line     []byte
	callback chan error
}

func (e *entry) report(ctx context.Context, err error) {
	select {
	case <-ctx.Done():
	case e.callback <- err:
	}
}
