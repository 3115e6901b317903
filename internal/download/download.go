// Package download implements the streaming read path: metadata lookup,
// blob existence check, and — for encrypted blobs — an on-the-fly
// decrypt worker that pushes plaintext chunks through a bounded channel.
package download

import (
	"context"
	"io"
	"os"

	"github.com/hazyhaar/vaultfs/internal/apperr"
	"github.com/hazyhaar/vaultfs/internal/cryptocodec"
	"github.com/hazyhaar/vaultfs/internal/objectstore"
	"github.com/hazyhaar/vaultfs/internal/store"
)

// chunkSize and channel capacity bound per-download buffering to <=512KiB.
const (
	chunkSize = 64 * 1024
	chanCap   = 8
)

// Pipeline serves blob bodies given resolved metadata.
type Pipeline struct {
	Store      *store.Store
	Objects    *objectstore.Store
	Passphrase string
}

// Open looks up the live record for (tenant, fileID) and returns its
// metadata plus a stream of its plaintext bytes. The caller must Close the
// stream. NotFound covers a missing/tombstoned record as well as a
// storage_path that no longer resolves to a file on disk.
func (p *Pipeline) Open(ctx context.Context, tenant, fileID string) (*store.File, io.ReadCloser, error) {
	meta, err := p.Store.LookupLive(ctx, tenant, fileID)
	if err != nil {
		return nil, nil, apperr.Internal("download: lookup live", err)
	}
	if meta == nil {
		return nil, nil, apperr.NotFound("download: no such file")
	}

	abs := p.Objects.AbsPath(meta.StoragePath)
	if !objectstore.Exists(abs) {
		return nil, nil, apperr.NotFound("download: blob missing on disk")
	}

	if !meta.Encrypted {
		f, err := os.Open(abs)
		if err != nil {
			return nil, nil, apperr.Internal("download: open blob", err)
		}
		return meta, f, nil
	}

	return meta, newDecryptStream(ctx, p.Passphrase, abs), nil
}

type chunk struct {
	data []byte
	err  error
}

// decryptStream is an io.ReadCloser backed by a worker goroutine that
// decrypts abs and pushes plaintext chunks onto a bounded channel. Closing
// it (on client disconnect) cancels the worker: the next channel send it
// attempts fails against ctx.Done and it exits without finishing.
type decryptStream struct {
	ch     chan chunk
	cancel context.CancelFunc
	buf    []byte
}

func newDecryptStream(parent context.Context, passphrase, path string) *decryptStream {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan chunk, chanCap)
	s := &decryptStream{ch: ch, cancel: cancel}
	go decryptWorker(ctx, passphrase, path, ch)
	return s
}

func decryptWorker(ctx context.Context, passphrase, path string, ch chan<- chunk) {
	defer close(ch)

	f, err := os.Open(path)
	if err != nil {
		trySend(ctx, ch, chunk{err: err})
		return
	}
	defer f.Close()

	r, err := cryptocodec.DecryptStream(passphrase, f)
	if err != nil {
		trySend(ctx, ch, chunk{err: err})
		return
	}

	buf := make([]byte, chunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !trySend(ctx, ch, chunk{data: data}) {
				return
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				trySend(ctx, ch, chunk{err: rerr})
			}
			return
		}
	}
}

// trySend attempts to deliver c, returning false if ctx was cancelled
// first (the consumer disconnected).
func trySend(ctx context.Context, ch chan<- chunk, c chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *decryptStream) Read(p []byte) (int, error) {
	if len(s.buf) == 0 {
		c, ok := <-s.ch
		if !ok {
			return 0, io.EOF
		}
		if c.err != nil {
			return 0, c.err
		}
		s.buf = c.data
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *decryptStream) Close() error {
	s.cancel()
	return nil
}
