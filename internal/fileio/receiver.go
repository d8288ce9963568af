// Package fileio streams transfer payload bytes to and from disk, producing
// an integrity hash as data passes through, and optionally mirrors completed
// receives to S3-compatible object storage in the background.
package fileio

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
)

// Receiver streams DTF payload chunks to a file on disk, hashing as it
// goes. It never buffers a whole transfer in memory: each DTF payload is
// written straight through.
type Receiver struct {
	f      *os.File
	hash   hash.Hash
	offset int64
}

// CreateReceiver opens path for writing. If resumeOffset is nonzero, the
// file is opened for append at that offset (a retry-resume continuation);
// otherwise it is created or truncated fresh. The hash only ever covers
// bytes written through this Receiver, so a resumed transfer's checksum
// reflects the resumed segment, not the full file — callers comparing
// against a peer-supplied whole-file checksum must account for that.
func CreateReceiver(path string, resumeOffset int64) (*Receiver, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if resumeOffset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("fileio: opening %s for receive: %w", path, err)
	}
	if resumeOffset > 0 {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("fileio: statting %s: %w", path, err)
		}
		if info.Size() < resumeOffset {
			f.Close()
			return nil, fmt.Errorf("fileio: %s is shorter (%d) than requested resume offset %d", path, info.Size(), resumeOffset)
		}
		if err := f.Truncate(resumeOffset); err != nil {
			f.Close()
			return nil, fmt.Errorf("fileio: truncating %s to resume offset %d: %w", path, resumeOffset, err)
		}
	}
	return &Receiver{f: f, hash: sha256.New(), offset: resumeOffset}, nil
}

// Write appends p to the output file and the running hash.
func (r *Receiver) Write(p []byte) (int, error) {
	n, err := r.f.Write(p)
	r.offset += int64(n)
	if n > 0 {
		r.hash.Write(p[:n])
	}
	if err != nil {
		return n, fmt.Errorf("fileio: writing to %s: %w", r.f.Name(), err)
	}
	return n, nil
}

// Offset reports the total bytes written (including any resume offset).
func (r *Receiver) Offset() int64 { return r.offset }

// Flush forces the output file's contents to durable storage, called at
// every sync point so an interruption never loses more than the
// not-yet-synced tail.
func (r *Receiver) Flush() error {
	if err := r.f.Sync(); err != nil {
		return fmt.Errorf("fileio: syncing %s: %w", r.f.Name(), err)
	}
	return nil
}

// TruncateTo discards any bytes written past position, used when an
// interrupted transfer's tail past the last acknowledged sync point must be
// discarded before the file is left for a future retry.
func (r *Receiver) TruncateTo(position int64) error {
	if err := r.f.Truncate(position); err != nil {
		return fmt.Errorf("fileio: truncating %s to %d: %w", r.f.Name(), position, err)
	}
	r.offset = position
	return nil
}

// Close closes the output file and returns the hex-encoded SHA-256 digest
// of everything written through this Receiver.
func (r *Receiver) Close() (checksum string, err error) {
	checksum = hex.EncodeToString(r.hash.Sum(nil))
	if err := r.f.Close(); err != nil {
		return checksum, fmt.Errorf("fileio: closing %s: %w", r.f.Name(), err)
	}
	return checksum, nil
}

// Abort closes the output file without finalizing the checksum, used when a
// receive is abandoned mid-transfer (interrupted or failed).
func (r *Receiver) Abort() error {
	return r.f.Close()
}
