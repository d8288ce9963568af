package fileio

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// Sender streams a local file out in caller-sized chunks, hashing as it
// goes so the final TRANS_END can carry an integrity digest alongside the
// byte and record counts.
type Sender struct {
	f    *os.File
	hash hash.Hash
	size int64
	read int64
}

// OpenSender opens path for a send-direction transfer, seeking to
// startOffset (nonzero for a resumed retry).
func OpenSender(path string, startOffset int64) (*Sender, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fileio: opening %s for send: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("fileio: statting %s: %w", path, err)
	}
	if startOffset > 0 {
		if _, err := f.Seek(startOffset, io.SeekStart); err != nil {
			f.Close()
			return nil, fmt.Errorf("fileio: seeking %s to %d: %w", path, startOffset, err)
		}
	}
	return &Sender{f: f, hash: sha256.New(), size: info.Size(), read: startOffset}, nil
}

// Size reports the total size of the underlying file.
func (s *Sender) Size() int64 { return s.size }

// Remaining reports how many bytes are left to send.
func (s *Sender) Remaining() int64 { return s.size - s.read }

// ReadChunk fills buf from the current file position, hashing what it
// reads, and reports io.EOF once the file is exhausted.
func (s *Sender) ReadChunk(buf []byte) (int, error) {
	n, err := s.f.Read(buf)
	if n > 0 {
		s.hash.Write(buf[:n])
		s.read += int64(n)
	}
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("fileio: reading %s: %w", s.f.Name(), err)
	}
	return n, err
}

// Close closes the source file and returns the hex-encoded SHA-256 digest
// of every byte read through this Sender.
func (s *Sender) Close() (checksum string, err error) {
	checksum = hex.EncodeToString(s.hash.Sum(nil))
	if err := s.f.Close(); err != nil {
		return checksum, fmt.Errorf("fileio: closing %s: %w", s.f.Name(), err)
	}
	return checksum, nil
}
