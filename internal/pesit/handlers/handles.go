package handlers

import (
	"sync"

	"github.com/horssit/pesitd/internal/fileio"
)

// FileHandles tracks the open fileio.Receiver/Sender for each session
// currently inside a data-transfer phase. A session has at most one open
// handle at a time, so this is simpler than the path registry: it only
// ever needs to answer "does this session have a file open, and which."
type FileHandles struct {
	mu        sync.Mutex
	receivers map[string]*fileio.Receiver
	senders   map[string]*fileio.Sender
}

// NewFileHandles builds an empty registry.
func NewFileHandles() *FileHandles {
	return &FileHandles{
		receivers: make(map[string]*fileio.Receiver),
		senders:   make(map[string]*fileio.Sender),
	}
}

func (h *FileHandles) putReceiver(sessionID string, r *fileio.Receiver) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.receivers[sessionID] = r
}

func (h *FileHandles) receiver(sessionID string) (*fileio.Receiver, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.receivers[sessionID]
	return r, ok
}

func (h *FileHandles) dropReceiver(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.receivers, sessionID)
}

func (h *FileHandles) putSender(sessionID string, s *fileio.Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.senders[sessionID] = s
}

func (h *FileHandles) sender(sessionID string) (*fileio.Sender, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.senders[sessionID]
	return s, ok
}

func (h *FileHandles) dropSender(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.senders, sessionID)
}

// Abort discards any file handle still open for sessionID, for use when a
// session ends (normally or abnormally) without having reached DTF_END/
// TRANS_END itself.
func (h *FileHandles) Abort(sessionID string) {
	h.mu.Lock()
	recv, hasRecv := h.receivers[sessionID]
	snd, hasSnd := h.senders[sessionID]
	delete(h.receivers, sessionID)
	delete(h.senders, sessionID)
	h.mu.Unlock()

	if hasRecv {
		_ = recv.Abort()
	}
	if hasSnd {
		_, _ = snd.Close()
	}
}
