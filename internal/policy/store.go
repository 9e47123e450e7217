// ABOUTME: Durable policy store with write-through, crash-safe persistence
// ABOUTME: Every mutation lands on disk atomically before the call returns

package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ErrPersistence marks failures of the backing file. The in-memory document
// remains the source of truth; the operator retries by repeating the mutation.
var ErrPersistence = errors.New("policy persistence failed")

// Store owns the policy document and its backing file. All reads and
// mutations are serialized through one mutex so read-then-write sequences
// (add-if-absent) are atomic with respect to each other. No other component
// touches the backing file.
type Store struct {
	mu     sync.Mutex
	path   string
	logger *slog.Logger
	doc    *Document
}

// Open loads the policy document from path. A missing file synthesizes and
// persists a default document. An unreadable or corrupt file is logged and
// left untouched; the store then serves an in-memory default so the service
// stays available, and the next successful save writes through normally.
func Open(path string, logger *slog.Logger) *Store {
	s := &Store{
		path:   path,
		logger: logger.With("component", "policy"),
	}
	s.doc = s.load()
	return s
}

func (s *Store) load() *Document {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		doc := NewDocument()
		if err := s.write(doc); err != nil {
			s.logger.Error("persisting initial policy document", "path", s.path, "error", err)
		} else {
			s.logger.Info("created default policy document", "path", s.path)
		}
		return doc
	}
	if err != nil {
		s.logger.Error("policy document unreadable, serving in-memory defaults", "path", s.path, "error", err)
		return NewDocument()
	}

	doc, err := decodeDocument(data)
	if err != nil {
		// Do not overwrite the corrupt file: the operator needs to notice
		// the drift and recover whatever state it still holds.
		s.logger.Error("policy document corrupt, serving in-memory defaults", "path", s.path, "error", err)
		return NewDocument()
	}
	return doc
}

// write persists doc atomically: the document is written to a temporary file
// in the same directory and renamed over the prior version, so a crash leaves
// either the pre-call or the post-call state on disk, never a partial write.
func (s *Store) write(doc *Document) error {
	data, err := doc.encode()
	if err != nil {
		return fmt.Errorf("%w: encoding document: %v", ErrPersistence, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrPersistence, dir, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrPersistence, tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: replacing %s: %v", ErrPersistence, s.path, err)
	}
	return nil
}

// Snapshot returns an immutable copy of the current document.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.snapshot()
}

// AddRecipient inserts id into the roster if absent. Returns whether it was
// newly added; persists only when a change occurred.
func (s *Store) AddRecipient(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if containsInt64(s.doc.Recipients, id) {
		return false, nil
	}
	s.doc.Recipients = append(s.doc.Recipients, id)
	if err := s.write(s.doc); err != nil {
		s.doc.Recipients = s.doc.Recipients[:len(s.doc.Recipients)-1]
		return false, err
	}
	return true, nil
}

// RemoveRecipient removes id from the roster. Returns whether it was present;
// persists only on actual removal.
func (s *Store) RemoveRecipient(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := append([]int64(nil), s.doc.Recipients...)
	next, removed := removeInt64(s.doc.Recipients, id)
	if !removed {
		return false, nil
	}
	s.doc.Recipients = next
	if err := s.write(s.doc); err != nil {
		s.doc.Recipients = prev
		return false, err
	}
	return true, nil
}

// AddKeyword inserts word into the blocked-keyword set if absent. Callers
// normalize (trim, lowercase) before calling.
func (s *Store) AddKeyword(word string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if containsString(s.doc.Keywords, word) {
		return false, nil
	}
	s.doc.Keywords = append(s.doc.Keywords, word)
	if err := s.write(s.doc); err != nil {
		s.doc.Keywords = s.doc.Keywords[:len(s.doc.Keywords)-1]
		return false, err
	}
	return true, nil
}

// RemoveKeyword removes word from the blocked-keyword set.
func (s *Store) RemoveKeyword(word string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := append([]string(nil), s.doc.Keywords...)
	next, removed := removeString(s.doc.Keywords, word)
	if !removed {
		return false, nil
	}
	s.doc.Keywords = next
	if err := s.write(s.doc); err != nil {
		s.doc.Keywords = prev
		return false, err
	}
	return true, nil
}

// AddIgnored inserts id into the ignored-sender set if absent.
func (s *Store) AddIgnored(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if containsInt64(s.doc.IgnoredUsers, id) {
		return false, nil
	}
	s.doc.IgnoredUsers = append(s.doc.IgnoredUsers, id)
	if err := s.write(s.doc); err != nil {
		s.doc.IgnoredUsers = s.doc.IgnoredUsers[:len(s.doc.IgnoredUsers)-1]
		return false, err
	}
	return true, nil
}

// RemoveIgnored removes id from the ignored-sender set.
func (s *Store) RemoveIgnored(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := append([]int64(nil), s.doc.IgnoredUsers...)
	next, removed := removeInt64(s.doc.IgnoredUsers, id)
	if !removed {
		return false, nil
	}
	s.doc.IgnoredUsers = next
	if err := s.write(s.doc); err != nil {
		s.doc.IgnoredUsers = prev
		return false, err
	}
	return true, nil
}

// ToggleDeleteSource flips the delete-after-relay flag and persists
// unconditionally. The flipped value is kept in memory even when persistence
// fails; the returned error tells the operator the flag may revert on
// restart.
func (s *Store) ToggleDeleteSource() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.DeleteSourceMessage = !s.doc.DeleteSourceMessage
	err := s.write(s.doc)
	return s.doc.DeleteSourceMessage, err
}
