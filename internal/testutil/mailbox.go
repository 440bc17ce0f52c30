package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/julianstephens/redolog/internal/redolog/mailbox"
)

// RecordingHandle is a mailbox.Handle that records each call as a string.
// Set FailOn to a call name (e.g. "GrantAccess") to make that call fail.
type RecordingHandle struct {
	MailboxID uint64
	FailOn    string
	FailErr   error

	mu    sync.Mutex
	calls []string
}

func NewRecordingHandle(id uint64) *RecordingHandle {
	return &RecordingHandle{MailboxID: id}
}

// Calls returns a copy of the recorded calls.
func (h *RecordingHandle) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *RecordingHandle) record(name, format string, args ...any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.FailOn == name {
		if h.FailErr != nil {
			return h.FailErr
		}
		return NewError(name)
	}
	h.calls = append(h.calls, name+" "+fmt.Sprintf(format, args...))
	return nil
}

func (h *RecordingHandle) ID() uint64 { return h.MailboxID }

func (h *RecordingHandle) GrantAccess(_ context.Context, folderID int32, grantee string, gt mailbox.GranteeType, rights mailbox.Rights, inherit bool) error {
	return h.record("GrantAccess", "%d %s %s %s %t", folderID, grantee, gt, rights, inherit)
}

func (h *RecordingHandle) RevokeAccess(_ context.Context, folderID int32, grantee string) error {
	return h.record("RevokeAccess", "%d %s", folderID, grantee)
}

func (h *RecordingHandle) CreateFolder(_ context.Context, parentID, folderID int32, name string, view mailbox.ItemType, flags uint32, color uint8) error {
	return h.record("CreateFolder", "%d %d %s %s %d %d", parentID, folderID, name, view, flags, color)
}

func (h *RecordingHandle) RenameFolder(_ context.Context, folderID int32, name string) error {
	return h.record("RenameFolder", "%d %s", folderID, name)
}

func (h *RecordingHandle) DeleteFolder(_ context.Context, folderID int32) error {
	return h.record("DeleteFolder", "%d", folderID)
}

func (h *RecordingHandle) DeliverMessage(_ context.Context, msg mailbox.Message) error {
	return h.record("DeliverMessage", "%d %d", msg.FolderID, msg.MessageID)
}

func (h *RecordingHandle) MoveItems(_ context.Context, ids []int32, it mailbox.ItemType, target int32) error {
	return h.record("MoveItems", "%v %s %d", ids, it, target)
}

func (h *RecordingHandle) DeleteItems(_ context.Context, ids []int32, it mailbox.ItemType) error {
	return h.record("DeleteItems", "%v %s", ids, it)
}

func (h *RecordingHandle) SetItemFlags(_ context.Context, ids []int32, flags uint32, tags uint64) error {
	return h.record("SetItemFlags", "%v %d %d", ids, flags, tags)
}

func (h *RecordingHandle) SaveDocument(_ context.Context, doc mailbox.Document) error {
	return h.record("SaveDocument", "%d %d %s", doc.FolderID, doc.ItemID, doc.Name)
}

func (h *RecordingHandle) SetConfig(_ context.Context, section, value string) error {
	return h.record("SetConfig", "%s %s", section, value)
}

// RecordingStore hands out RecordingHandles, creating them on first lookup.
// Mailboxes listed in Missing report mailbox.NotFoundError.
type RecordingStore struct {
	Missing map[uint64]bool

	mu      sync.Mutex
	handles map[uint64]*RecordingHandle
}

func NewRecordingStore() *RecordingStore {
	return &RecordingStore{Missing: map[uint64]bool{}, handles: map[uint64]*RecordingHandle{}}
}

func (s *RecordingStore) Lookup(_ context.Context, mailboxID uint64) (mailbox.Handle, error) {
	h, err := s.Handle(mailboxID)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Handle returns the concrete handle for mailboxID.
func (s *RecordingStore) Handle(mailboxID uint64) (*RecordingHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Missing[mailboxID] {
		return nil, &mailbox.NotFoundError{MailboxID: mailboxID}
	}
	h, ok := s.handles[mailboxID]
	if !ok {
		h = NewRecordingHandle(mailboxID)
		s.handles[mailboxID] = h
	}
	return h, nil
}
