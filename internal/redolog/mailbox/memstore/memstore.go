// Package memstore is an in-memory mailbox.Store. Every mutation is
// idempotent so a log can be replayed over a mailbox that already holds part
// of its effects.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/julianstephens/redolog/internal/redolog/mailbox"
)

var (
	ErrNoSuchFolder = errors.New("memstore: no such folder")
	ErrNoSuchItem   = errors.New("memstore: no such item")
)

// RootFolderID is the folder every mailbox is created with.
const RootFolderID int32 = 1

type Folder struct {
	ID       int32
	ParentID int32
	Name     string
	View     mailbox.ItemType
	Flags    uint32
	Color    uint8
	ACL      map[string]Grant
}

type Grant struct {
	Type    mailbox.GranteeType
	Rights  mailbox.Rights
	Inherit bool
}

type Item struct {
	ID       int32
	Type     mailbox.ItemType
	FolderID int32
	Flags    uint32
	Tags     uint64
	Message  *mailbox.Message
	Document *mailbox.Document
}

// Snapshot is a deep copy of one mailbox's state.
type Snapshot struct {
	Folders map[int32]Folder
	Items   map[int32]Item
	Config  map[string]string
}

// Store holds any number of mailboxes. Unknown ids are reported as not found
// unless the store was created with AutoCreate.
type Store struct {
	mu         sync.RWMutex
	boxes      map[uint64]*Mailbox
	autoCreate bool
}

type Option func(*Store)

// WithAutoCreate makes Lookup create missing mailboxes.
func WithAutoCreate() Option {
	return func(s *Store) { s.autoCreate = true }
}

func New(opts ...Option) *Store {
	s := &Store{boxes: make(map[uint64]*Mailbox)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create adds an empty mailbox with only the root folder. It is a no-op if
// the mailbox already exists.
func (s *Store) Create(id uint64) *Mailbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(id)
}

func (s *Store) createLocked(id uint64) *Mailbox {
	if m, ok := s.boxes[id]; ok {
		return m
	}
	m := &Mailbox{
		id: id,
		state: Snapshot{
			Folders: map[int32]Folder{
				RootFolderID: {ID: RootFolderID, Name: "USER_ROOT", View: mailbox.ItemFolder, ACL: map[string]Grant{}},
			},
			Items:  map[int32]Item{},
			Config: map[string]string{},
		},
	}
	s.boxes[id] = m
	return m
}

func (s *Store) Lookup(_ context.Context, id uint64) (mailbox.Handle, error) {
	m, err := s.Mailbox(id)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Mailbox returns the concrete mailbox for id.
func (s *Store) Mailbox(id uint64) (*Mailbox, error) {
	s.mu.RLock()
	m, ok := s.boxes[id]
	s.mu.RUnlock()
	if ok {
		return m, nil
	}
	if !s.autoCreate {
		return nil, &mailbox.NotFoundError{MailboxID: id}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(id), nil
}

// IDs returns the ids of every mailbox in ascending order.
func (s *Store) IDs() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.boxes))
}

// Mailbox is one mailbox's in-memory state.
type Mailbox struct {
	id    uint64
	mu    sync.RWMutex
	state Snapshot
}

func (m *Mailbox) ID() uint64 { return m.id }

// Snapshot returns a deep copy of the current state.
func (m *Mailbox) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := Snapshot{
		Folders: make(map[int32]Folder, len(m.state.Folders)),
		Items:   make(map[int32]Item, len(m.state.Items)),
		Config:  maps.Clone(m.state.Config),
	}
	for id, f := range m.state.Folders {
		f.ACL = maps.Clone(f.ACL)
		out.Folders[id] = f
	}
	for id, it := range m.state.Items {
		if it.Message != nil {
			msg := *it.Message
			it.Message = &msg
		}
		if it.Document != nil {
			doc := *it.Document
			it.Document = &doc
		}
		out.Items[id] = it
	}
	return out
}

func (m *Mailbox) folder(id int32) (Folder, error) {
	f, ok := m.state.Folders[id]
	if !ok {
		return Folder{}, fmt.Errorf("%w: mbox=%d folder=%d", ErrNoSuchFolder, m.id, id)
	}
	return f, nil
}

func (m *Mailbox) GrantAccess(_ context.Context, folderID int32, grantee string, gt mailbox.GranteeType, rights mailbox.Rights, inherit bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.folder(folderID)
	if err != nil {
		return err
	}
	f.ACL[grantee] = Grant{Type: gt, Rights: rights, Inherit: inherit}
	return nil
}

func (m *Mailbox) RevokeAccess(_ context.Context, folderID int32, grantee string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.folder(folderID)
	if err != nil {
		return err
	}
	delete(f.ACL, grantee)
	return nil
}

func (m *Mailbox) CreateFolder(_ context.Context, parentID, folderID int32, name string, view mailbox.ItemType, flags uint32, color uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.folder(parentID); err != nil {
		return err
	}
	if existing, ok := m.state.Folders[folderID]; ok && existing.ParentID == parentID && existing.Name == name {
		return nil
	}
	m.state.Folders[folderID] = Folder{
		ID:       folderID,
		ParentID: parentID,
		Name:     name,
		View:     view,
		Flags:    flags,
		Color:    color,
		ACL:      map[string]Grant{},
	}
	return nil
}

func (m *Mailbox) RenameFolder(_ context.Context, folderID int32, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.folder(folderID)
	if err != nil {
		return err
	}
	f.Name = name
	m.state.Folders[folderID] = f
	return nil
}

// DeleteFolder removes a folder, its subfolders and their items. Deleting a
// folder that is already gone succeeds.
func (m *Mailbox) DeleteFolder(_ context.Context, folderID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if folderID == RootFolderID {
		return fmt.Errorf("memstore: cannot delete root folder of mbox=%d", m.id)
	}
	doomed := map[int32]bool{}
	var walk func(id int32)
	walk = func(id int32) {
		if _, ok := m.state.Folders[id]; !ok || doomed[id] {
			return
		}
		doomed[id] = true
		for cid, c := range m.state.Folders {
			if c.ParentID == id && cid != id {
				walk(cid)
			}
		}
	}
	walk(folderID)

	for id := range doomed {
		delete(m.state.Folders, id)
	}
	for id, it := range m.state.Items {
		if doomed[it.FolderID] {
			delete(m.state.Items, id)
		}
	}
	return nil
}

func (m *Mailbox) DeliverMessage(_ context.Context, msg mailbox.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.folder(msg.FolderID); err != nil {
		return err
	}
	m.state.Items[msg.MessageID] = Item{
		ID:       msg.MessageID,
		Type:     mailbox.ItemMessage,
		FolderID: msg.FolderID,
		Flags:    msg.Flags,
		Tags:     msg.Tags,
		Message:  &msg,
	}
	return nil
}

// MoveItems moves every listed item of type it that still exists.
func (m *Mailbox) MoveItems(_ context.Context, ids []int32, it mailbox.ItemType, target int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.folder(target); err != nil {
		return err
	}
	for _, id := range ids {
		item, ok := m.state.Items[id]
		if !ok || item.Type != it {
			continue
		}
		item.FolderID = target
		m.state.Items[id] = item
	}
	return nil
}

func (m *Mailbox) DeleteItems(_ context.Context, ids []int32, it mailbox.ItemType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		if item, ok := m.state.Items[id]; ok && item.Type == it {
			delete(m.state.Items, id)
		}
	}
	return nil
}

func (m *Mailbox) SetItemFlags(_ context.Context, ids []int32, flags uint32, tags uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		item, ok := m.state.Items[id]
		if !ok {
			continue
		}
		item.Flags = flags
		item.Tags = tags
		m.state.Items[id] = item
	}
	return nil
}

func (m *Mailbox) SaveDocument(_ context.Context, doc mailbox.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.folder(doc.FolderID); err != nil {
		return err
	}
	m.state.Items[doc.ItemID] = Item{
		ID:       doc.ItemID,
		Type:     mailbox.ItemDocument,
		FolderID: doc.FolderID,
		Document: &doc,
	}
	return nil
}

func (m *Mailbox) SetConfig(_ context.Context, section, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Config[section] = value
	return nil
}
