package mailbox

import "strings"

// GranteeType identifies who an access grant applies to.
type GranteeType uint8

const (
	GranteeUser GranteeType = iota + 1
	GranteeGroup
	GranteeAuthUser
	GranteeDomain
	GranteeGuest
	GranteePublic

	GranteeTypeMax = GranteePublic
)

// Valid reports whether t is one of the defined grantee types.
func (t GranteeType) Valid() bool {
	return t >= GranteeUser && t <= GranteeTypeMax
}

func (t GranteeType) String() string {
	switch t {
	case GranteeUser:
		return "usr"
	case GranteeGroup:
		return "grp"
	case GranteeAuthUser:
		return "all"
	case GranteeDomain:
		return "dom"
	case GranteeGuest:
		return "guest"
	case GranteePublic:
		return "pub"
	default:
		return "unknown"
	}
}

// Rights is an access-rights bitmask.
type Rights uint16

const (
	RightRead      Rights = 0x0001
	RightWrite     Rights = 0x0002
	RightInsert    Rights = 0x0004
	RightDelete    Rights = 0x0008
	RightAction    Rights = 0x0010
	RightAdmin     Rights = 0x0100
	RightPrivate   Rights = 0x0200
	RightFreeBusy  Rights = 0x0800
	RightSubfolder Rights = 0x2000
)

var rightLetters = []struct {
	r Rights
	c byte
}{
	{RightRead, 'r'},
	{RightWrite, 'w'},
	{RightInsert, 'i'},
	{RightDelete, 'd'},
	{RightAction, 'x'},
	{RightAdmin, 'a'},
	{RightPrivate, 'p'},
	{RightFreeBusy, 'f'},
	{RightSubfolder, 'c'},
}

// String renders the rights as ACL letters, e.g. "rwid".
func (r Rights) String() string {
	var sb strings.Builder
	for _, rl := range rightLetters {
		if r&rl.r != 0 {
			sb.WriteByte(rl.c)
		}
	}
	return sb.String()
}

// ItemType identifies the kind of mailbox item an operation targets.
type ItemType uint8

const (
	ItemFolder ItemType = iota + 1
	ItemMessage
	ItemDocument
	ItemContact
	ItemAppointment

	ItemTypeMax = ItemAppointment
)

// Valid reports whether t is one of the defined item types.
func (t ItemType) Valid() bool {
	return t >= ItemFolder && t <= ItemTypeMax
}

func (t ItemType) String() string {
	switch t {
	case ItemFolder:
		return "folder"
	case ItemMessage:
		return "message"
	case ItemDocument:
		return "document"
	case ItemContact:
		return "contact"
	case ItemAppointment:
		return "appointment"
	default:
		return "unknown"
	}
}

// Message describes a delivered message. The body lives in the blob store;
// the log records only its digest and size.
type Message struct {
	FolderID   int32
	MessageID  int32
	Size       int64
	Digest     string
	ReceivedMs int64
	Flags      uint32
	Tags       uint64
}

// Document describes a saved document revision.
type Document struct {
	FolderID    int32
	ItemID      int32
	Name        string
	ContentType string
	Author      string
	Size        int64
	Digest      string
}
