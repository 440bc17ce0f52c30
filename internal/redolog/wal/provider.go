package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/julianstephens/redolog/internal/redolog"
)

// DirProvider is a read-only SegmentProvider over a log directory. Recovery
// and the CLI use it without opening the log for append.
type DirProvider struct {
	dir      string
	segments []uint64
}

// NewDirProvider lists the segments in dir once.
func NewDirProvider(dir string) (*DirProvider, error) {
	segs, err := ListSegments(dir)
	if err != nil {
		return nil, wrapLogErr("list_segments", ErrSegmentList, dir, 0, err)
	}
	return &DirProvider{dir: dir, segments: segs}, nil
}

func (p *DirProvider) Dir() string {
	return p.dir
}

func (p *DirProvider) SegmentIDs() []uint64 {
	return slices.Clone(p.segments)
}

func (p *DirProvider) SegmentPath(segID uint64) string {
	return filepath.Join(p.dir, SegmentFileName(segID))
}

func (p *DirProvider) OpenSegment(segID uint64) (SegmentReader, error) {
	if _, ok := slices.BinarySearch(p.segments, segID); !ok {
		return nil, wrapLogErr("open_segment", ErrSegmentNotFound, p.dir, segID, nil)
	}
	sr, err := OpenSegmentFile(segID, p.SegmentPath(segID))
	if err != nil {
		return nil, segmentOpenErr(p.dir, segID, err)
	}
	return sr, nil
}

// MailboxDir returns the log directory of one mailbox under a log root.
func MailboxDir(root string, mailboxID uint64) string {
	return filepath.Join(root, fmt.Sprintf("%s%d", redolog.MailboxDirPrefix, mailboxID))
}

// ParseMailboxDir parses the base name of a per-mailbox log directory.
func ParseMailboxDir(name string) (uint64, bool) {
	rest, ok := strings.CutPrefix(name, redolog.MailboxDirPrefix)
	if !ok || rest == "" || rest[0] == '+' || rest[0] == '0' {
		return 0, false
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ListMailboxes returns the IDs of the mailbox logs under root in ascending
// order. A missing root has no mailboxes.
func ListMailboxes(root string) ([]uint64, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapLogErr("list_mailboxes", ErrSegmentList, root, 0, err)
	}
	var ids []uint64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if id, ok := ParseMailboxDir(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

var (
	_ SegmentProvider = (*DirProvider)(nil)
	_ SegmentProvider = (*Log)(nil)
	_ Appender        = (*Log)(nil)
)
