package store

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ArchiveEntry is one quarantined room payload.
type ArchiveEntry struct {
	RoomCode string
	Payload  []byte
	Cause    string
	SavedAt  time.Time
}

// Archive keeps the most recently quarantined room payloads in memory so an
// operator can inspect them without digging through Redis. Bounded; oldest
// entries fall off.
type Archive struct {
	entries *lru.Cache[string, ArchiveEntry]
}

// NewArchive builds an archive holding up to size entries.
func NewArchive(size int) *Archive {
	if size < 1 {
		size = defaultArchiveSize
	}
	entries, _ := lru.New[string, ArchiveEntry](size)
	return &Archive{entries: entries}
}

// Add records a quarantined payload, replacing any earlier entry for the room.
func (a *Archive) Add(roomCode string, payload []byte, cause error) {
	entry := ArchiveEntry{
		RoomCode: roomCode,
		Payload:  append([]byte(nil), payload...),
		SavedAt:  time.Now(),
	}
	if cause != nil {
		entry.Cause = cause.Error()
	}
	a.entries.Add(roomCode, entry)
}

// Get returns the archived payload for a room, if one is held.
func (a *Archive) Get(roomCode string) (ArchiveEntry, bool) {
	return a.entries.Get(roomCode)
}

// Len reports how many quarantined rooms are held.
func (a *Archive) Len() int {
	return a.entries.Len()
}
