package amcp

import (
	"maps"
	"slices"
	"sync"
)

// ChannelLocks is the process wide channel lock table. A locked channel rejects channel commands
// from every session that is not one of its holders. All methods are safe for concurrent use.
type ChannelLocks struct {
	clearPhrase string

	mu      sync.Mutex
	entries map[int]*channelLock
}

type channelLock struct {
	passphrase string
	holders    map[string]struct{}
}

// NewChannelLocks creates an empty lock table. A non-empty clearPhrase must be supplied to
// ClearAll.
func NewChannelLocks(clearPhrase string) *ChannelLocks {
	return &ChannelLocks{
		clearPhrase: clearPhrase,
		entries:     make(map[int]*channelLock),
	}
}

// IsLocked reports whether channel is locked against sessionID.
func (l *ChannelLocks) IsLocked(sessionID string, channel int) bool {
	if channel < 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[channel]
	if !ok {
		return false
	}
	_, holder := entry.holders[sessionID]
	return !holder
}

// TryLock adds sessionID to the holders of channel. It fails when the channel is already locked
// with a different passphrase.
func (l *ChannelLocks) TryLock(sessionID string, channel int, passphrase string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[channel]
	if !ok {
		entry = &channelLock{holders: make(map[string]struct{})}
		l.entries[channel] = entry
	}
	if entry.passphrase != "" && entry.passphrase != passphrase {
		return false
	}
	entry.passphrase = passphrase
	entry.holders[sessionID] = struct{}{}
	return true
}

// Release removes sessionID from the holders of channel. The lock disappears with its last holder.
func (l *ChannelLocks) Release(sessionID string, channel int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.releaseLocked(sessionID, channel)
}

// ClearAll removes every lock. It fails when a clear phrase is configured and phrase differs.
func (l *ChannelLocks) ClearAll(phrase string) bool {
	if l.clearPhrase != "" && l.clearPhrase != phrase {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.entries)
	return true
}

// ForgetSession releases every lock sessionID holds.
func (l *ChannelLocks) ForgetSession(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for channel := range l.entries {
		l.releaseLocked(sessionID, channel)
	}
}

// Locked returns the sorted indexes of the locked channels.
func (l *ChannelLocks) Locked() []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return slices.Sorted(maps.Keys(l.entries))
}

func (l *ChannelLocks) releaseLocked(sessionID string, channel int) {
	entry, ok := l.entries[channel]
	if !ok {
		return
	}
	delete(entry.holders, sessionID)
	if len(entry.holders) == 0 {
		delete(l.entries, channel)
	}
}
