package data

import "github.com/relaydesk/helpdesk-bridge/internal/biz/domain"

// linkEntry is one side of a MessageLink: the peer message id plus the
// owning thread
type linkEntry struct {
	Peer   domain.MessageID
	Thread domain.ThreadID
}

// LinkStore keeps the two reverse-lookup tables of MessageLinks plus a
// per-thread index for exact purging. It is not synchronized; Registry
// guards it with its own lock.
type LinkStore struct {
	g2u map[domain.MessageID]linkEntry
	u2g map[domain.MessageID]linkEntry

	groupByThread map[domain.ThreadID]map[domain.MessageID]struct{}
	userByThread  map[domain.ThreadID]map[domain.MessageID]struct{}
}

// NewLinkStore creates an empty link store
func NewLinkStore() *LinkStore {
	return &LinkStore{
		g2u:           make(map[domain.MessageID]linkEntry),
		u2g:           make(map[domain.MessageID]linkEntry),
		groupByThread: make(map[domain.ThreadID]map[domain.MessageID]struct{}),
		userByThread:  make(map[domain.ThreadID]map[domain.MessageID]struct{}),
	}
}

// Link records groupMsg <-> userMsg for thread. Any previous partner of
// either id is unlinked first, so no reverse entry is left pointing at a
// message that now maps elsewhere.
func (s *LinkStore) Link(thread domain.ThreadID, groupMsg, userMsg domain.MessageID) {
	if old, ok := s.g2u[groupMsg]; ok {
		s.dropUser(old.Peer, groupMsg)
		s.unindex(s.groupByThread, old.Thread, groupMsg)
	}
	if old, ok := s.u2g[userMsg]; ok {
		s.dropGroup(old.Peer, userMsg)
		s.unindex(s.userByThread, old.Thread, userMsg)
	}

	s.g2u[groupMsg] = linkEntry{Peer: userMsg, Thread: thread}
	s.u2g[userMsg] = linkEntry{Peer: groupMsg, Thread: thread}
	s.index(s.groupByThread, thread, groupMsg)
	s.index(s.userByThread, thread, userMsg)
}

// GroupToUser resolves a staff-side message to its user-side counterpart
func (s *LinkStore) GroupToUser(groupMsg domain.MessageID) (domain.MessageID, bool) {
	e, ok := s.g2u[groupMsg]
	return e.Peer, ok
}

// UserToGroup resolves a user-side message to its staff-side counterpart
func (s *LinkStore) UserToGroup(userMsg domain.MessageID) (domain.MessageID, bool) {
	e, ok := s.u2g[userMsg]
	return e.Peer, ok
}

// PurgeThread removes every link tagged with thread and returns how many
// table entries were dropped
func (s *LinkStore) PurgeThread(thread domain.ThreadID) int {
	removed := 0
	for g := range s.groupByThread[thread] {
		if e, ok := s.g2u[g]; ok && e.Thread == thread {
			delete(s.g2u, g)
			removed++
		}
	}
	for u := range s.userByThread[thread] {
		if e, ok := s.u2g[u]; ok && e.Thread == thread {
			delete(s.u2g, u)
			removed++
		}
	}
	delete(s.groupByThread, thread)
	delete(s.userByThread, thread)
	return removed
}

// Len returns the sizes of the group->user and user->group tables
func (s *LinkStore) Len() (g2u, u2g int) {
	return len(s.g2u), len(s.u2g)
}

// restoreGroup inserts a single loaded g2u entry without unlinking peers
func (s *LinkStore) restoreGroup(groupMsg domain.MessageID, e linkEntry) {
	s.g2u[groupMsg] = e
	s.index(s.groupByThread, e.Thread, groupMsg)
}

// restoreUser inserts a single loaded u2g entry without unlinking peers
func (s *LinkStore) restoreUser(userMsg domain.MessageID, e linkEntry) {
	s.u2g[userMsg] = e
	s.index(s.userByThread, e.Thread, userMsg)
}

func (s *LinkStore) dropUser(userMsg, expectedGroup domain.MessageID) {
	if e, ok := s.u2g[userMsg]; ok && e.Peer == expectedGroup {
		delete(s.u2g, userMsg)
		s.unindex(s.userByThread, e.Thread, userMsg)
	}
}

func (s *LinkStore) dropGroup(groupMsg, expectedUser domain.MessageID) {
	if e, ok := s.g2u[groupMsg]; ok && e.Peer == expectedUser {
		delete(s.g2u, groupMsg)
		s.unindex(s.groupByThread, e.Thread, groupMsg)
	}
}

func (s *LinkStore) index(idx map[domain.ThreadID]map[domain.MessageID]struct{}, thread domain.ThreadID, msg domain.MessageID) {
	set, ok := idx[thread]
	if !ok {
		set = make(map[domain.MessageID]struct{})
		idx[thread] = set
	}
	set[msg] = struct{}{}
}

func (s *LinkStore) unindex(idx map[domain.ThreadID]map[domain.MessageID]struct{}, thread domain.ThreadID, msg domain.MessageID) {
	set, ok := idx[thread]
	if !ok {
		return
	}
	delete(set, msg)
	if len(set) == 0 {
		delete(idx, thread)
	}
}
