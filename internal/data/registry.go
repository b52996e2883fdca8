package data

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/relaydesk/helpdesk-bridge/internal/biz/domain"
	"github.com/relaydesk/helpdesk-bridge/internal/biz/repo"
)

type sessionEntry struct {
	threadID  domain.ThreadID
	createdAt time.Time
}

// Registry owns all session, link and activity state behind one lock.
// Compound operations (bind, close + purge) run under that lock as a unit.
type Registry struct {
	mu       sync.Mutex
	sessions map[domain.UserID]sessionEntry
	byThread map[domain.ThreadID]domain.UserID
	links    *LinkStore
	activity *ActivityTracker

	// saveMu orders snapshot capture and file write across concurrent Persist calls
	saveMu sync.Mutex
	file   *SnapshotFile
	now    func() time.Time
	logger *slog.Logger
}

var _ repo.SessionRepo = (*Registry)(nil)

// NewRegistry creates an empty registry. file may be nil for a memory-only
// registry.
func NewRegistry(file *SnapshotFile, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[domain.UserID]sessionEntry),
		byThread: make(map[domain.ThreadID]domain.UserID),
		links:    NewLinkStore(),
		activity: NewActivityTracker(),
		file:     file,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "registry")),
	}
}

// SetClock replaces the time source
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Load restores state from the snapshot file. A missing or unreadable file
// leaves the registry empty and an empty snapshot is written immediately.
func (r *Registry) Load() error {
	if r.file == nil {
		return nil
	}

	snap, err := r.file.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.logger.Info("no snapshot found, starting empty", slog.String("path", r.file.Path))
		} else {
			r.logger.Error("snapshot unreadable, starting empty", slog.String("path", r.file.Path), slog.Any("error", err))
		}
		if saveErr := r.Persist(); saveErr != nil {
			return fmt.Errorf("failed to initialize snapshot: %w", saveErr)
		}
		return nil
	}

	r.Restore(snap)
	g2u, u2g := r.linkCounts()
	r.logger.Info("snapshot loaded",
		slog.Int("sessions", len(snap.UserTopics)),
		slog.Int("g2u", g2u),
		slog.Int("u2g", u2g))
	return nil
}

// OpenOrGet returns the user's open thread or isNew=true
func (r *Registry) OpenOrGet(userID domain.UserID) (domain.ThreadID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[userID]; ok {
		return e.threadID, false
	}
	return 0, true
}

// Bind registers userID <-> threadID. Re-binding the identical pair is a no-op.
func (r *Registry) Bind(userID domain.UserID, threadID domain.ThreadID, createdAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[userID]; ok {
		if e.threadID == threadID {
			return nil
		}
		return &domain.ConflictError{UserID: userID, ThreadID: threadID, ExistingThread: e.threadID}
	}
	if owner, ok := r.byThread[threadID]; ok {
		return &domain.ConflictError{UserID: userID, ThreadID: threadID, ExistingUser: owner}
	}

	r.sessions[userID] = sessionEntry{threadID: threadID, createdAt: createdAt}
	r.byThread[threadID] = userID
	r.activity.Touch(threadID, createdAt)
	return nil
}

// LookupByThread returns the user bound to threadID
func (r *Registry) LookupByThread(threadID domain.ThreadID) (domain.UserID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byThread[threadID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return userID, nil
}

// LookupThread returns the thread bound to userID
func (r *Registry) LookupThread(userID domain.UserID) (domain.ThreadID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return e.threadID, nil
}

// Touch marks activity on threadID
func (r *Registry) Touch(threadID domain.ThreadID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byThread[threadID]; !ok {
		return
	}
	r.activity.Touch(threadID, r.now())
}

// CloseByUser removes the user's session together with its links
func (r *Registry) CloseByUser(userID domain.UserID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.removeLocked(userID, e), nil
}

// CloseByThread removes the thread's session together with its links
func (r *Registry) CloseByThread(threadID domain.ThreadID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byThread[threadID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.removeLocked(userID, r.sessions[userID]), nil
}

func (r *Registry) removeLocked(userID domain.UserID, e sessionEntry) *domain.Session {
	last, _ := r.activity.Last(e.threadID)
	session := &domain.Session{
		UserID:         userID,
		ThreadID:       e.threadID,
		CreatedAt:      e.createdAt,
		LastActivityAt: last,
	}

	delete(r.sessions, userID)
	delete(r.byThread, e.threadID)
	r.activity.Forget(e.threadID)
	purged := r.links.PurgeThread(e.threadID)

	r.logger.Debug("session removed",
		slog.String("user", string(userID)),
		slog.Int("thread", int(e.threadID)),
		slog.Int("links_purged", purged))
	return session
}

// ListOpen returns all open sessions ordered by thread id
func (r *Registry) ListOpen() []domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]domain.Session, 0, len(r.sessions))
	for userID, e := range r.sessions {
		last, _ := r.activity.Last(e.threadID)
		list = append(list, domain.Session{
			UserID:         userID,
			ThreadID:       e.threadID,
			CreatedAt:      e.createdAt,
			LastActivityAt: last,
		})
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].ThreadID < list[j].ThreadID
	})
	return list
}

// IdleSince lists open threads idle for longer than threshold
func (r *Registry) IdleSince(threshold time.Duration) []domain.ThreadID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idle []domain.ThreadID
	for _, threadID := range r.activity.IdleSince(r.now(), threshold) {
		if _, ok := r.byThread[threadID]; ok {
			idle = append(idle, threadID)
		}
	}
	return idle
}

// LinkMessages records a MessageLink
func (r *Registry) LinkMessages(link domain.MessageLink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.links.Link(link.ThreadID, link.GroupMessageID, link.UserMessageID)
}

// ResolveGroupToUser maps a staff-side message id to the user side
func (r *Registry) ResolveGroupToUser(groupMsgID domain.MessageID) (domain.MessageID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.links.GroupToUser(groupMsgID)
}

// ResolveUserToGroup maps a user-side message id to the staff side
func (r *Registry) ResolveUserToGroup(userMsgID domain.MessageID) (domain.MessageID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.links.UserToGroup(userMsgID)
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

func (r *Registry) linkCounts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.links.Len()
}

// Snapshot captures the current state
func (r *Registry) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := NewSnapshot()
	for userID, e := range r.sessions {
		snap.UserTopics[userID] = e.threadID
	}
	for g, e := range r.links.g2u {
		snap.G2U[g] = LinkValue{Msg: e.Peer, Thread: e.Thread}
	}
	for u, e := range r.links.u2g {
		snap.U2G[u] = LinkValue{Msg: e.Peer, Thread: e.Thread}
	}
	for threadID, t := range r.activity.last {
		snap.LastActivity[threadID] = float64(t.UnixMicro()) / 1e6
	}
	return snap
}

// Restore replaces the current state with snap. Session creation times are
// not part of the snapshot and come back zero. A session without a recorded
// activity time counts as active now.
func (r *Registry) Restore(snap *Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions = make(map[domain.UserID]sessionEntry, len(snap.UserTopics))
	r.byThread = make(map[domain.ThreadID]domain.UserID, len(snap.UserTopics))
	r.links = NewLinkStore()
	r.activity = NewActivityTracker()

	now := r.now()
	for userID, threadID := range snap.UserTopics {
		if owner, dup := r.byThread[threadID]; dup {
			r.logger.Warn("duplicate thread in snapshot, keeping first",
				slog.Int("thread", int(threadID)),
				slog.String("kept", string(owner)),
				slog.String("dropped", string(userID)))
			continue
		}
		r.sessions[userID] = sessionEntry{threadID: threadID}
		r.byThread[threadID] = userID
		r.activity.Touch(threadID, now)
	}
	for threadID, secs := range snap.LastActivity {
		if _, ok := r.byThread[threadID]; !ok {
			continue
		}
		r.activity.Touch(threadID, time.UnixMicro(int64(math.Round(secs*1e6))))
	}
	for g, v := range snap.G2U {
		r.links.restoreGroup(g, linkEntry{Peer: v.Msg, Thread: v.Thread})
	}
	for u, v := range snap.U2G {
		r.links.restoreUser(u, linkEntry{Peer: v.Msg, Thread: v.Thread})
	}
}

// Persist writes the current state to the snapshot file
func (r *Registry) Persist() error {
	if r.file == nil {
		return nil
	}

	r.saveMu.Lock()
	defer r.saveMu.Unlock()

	if err := r.file.Save(r.Snapshot()); err != nil {
		return fmt.Errorf("failed to persist registry: %w", err)
	}
	return nil
}
