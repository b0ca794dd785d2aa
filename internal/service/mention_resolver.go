package service

import (
	"context"
	"regexp"
	"sync"

	"chatsync/internal/models"

	"github.com/sirupsen/logrus"
)

var handlePattern = regexp.MustCompile(`@([A-Za-z0-9_]+)`)

// ExtractHandles returns the distinct @handle tokens of a message body,
// in first-occurrence order, without the @ prefix.
func ExtractHandles(text string) []string {
	matches := handlePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	handles := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		handles = append(handles, m[1])
	}
	return handles
}

// IdentityDirectory resolves handles to identity records. A nil entry
// with nil error means the handle does not exist in that namespace.
type IdentityDirectory interface {
	LookupUserHandle(ctx context.Context, handle string) (*models.MentionEntry, error)
	LookupConversationHandle(ctx context.Context, handle string) (*models.MentionEntry, error)
}

// MentionResolver memoizes handle resolution for one conversation
// session. Handles are looked up against users first, then
// conversations; not-found results are cached like any other so a
// missing handle is looked up at most once. The cache is never
// invalidated within a session; rebinding a handle mid-session is out
// of scope. Resolution is fully decoupled from message ordering: a
// message may render its mention as plain text until the entry lands.
type MentionResolver struct {
	directory IdentityDirectory
	logger    *logrus.Logger

	mu       sync.Mutex
	cache    map[string]*models.MentionEntry
	inflight map[string]chan struct{}
}

// NewMentionResolver creates a resolver over the given directory.
func NewMentionResolver(directory IdentityDirectory, logger *logrus.Logger) *MentionResolver {
	return &MentionResolver{
		directory: directory,
		logger:    logger,
		cache:     make(map[string]*models.MentionEntry),
		inflight:  make(map[string]chan struct{}),
	}
}

// Cached returns the memoized entry for a handle without triggering a
// lookup. The second return reports whether resolution has completed.
func (r *MentionResolver) Cached(handle string) (*models.MentionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[handle]
	return entry, ok
}

// Resolve returns the identity for a handle, issuing at most one lookup
// per distinct handle per session. Concurrent callers for the same
// handle wait on the first lookup instead of duplicating it. Lookup
// failures are not cached; the next caller retries.
func (r *MentionResolver) Resolve(ctx context.Context, handle string) (*models.MentionEntry, error) {
	for {
		r.mu.Lock()
		if entry, ok := r.cache[handle]; ok {
			r.mu.Unlock()
			return entry, nil
		}
		if waitCh, resolving := r.inflight[handle]; resolving {
			r.mu.Unlock()
			select {
			case <-waitCh:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		waitCh := make(chan struct{})
		r.inflight[handle] = waitCh
		r.mu.Unlock()

		entry, err := r.lookup(ctx, handle)

		r.mu.Lock()
		delete(r.inflight, handle)
		if err == nil {
			r.cache[handle] = entry
		}
		r.mu.Unlock()
		close(waitCh)

		if err != nil {
			r.logger.WithError(err).WithField("handle", handle).Warn("Mention lookup failed")
			return nil, err
		}
		return entry, nil
	}
}

// ResolveText resolves every handle of a message body, returning the
// entries that completed. Individual failures are skipped; the caller
// renders those mentions as plain text.
func (r *MentionResolver) ResolveText(ctx context.Context, text string) map[string]*models.MentionEntry {
	out := make(map[string]*models.MentionEntry)
	for _, handle := range ExtractHandles(text) {
		entry, err := r.Resolve(ctx, handle)
		if err != nil {
			continue
		}
		out[handle] = entry
	}
	return out
}

// ResolveUserIDs returns the user IDs behind the handles of a message
// body, for mention fan-out on send. Conversation mentions and unknown
// handles carry no per-user fan-out and are omitted.
func (r *MentionResolver) ResolveUserIDs(ctx context.Context, text string) map[string]bool {
	ids := make(map[string]bool)
	for _, entry := range r.ResolveText(ctx, text) {
		if entry.Kind == models.MentionUser && entry.ID != "" {
			ids[entry.ID] = true
		}
	}
	return ids
}

// Reset drops the session cache. Called when the conversation identity
// changes.
func (r *MentionResolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*models.MentionEntry)
}

func (r *MentionResolver) lookup(ctx context.Context, handle string) (*models.MentionEntry, error) {
	entry, err := r.directory.LookupUserHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return entry, nil
	}

	entry, err = r.directory.LookupConversationHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return entry, nil
	}

	return &models.MentionEntry{Handle: handle, Kind: models.MentionNotFound}, nil
}
