package remote

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

// Options configures a client.
type Options struct {
	// SessionFile persists the session across processes. Nil keeps the
	// session in memory only.
	SessionFile *SessionFile

	// SessionTTL is the lifetime of sessions issued by LocalClient.
	// Zero uses the store default.
	SessionTTL time.Duration

	// HTTPClient is used by HTTPClient. Nil uses a client with a 30s timeout.
	HTTPClient *http.Client

	// Logger for client events. Nil logs to stderr.
	Logger *log.Logger
}

// identity holds the signed-in session and its listeners. Both clients
// embed it.
type identity struct {
	mu        sync.Mutex
	session   *Session
	restored  bool
	file      *SessionFile
	listeners map[uint64]AuthListener
	nextID    uint64
	now       func() time.Time
	logger    *log.Logger
}

func newIdentity(opts Options, prefix string) *identity {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return &identity{
		file:      opts.SessionFile,
		listeners: make(map[uint64]AuthListener),
		now:       time.Now,
		logger:    logger,
	}
}

// current returns the live session, restoring it from the session file on
// first use. Expired sessions read as signed out.
func (id *identity) current() *Session {
	id.mu.Lock()
	defer id.mu.Unlock()

	id.restoreLocked()
	if id.session.Expired(id.now()) {
		return nil
	}
	return id.session
}

func (id *identity) restoreLocked() {
	if id.restored {
		return
	}
	id.restored = true
	if id.file == nil {
		return
	}
	sess, err := id.file.Load()
	if err != nil {
		id.logger.Printf("Ignoring session file: %v", err)
		return
	}
	id.session = sess
}

// token returns the access token of the live session, or "".
func (id *identity) token() string {
	if sess := id.current(); sess != nil {
		return sess.AccessToken
	}
	return ""
}

// set replaces the session, persists it and notifies listeners.
func (id *identity) set(event AuthEvent, sess *Session) {
	id.apply(event, sess, true)
}

func (id *identity) apply(event AuthEvent, sess *Session, persist bool) {
	id.mu.Lock()
	id.restored = true
	id.session = sess
	if persist && id.file != nil {
		if err := id.file.Save(sess); err != nil {
			id.logger.Printf("Failed to persist session: %v", err)
		}
	}
	listeners := make([]AuthListener, 0, len(id.listeners))
	for _, fn := range id.listeners {
		listeners = append(listeners, fn)
	}
	id.mu.Unlock()

	for _, fn := range listeners {
		fn(event, sess)
	}
}

// reload re-reads the session file and emits an event when another process
// signed in or out.
func (id *identity) reload() {
	if id.file == nil {
		return
	}
	sess, err := id.file.Load()
	if err != nil {
		id.logger.Printf("Ignoring session file: %v", err)
		return
	}
	if sess.Expired(id.now()) {
		sess = nil
	}

	id.mu.Lock()
	prev := ""
	if id.session != nil {
		prev = id.session.AccessToken
	}
	id.mu.Unlock()

	next := ""
	if sess != nil {
		next = sess.AccessToken
	}
	if prev == next {
		return
	}

	if sess == nil {
		id.logger.Printf("Session ended by another process")
		id.apply(EventSignedOut, nil, false)
		return
	}
	id.logger.Printf("Signed in as %s by another process", sess.Email)
	id.apply(EventSignedIn, sess, false)
}

// OnAuthStateChange registers fn for every sign-in and sign-out.
func (id *identity) OnAuthStateChange(fn AuthListener) *Subscription {
	id.mu.Lock()
	key := id.nextID
	id.nextID++
	id.listeners[key] = fn
	id.mu.Unlock()

	return NewSubscription(func() {
		id.mu.Lock()
		delete(id.listeners, key)
		id.mu.Unlock()
	})
}

// WatchSession follows the session file until ctx is done, turning
// sign-ins and sign-outs made by other processes into auth events.
// Returns immediately when the client has no session file.
func (id *identity) WatchSession(ctx context.Context) error {
	if id.file == nil {
		return nil
	}

	// Settle the in-memory view before the first comparison.
	id.current()

	sw, err := id.file.Watch(DefaultDebounce)
	if err != nil {
		return err
	}
	defer sw.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sw.Changes():
			if !ok {
				return nil
			}
			id.reload()
		case err, ok := <-sw.Errors():
			if !ok {
				return nil
			}
			id.logger.Printf("Session watcher error: %v", err)
		}
	}
}
