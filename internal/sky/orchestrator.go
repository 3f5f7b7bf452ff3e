package sky

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/skysync/internal/device"
	"github.com/nerrad567/skysync/internal/pushchannel"
	"github.com/nerrad567/skysync/internal/router"
	"github.com/nerrad567/skysync/internal/session"
	"github.com/nerrad567/skysync/internal/skyapi"
)

const (
	// DefaultChannelPrefix is prepended to the mailbox id to name the push
	// channel.
	DefaultChannelPrefix = "PlatformChannel#"

	// snapshotConcurrency caps parallel snapshot fetches.
	snapshotConcurrency = 4
)

// ErrNoPanels is returned by Connect when the account exposes none of the
// selected panels.
var ErrNoPanels = errors.New("sky: no panels to mirror")

// API is the request/response surface the orchestrator needs.
// *skyapi.Client satisfies it.
type API interface {
	session.Authenticator
	device.Commander
	SetTokenSource(ts skyapi.TokenSource)
	AuthorizedUser(ctx context.Context) (*skyapi.AuthorizedUser, error)
	SystemSnapshot(ctx context.Context, panelID string) (map[string]any, error)
}

// Attacher observes panels once they are built. *events.Fanout satisfies it.
type Attacher interface {
	Attach(p *device.Panel)
}

// Logger is the logging interface used by the orchestrator and handed to
// the components it builds.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config selects what to mirror.
type Config struct {
	Credentials session.Credentials

	// Panels restricts the mirror to these ids. Empty means all.
	Panels []string

	// ChannelPrefix defaults to DefaultChannelPrefix.
	ChannelPrefix string

	// ConnectTimeout bounds the push subscription step of Connect when the
	// caller's context has no deadline. Zero means no extra bound.
	ConnectTimeout time.Duration
}

// Deps holds the orchestrator's collaborators.
type Deps struct {
	Config    Config
	API       API
	Transport pushchannel.TransportFactory

	// Kinds overrides the device kind table. Optional.
	Kinds *device.KindTable

	// Attacher is handed every panel once, right after it is built. Optional.
	Attacher Attacher

	Logger Logger
}

// Orchestrator owns one account mirror.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Connect, Disconnect and Close are serialised against each other.
type Orchestrator struct {
	cfg      Config
	api      API
	session  *session.Session
	push     *pushchannel.Channel
	kinds    *device.KindTable
	attacher Attacher
	logger   Logger

	// lifecycle serialises Connect/Disconnect/Close.
	lifecycle sync.Mutex

	mu      sync.RWMutex
	panels  map[string]*device.Panel
	order   []string
	router  *router.Router
	channel string
}

// New creates an orchestrator. Nothing touches the network until Connect.
//
// Returns:
//   - error: if the API or the transport factory is missing
func New(deps Deps) (*Orchestrator, error) {
	if deps.API == nil {
		return nil, fmt.Errorf("api client is required")
	}
	if deps.Transport == nil {
		return nil, fmt.Errorf("push transport factory is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	cfg := deps.Config
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = DefaultChannelPrefix
	}

	sess := session.New(cfg.Credentials, deps.API)
	sess.SetLogger(logger)
	deps.API.SetTokenSource(sess)

	push := pushchannel.New(deps.Transport)
	push.SetLogger(logger)

	return &Orchestrator{
		cfg:      cfg,
		api:      deps.API,
		session:  sess,
		push:     push,
		kinds:    deps.Kinds,
		attacher: deps.Attacher,
		logger:   logger,
		panels:   make(map[string]*device.Panel),
	}, nil
}

// SetOnConnected registers the hook fired each time the push channel
// connects.
func (o *Orchestrator) SetOnConnected(fn func()) { o.push.SetOnConnected(fn) }

// SetOnDisconnected registers the hook fired once per connected session
// when the push channel goes away.
func (o *Orchestrator) SetOnDisconnected(fn func()) { o.push.SetOnDisconnected(fn) }

// Session returns the account session.
func (o *Orchestrator) Session() *session.Session { return o.session }

// Connect logs in, loads every selected panel and subscribes to the push
// channel. It returns once the subscription is connected.
//
// Connect on a connected orchestrator is a no-op.
//
// Returns:
//   - *session.AuthError when the credentials are rejected
//   - skyapi.ErrUpstream (wrapped) when a request call fails
//   - ErrNoPanels when nothing is left after the panel filter
//   - pushchannel errors, or ctx.Err(), from the subscription step
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	if o.push.State() == pushchannel.Connected {
		return nil
	}

	if err := o.session.Login(ctx); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	user, err := o.api.AuthorizedUser(ctx)
	if err != nil {
		return fmt.Errorf("fetching authorized user: %w", err)
	}
	if user.MailboxID == "" {
		return fmt.Errorf("fetching authorized user: %w: no mailbox id", skyapi.ErrMalformedResponse)
	}

	systems := o.selectSystems(user.Systems)
	if len(systems) == 0 {
		return ErrNoPanels
	}

	snapshots, err := o.fetchSnapshots(ctx, systems)
	if err != nil {
		return err
	}
	if err := o.loadPanels(systems, snapshots); err != nil {
		return err
	}

	channel := o.cfg.ChannelPrefix + user.MailboxID
	o.mu.Lock()
	o.channel = channel
	r := o.router
	o.mu.Unlock()

	subCtx := ctx
	if _, ok := ctx.Deadline(); !ok && o.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		subCtx, cancel = context.WithTimeout(ctx, o.cfg.ConnectTimeout)
		defer cancel()
	}

	if err := o.push.Connect(subCtx, channel, r.Route); err != nil {
		return fmt.Errorf("subscribing to push channel: %w", err)
	}

	o.logger.Info("account mirror connected", "panels", len(systems))
	return nil
}

func (o *Orchestrator) selectSystems(all []skyapi.SystemDescriptor) []skyapi.SystemDescriptor {
	if len(o.cfg.Panels) == 0 {
		return all
	}
	var out []skyapi.SystemDescriptor
	for _, s := range all {
		if slices.Contains(o.cfg.Panels, s.PanelID.String()) {
			out = append(out, s)
		}
	}
	for _, id := range o.cfg.Panels {
		if !slices.ContainsFunc(out, func(s skyapi.SystemDescriptor) bool { return s.PanelID.String() == id }) {
			o.logger.Warn("configured panel not visible to this account", "panel_id", id)
		}
	}
	return out
}

// fetchSnapshots loads every system concurrently. The first failure cancels
// the rest.
func (o *Orchestrator) fetchSnapshots(ctx context.Context, systems []skyapi.SystemDescriptor) ([]map[string]any, error) {
	snapshots := make([]map[string]any, len(systems))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(snapshotConcurrency)
	for i, s := range systems {
		id := s.PanelID.String()
		g.Go(func() error {
			snap, err := o.api.SystemSnapshot(gctx, id)
			if err != nil {
				return fmt.Errorf("fetching snapshot for panel %s: %w", id, err)
			}
			snapshots[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

// loadPanels builds panels seen for the first time and refreshes the rest
// in place. The panel set and the router are fixed by the first load.
func (o *Orchestrator) loadPanels(systems []skyapi.SystemDescriptor, snapshots []map[string]any) error {
	o.mu.Lock()
	first := o.router == nil
	o.mu.Unlock()

	if !first {
		for i, s := range systems {
			p, err := o.Panel(s.PanelID.String())
			if err != nil {
				o.logger.Warn("ignoring panel that appeared after the first connect", "panel_id", s.PanelID)
				continue
			}
			if err := p.ApplySnapshotRefresh(snapshots[i]); err != nil {
				return fmt.Errorf("refreshing panel %s: %w", p.ID(), err)
			}
		}
		return nil
	}

	built := make([]*device.Panel, 0, len(systems))
	for i, s := range systems {
		p, err := device.BuildPanel(s.Raw, snapshots[i], device.Env{
			Kinds:     o.kinds,
			Commander: o.api,
			Logger:    o.logger,
		})
		if err != nil {
			return fmt.Errorf("building panel %s: %w", s.PanelID, err)
		}
		built = append(built, p)
	}

	// Hooks go on before the router exists so no diff is missed.
	if o.attacher != nil {
		for _, p := range built {
			o.attacher.Attach(p)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range built {
		o.panels[p.ID()] = p
		o.order = append(o.order, p.ID())
	}
	o.router = router.New(built, o.logger)
	return nil
}

// Panel returns a tracked panel.
func (o *Orchestrator) Panel(id string) (*device.Panel, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.panels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrPanelNotFound, id)
	}
	return p, nil
}

// Panels returns the tracked panels in account order.
func (o *Orchestrator) Panels() []*device.Panel {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*device.Panel, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.panels[id])
	}
	return out
}

// RefreshPanel re-fetches one panel's snapshot and applies it in place.
func (o *Orchestrator) RefreshPanel(ctx context.Context, id string) error {
	p, err := o.Panel(id)
	if err != nil {
		return err
	}
	snap, err := o.api.SystemSnapshot(ctx, id)
	if err != nil {
		return fmt.Errorf("fetching snapshot for panel %s: %w", id, err)
	}
	if err := p.ApplySnapshotRefresh(snap); err != nil {
		return fmt.Errorf("refreshing panel %s: %w", id, err)
	}
	o.logger.Debug("panel refreshed", "panel_id", id)
	return nil
}

// Status is a point-in-time view of the mirror.
type Status struct {
	State   string       `json:"state"`
	Channel string       `json:"channel,omitempty"`
	Panels  int          `json:"panels"`
	Session bool         `json:"session_valid"`
	Routing router.Stats `json:"routing"`
}

// Status reports the push state, panel count and routing counters.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	st := Status{
		State:   o.push.State().String(),
		Channel: o.push.Name(),
		Panels:  len(o.order),
		Session: o.session.Valid(),
	}
	if o.router != nil {
		st.Routing = o.router.Stats()
	}
	o.mu.RUnlock()
	return st
}

// Disconnect unsubscribes from the push channel. Panels stay readable and
// a later Connect refreshes them. Safe to call when not connected.
func (o *Orchestrator) Disconnect(ctx context.Context) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()
	return o.push.Disconnect(ctx)
}

// Close disconnects and releases the push transport. The orchestrator
// cannot connect again afterwards.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	err := o.push.Disconnect(ctx)
	return errors.Join(err, o.push.Close())
}
