package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/msomdec/diabot/internal/content"
	"github.com/msomdec/diabot/internal/domain"
	"github.com/msomdec/diabot/internal/locale"
)

// Global commands, accepted in every phase.
const (
	CommandStart = "start"
	CommandMenu  = "menu"
	CommandHelp  = "help"
)

// RouterDeps are the collaborators of a Router. Messenger, Locks and Now
// are optional.
type RouterDeps struct {
	Sessions  *SessionStore
	Journal   *Journal
	Catalog   *locale.Catalog
	Library   *content.Library
	Messenger domain.Messenger
	Locks     *KeyedLock
	Now       func() time.Time
}

// Router loads a user's session, dispatches one event to the owner of the
// current phase, commits the result and delivers the reply. Events for the
// same user are handled one at a time, in arrival order.
type Router struct {
	sessions  *SessionStore
	journal   *Journal
	catalog   *locale.Catalog
	library   *content.Library
	messenger domain.Messenger
	locks     *KeyedLock
	now       func() time.Time
	modules   map[domain.Module]Module
}

// Outcome describes what handling one event did.
type Outcome struct {
	Session   *domain.Session
	Reply     *domain.Reply
	Persisted bool
	Duplicate bool
}

// NewRouter creates a Router serving the given feature modules.
func NewRouter(deps RouterDeps, modules ...Module) *Router {
	r := &Router{
		sessions:  deps.Sessions,
		journal:   deps.Journal,
		catalog:   deps.Catalog,
		library:   deps.Library,
		messenger: deps.Messenger,
		locks:     deps.Locks,
		now:       deps.Now,
		modules:   make(map[domain.Module]Module, len(modules)),
	}
	if r.locks == nil {
		r.locks = NewKeyedLock()
	}
	if r.now == nil {
		r.now = time.Now
	}
	for _, m := range modules {
		r.modules[m.ID()] = m
	}
	return r
}

// DefaultModules returns every feature module.
func DefaultModules() []Module {
	return []Module{
		GlucoseModule{},
		BreadUnitsModule{},
		LessonsModule{},
		SettingsModule{},
	}
}

// Handle processes one inbound event. The returned error is non-nil only
// when the session could not be loaded or committed; the user has then
// already been told to try again.
func (r *Router) Handle(ctx context.Context, in domain.Inbound) (*Outcome, error) {
	unlock, err := r.locks.Lock(ctx, in.UserID)
	if err != nil {
		return nil, fmt.Errorf("acquire user section: %w", err)
	}
	defer unlock()

	logger := slog.With("user_id", in.UserID, "update_id", in.UpdateID)

	sess, err := r.sessions.Load(ctx, in.UserID)
	if err != nil {
		logger.Error("failed to load session", "error", err)
		r.deliver(ctx, in, &domain.Reply{Text: r.catalog.T(domain.DefaultLanguage, "error.try_again")})
		return nil, fmt.Errorf("load session: %w", err)
	}

	if sess.SeenUpdate(in.UpdateID) {
		logger.Info("duplicate update skipped")
		r.deliver(ctx, in, nil)
		return &Outcome{Session: sess, Duplicate: true}, nil
	}

	before := sess.Clone()
	turn := &Turn{
		Session: sess,
		EventID: in.UpdateID,
		Now:     r.now(),
		catalog: r.catalog,
		library: r.library,
		journal: r.journal,
	}

	reply, err := r.dispatch(ctx, turn, in.Event)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnroutable):
		logger.Error("unroutable event dropped", "phase", before.Phase, "error", err)
		r.deliver(ctx, in, nil)
		return &Outcome{Session: before}, nil
	case errors.Is(err, domain.ErrPhaseMismatch):
		logger.Error("phase inconsistent with module", "phase", before.Phase, "error", err)
		sess, reply = r.rollback(turn, before, "error.use_menu")
	case errors.Is(err, domain.ErrUnhandledEvent):
		logger.Debug("event not handled in phase", "phase", before.Phase, "event", fmt.Sprintf("%T", in.Event))
		sess, reply = r.rollback(turn, before, "error.use_menu")
	default:
		logger.Error("event handler failed", "phase", before.Phase, "error", err)
		sess, reply = r.rollback(turn, before, "error.try_again")
	}

	persisted, err := r.commit(ctx, before, sess, turn.pending, in.UpdateID)
	if err != nil {
		logger.Error("failed to commit session", "error", err)
		r.deliver(ctx, in, &domain.Reply{Text: r.catalog.T(before.Language, "error.try_again")})
		return nil, fmt.Errorf("commit session: %w", err)
	}
	if persisted {
		logger.Debug("session committed", "from", before.Phase, "to", sess.Phase)
	}

	r.deliver(ctx, in, reply)
	return &Outcome{Session: sess, Reply: reply, Persisted: persisted}, nil
}

func (r *Router) rollback(t *Turn, before *domain.Session, key string) (*domain.Session, *domain.Reply) {
	t.discard()
	return before, &domain.Reply{Text: r.catalog.T(before.Language, key)}
}

// commit writes queued log entries, then the session, and only when
// something changed. Entries go first so a crash in between replays the
// event against the old phase, and the log deduplicates the entry.
func (r *Router) commit(ctx context.Context, before, sess *domain.Session, pending []pendingEntry, updateID int64) (bool, error) {
	if before.SameState(sess) && len(pending) == 0 {
		return false, nil
	}

	for _, p := range pending {
		var err error
		switch {
		case p.measurement != nil:
			err = r.journal.AppendMeasurement(ctx, sess.UserID, *p.measurement)
		case p.food != nil:
			err = r.journal.AppendFood(ctx, sess.UserID, *p.food)
		}
		if err != nil {
			return false, err
		}
	}

	sess.RememberUpdate(updateID)
	sess.UpdatedAt = r.now().UTC()
	if err := r.sessions.Save(ctx, sess); err != nil {
		return false, err
	}
	return true, nil
}

// deliver sends the reply and acknowledges a button tap. Failures are
// logged only; the committed transition stands.
func (r *Router) deliver(ctx context.Context, in domain.Inbound, reply *domain.Reply) {
	if r.messenger == nil {
		return
	}
	if in.CallbackID != "" {
		if err := r.messenger.AckCallback(ctx, in.CallbackID); err != nil {
			slog.Warn("failed to acknowledge callback", "user_id", in.UserID, "error", err)
		}
	}
	if reply == nil {
		return
	}
	chatID := in.ChatID
	if chatID == 0 {
		chatID = in.UserID
	}
	if err := r.messenger.Send(ctx, chatID, *reply); err != nil {
		slog.Warn("failed to send reply", "user_id", in.UserID, "error", err)
	}
}

// Acknowledge answers a button tap that is not dispatched, such as one
// carrying an unknown token, so the client stops its progress indicator.
func (r *Router) Acknowledge(ctx context.Context, callbackID string) {
	if r.messenger == nil || callbackID == "" {
		return
	}
	if err := r.messenger.AckCallback(ctx, callbackID); err != nil {
		slog.Warn("failed to acknowledge callback", "error", err)
	}
}

func (r *Router) dispatch(ctx context.Context, t *Turn, ev domain.Event) (*domain.Reply, error) {
	if cmd, ok := ev.(domain.Command); ok {
		return r.handleCommand(t, cmd)
	}

	phase := t.Session.Phase
	switch phase {
	case domain.PhaseLanguageChoice:
		return r.handleLanguageChoice(t, ev), nil
	case domain.PhaseTopMenu:
		return r.handleTopMenu(t, ev), nil
	}

	owner, ok := domain.OwnerOf(phase)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnroutable, phase)
	}
	m, ok := r.modules[owner]
	if !ok {
		return nil, fmt.Errorf("%w: module %q is not registered", domain.ErrUnroutable, owner)
	}

	switch e := ev.(type) {
	case domain.Text:
		// The top menu keyboard stays on screen, so its labels switch
		// module from any phase that is not waiting for typed input.
		if !phase.AwaitsText() {
			if target, ok := t.matchTopMenu(e.Body); ok {
				return r.enterModule(t, target)
			}
		}
		return m.HandleText(ctx, t, e.Body)
	case domain.Callback:
		return m.HandleCallback(ctx, t, e)
	}
	return nil, fmt.Errorf("%w: %T", domain.ErrUnhandledEvent, ev)
}

func (r *Router) handleCommand(t *Turn, cmd domain.Command) (*domain.Reply, error) {
	switch cmd.Name {
	case CommandStart:
		t.Session.SetPhase(domain.PhaseLanguageChoice)
		t.Session.ClearScratch()
		return t.LanguageMenu("start.choose_language"), nil
	case CommandMenu:
		return t.ToTopMenu(), nil
	case CommandHelp:
		return &domain.Reply{Text: t.T("help.text")}, nil
	}
	return nil, fmt.Errorf("%w: command /%s", domain.ErrUnhandledEvent, cmd.Name)
}

func (r *Router) handleLanguageChoice(t *Turn, ev domain.Event) *domain.Reply {
	var lang domain.Language
	switch e := ev.(type) {
	case domain.Text:
		lang, _ = locale.MatchLanguageLabel(e.Body)
	case domain.LanguageSelect:
		lang = e.Language
	}
	if !lang.Valid() {
		return t.LanguageMenu("language.unknown")
	}
	t.Session.Language = lang
	return t.ToTopMenu()
}

func (r *Router) handleTopMenu(t *Turn, ev domain.Event) *domain.Reply {
	if e, ok := ev.(domain.Text); ok {
		if target, ok := t.matchTopMenu(e.Body); ok {
			if reply, err := r.enterModule(t, target); err == nil {
				return reply
			}
		}
	}
	reply := t.TopMenu()
	if _, isBack := ev.(domain.Back); !isBack {
		reply.Text = t.T("top.unknown")
	}
	return reply
}

func (r *Router) enterModule(t *Turn, target domain.Module) (*domain.Reply, error) {
	m, ok := r.modules[target]
	if !ok {
		return nil, fmt.Errorf("%w: module %q is not registered", domain.ErrUnroutable, target)
	}
	main, _ := domain.MainPhase(target)
	t.Session.SetPhase(main)
	t.Session.ClearScratch()
	return m.ShowMain(t), nil
}
