// Package agent runs the storefront conversation: it keeps per-user history,
// asks the model what to do, dispatches the tool it picks and turns the
// result into a reply.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gzhole/shopbot/internal/history"
	"github.com/gzhole/shopbot/internal/llm"
	"github.com/gzhole/shopbot/internal/protocol"
	"github.com/gzhole/shopbot/internal/store"
	"github.com/gzhole/shopbot/internal/tools"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrEmptyQuery   = errors.New("empty query")
)

// Action tells the caller how to present a Response.
type Action string

const (
	ActionResponse     Action = "response"
	ActionConfirm      Action = "confirm"
	ActionError        Action = "error"
	ActionUnauthorized Action = "unauthorized"
)

type Response struct {
	Action               Action `json:"action"`
	Body                 string `json:"body"`
	Data                 any    `json:"data,omitempty"`
	RequiresConfirmation bool   `json:"requiresConfirmation,omitempty"`
}

type StatusResponse struct {
	Available bool   `json:"available"`
	Body      string `json:"body"`
}

const (
	DefaultBotName      = "Juicy"
	DefaultGreeting     = "Nice to meet you {username}, I'm {bot}. How can I help you today?"
	DefaultSystemPrompt = `You are {bot}, the shopping assistant of the OWASP Juice Shop.
You are talking to {username} ({email}). Answer questions about products,
prices and the customer's basket. Use the tools you are given; never make up
products or prices. Keep answers short and friendly.`

	defaultToolTimeout  = 20 * time.Second
	defaultStoreTimeout = 5 * time.Second
)

const (
	msgUnauthorized   = "Please log in to chat with the shop assistant."
	msgEmptyQuery     = "Please type a message."
	msgApology        = "Sorry, I'm having trouble answering right now. Please try again in a moment."
	msgRephrase       = "Sorry, I didn't quite understand that. Could you rephrase your request?"
	msgUnknownTool    = "Sorry, I can't help with that."
	msgInternal       = "Sorry, something went wrong on our side. Please try again."
	msgEmptyBasket    = "Your basket is empty."
	msgNoAccount      = "Sorry, I couldn't find your account."
	msgDeclined       = "Okay, I've left that as it is."
	msgNothingPending = "There is nothing waiting for confirmation."
)

// Identities resolves the caller's identity string to a shop user.
type Identities interface {
	LookupUser(ctx context.Context, key string) (*store.User, error)
}

// MessageLog is the durable, append-only chat log.
type MessageLog interface {
	AppendMessage(ctx context.Context, m store.MessageRecord) error
}

// Tools is the dispatcher surface the orchestrator needs.
type Tools interface {
	Declarations() []protocol.Tool
	Resolve(name string) (*tools.Spec, bool)
	Invoke(ctx context.Context, req tools.Request, caller tools.Identity) tools.Result
}

type Config struct {
	BotName      string
	SystemPrompt string
	Greeting     string
	Model        string
	ModelTimeout time.Duration
	ToolTimeout  time.Duration
	StoreTimeout time.Duration
}

// Deps are the collaborators of an Orchestrator. Model and Log may be nil;
// without a model the assistant reports itself unavailable.
type Deps struct {
	Model   llm.Model
	Tools   Tools
	Users   Identities
	Log     MessageLog
	History *history.Manager
	Logger  *slog.Logger
}

type Orchestrator struct {
	cfg     Config
	model   llm.Model
	tools   Tools
	users   Identities
	log     MessageLog
	history *history.Manager
	logger  *slog.Logger
	locks   *keyLock

	pendingMu sync.Mutex
	pending   map[string]*tools.PendingConfirmation
}

func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Tools == nil {
		return nil, errors.New("agent: tools are required")
	}
	if deps.Users == nil {
		return nil, errors.New("agent: identities are required")
	}
	if cfg.BotName == "" {
		cfg.BotName = DefaultBotName
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = llm.DefaultTimeout
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = defaultToolTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if deps.History == nil {
		deps.History = history.NewManager(nil, 0)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		model:   deps.Model,
		tools:   deps.Tools,
		users:   deps.Users,
		log:     deps.Log,
		history: deps.History,
		logger:  deps.Logger,
		locks:   newKeyLock(),
		pending: make(map[string]*tools.PendingConfirmation),
	}, nil
}

// Available reports whether a model is configured.
func (o *Orchestrator) Available() bool { return o.model != nil }

// identify resolves userID. Lookup failures of any kind are treated as an
// unknown caller.
func (o *Orchestrator) identify(ctx context.Context, userID string) (*store.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUnauthorized
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()

	u, err := o.users.LookupUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			o.logger.Warn("identity lookup failed", "user", userID, "error", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return u, nil
}

func identityOf(u *store.User) tools.Identity {
	return tools.Identity{UserID: u.ID, Username: u.Username, Email: u.Email}
}

func (o *Orchestrator) expand(template string, u *store.User) string {
	name := u.Username
	if name == "" {
		name = u.Email
	}
	return strings.NewReplacer(
		"{bot}", o.cfg.BotName,
		"{username}", name,
		"{email}", u.Email,
	).Replace(template)
}

func (o *Orchestrator) greeting(u *store.User) string {
	return o.expand(o.cfg.Greeting, u)
}

// ensureSession creates the session with its pinned system prompt and
// greeting.
func (o *Orchestrator) ensureSession(u *store.User) error {
	_, err := o.history.Ensure(identityOf(u).Key(),
		protocol.NewMessage(protocol.RoleSystem, o.expand(o.cfg.SystemPrompt, u)),
		protocol.NewMessage(protocol.RoleAssistant, o.greeting(u)),
	)
	return err
}

// Status reports availability and, for a known user, the greeting.
func (o *Orchestrator) Status(ctx context.Context, userID string) StatusResponse {
	ctx = context.WithoutCancel(ctx)
	st := StatusResponse{Available: o.Available()}

	u, err := o.identify(ctx, userID)
	if err != nil {
		st.Body = fmt.Sprintf("Please log in to chat with %s.", o.cfg.BotName)
		return st
	}

	key := identityOf(u).Key()
	unlock := o.locks.Lock(key)
	defer unlock()

	if err := o.ensureSession(u); err != nil {
		o.logger.Error("failed to create session", "user", key, "error", err)
	}
	st.Body = o.greeting(u)
	return st
}

// ClearHistory resets the user's session to its pinned prefix and forgets
// any pending confirmation.
func (o *Orchestrator) ClearHistory(ctx context.Context, userID string) error {
	ctx = context.WithoutCancel(ctx)
	u, err := o.identify(ctx, userID)
	if err != nil {
		return err
	}

	key := identityOf(u).Key()
	unlock := o.locks.Lock(key)
	defer unlock()

	o.takePending(key)
	if err := o.history.Reset(key); err != nil && !errors.Is(err, history.ErrSessionNotFound) {
		return err
	}
	return nil
}

// DeclinePending drops the user's pending confirmation without starting a
// turn. The reply is recorded in the session so the model sees the action
// was not taken; nothing is written to the durable log.
func (o *Orchestrator) DeclinePending(ctx context.Context, userID string) (Response, error) {
	u, err := o.identify(context.WithoutCancel(ctx), userID)
	if err != nil {
		return Response{Action: ActionUnauthorized, Body: msgUnauthorized}, ErrUnauthorized
	}

	key := identityOf(u).Key()
	unlock := o.locks.Lock(key)
	defer unlock()

	if o.takePending(key) == nil {
		return Response{Action: ActionResponse, Body: msgNothingPending}, nil
	}
	if err := o.history.Append(key, protocol.NewMessage(protocol.RoleAssistant, msgDeclined)); err != nil {
		o.logger.Error("failed to append history", "user", key, "error", err)
	}
	return Response{Action: ActionResponse, Body: msgDeclined}, nil
}

// History returns a copy of the user's in-memory session.
func (o *Orchestrator) History(ctx context.Context, userID string) ([]protocol.Message, error) {
	u, err := o.identify(context.WithoutCancel(ctx), userID)
	if err != nil {
		return nil, err
	}
	msgs, err := o.history.Get(identityOf(u).Key())
	if errors.Is(err, history.ErrSessionNotFound) {
		return nil, nil
	}
	return msgs, err
}

func (o *Orchestrator) setPending(key string, p *tools.PendingConfirmation) {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	o.pending[key] = p
}

func (o *Orchestrator) takePending(key string) *tools.PendingConfirmation {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	p := o.pending[key]
	delete(o.pending, key)
	return p
}

// persist writes the exchange to the durable log. Failures are logged only.
func (o *Orchestrator) persist(ctx context.Context, key, query, answer string) {
	if o.log == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.StoreTimeout)
	defer cancel()

	for _, m := range []store.MessageRecord{
		{UserID: key, Role: string(protocol.RoleUser), Content: query},
		{UserID: key, Role: string(protocol.RoleAssistant), Content: answer},
	} {
		if err := o.log.AppendMessage(ctx, m); err != nil {
			o.logger.Warn("failed to persist chat message", "user", key, "role", m.Role, "error", err)
			return
		}
	}
}
