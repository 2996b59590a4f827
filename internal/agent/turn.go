package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"

	"github.com/gzhole/shopbot/internal/llm"
	"github.com/gzhole/shopbot/internal/protocol"
	"github.com/gzhole/shopbot/internal/store"
	"github.com/gzhole/shopbot/internal/tools"
)

type turnState int

const (
	stateIdle turnState = iota
	stateAwaitingConfirmation
	stateAwaitingModel
	stateToolRequested
	stateAwaitingFollowup
	stateFinal
)

func (s turnState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAwaitingConfirmation:
		return "awaiting-confirmation"
	case stateAwaitingModel:
		return "awaiting-model"
	case stateToolRequested:
		return "tool-requested"
	case stateAwaitingFollowup:
		return "awaiting-followup"
	case stateFinal:
		return "final"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// turn carries one inbound message through the state machine.
type turn struct {
	o      *Orchestrator
	id     string
	caller tools.Identity
	key    string
	query  string

	state   turnState
	pending *tools.PendingConfirmation
	reply   *llm.Reply
	call    protocol.ToolCall
	spec    *tools.Spec
	result  tools.Result
	resp    Response
}

// Respond handles one user message and returns the reply. The caller's
// context only supplies values; a turn in flight is never cancelled by it.
// Only ErrUnauthorized and ErrEmptyQuery are returned as errors.
func (o *Orchestrator) Respond(ctx context.Context, userID, query string) (resp Response, err error) {
	ctx = context.WithoutCancel(ctx)

	u, err := o.identify(ctx, userID)
	if err != nil {
		return Response{Action: ActionUnauthorized, Body: msgUnauthorized}, ErrUnauthorized
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return Response{Action: ActionError, Body: msgEmptyQuery}, ErrEmptyQuery
	}

	caller := identityOf(u)
	t := &turn{o: o, id: uuid.NewString(), caller: caller, key: caller.Key(), query: query}

	unlock := o.locks.Lock(t.key)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("turn panicked", "turn", t.id, "user", t.key, "state", t.state,
				"panic", r, "stack", string(debug.Stack()))
			resp, err = Response{Action: ActionError, Body: msgInternal}, nil
		}
	}()

	if err := o.ensureSession(u); err != nil {
		o.logger.Error("failed to create session", "turn", t.id, "user", t.key, "error", err)
		return Response{Action: ActionError, Body: msgInternal}, nil
	}

	resp = t.run(ctx)
	o.persist(ctx, t.key, query, resp.Body)
	o.logger.Info("turn completed", "turn", t.id, "user", t.key, "action", resp.Action, "tool", t.call.Name)
	return resp, nil
}

func (t *turn) run(ctx context.Context) Response {
	t.state = stateIdle
	if p := t.o.takePending(t.key); p != nil {
		t.pending = p
		t.state = stateAwaitingConfirmation
	}

	for t.state != stateFinal {
		t.o.logger.Debug("turn state", "turn", t.id, "state", t.state)
		switch t.state {
		case stateAwaitingConfirmation:
			t.confirm(ctx)
		case stateIdle:
			t.start(ctx)
		case stateAwaitingModel:
			t.askModel(ctx)
		case stateToolRequested:
			t.runTool(ctx)
		case stateAwaitingFollowup:
			t.followUp(ctx)
		}
	}
	return t.resp
}

func (t *turn) appendHistory(msgs ...protocol.Message) {
	if err := t.o.history.Append(t.key, msgs...); err != nil {
		t.o.logger.Error("failed to append history", "turn", t.id, "user", t.key, "error", err)
	}
}

// finish ends the turn. The body is recorded as the assistant's answer
// unless the model's own reply already carries it.
func (t *turn) finish(resp Response, record bool) {
	if record {
		t.appendHistory(protocol.NewMessage(protocol.RoleAssistant, resp.Body))
	}
	t.resp = resp
	t.state = stateFinal
}

// confirm handles the reply to a pending confirmation. Anything but an
// affirmative answer drops the pending action and starts a fresh turn.
func (t *turn) confirm(ctx context.Context) {
	if !isAffirmative(t.query) {
		t.state = stateIdle
		return
	}
	t.appendHistory(protocol.NewMessage(protocol.RoleUser, t.query))

	t.spec, _ = t.o.tools.Resolve(t.pending.CandidateAction.Name)
	t.call = protocol.ToolCall{Name: t.pending.CandidateAction.Name}
	t.result = t.invoke(ctx, t.pending.CandidateAction)
	if resp, ok := t.immediate(); ok {
		t.finish(resp, true)
		return
	}
	if body, ok := renderResult(t.spec, t.result); ok {
		t.finish(Response{Action: ActionResponse, Body: body, Data: t.result.Data}, true)
		return
	}
	t.finish(Response{Action: ActionResponse, Body: "Done.", Data: t.result.Data}, true)
}

func (t *turn) start(ctx context.Context) {
	t.appendHistory(protocol.NewMessage(protocol.RoleUser, t.query))
	if resp, ok := t.fastPath(ctx); ok {
		t.finish(resp, true)
		return
	}
	t.state = stateAwaitingModel
}

func (t *turn) generate(ctx context.Context) (*llm.Reply, error) {
	if t.o.model == nil {
		return nil, llm.ErrNotConfigured
	}
	msgs, err := t.o.history.Get(t.key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, t.o.cfg.ModelTimeout)
	defer cancel()

	return t.o.model.Generate(ctx, llm.Request{
		Model:      t.o.cfg.Model,
		Messages:   msgs,
		Tools:      t.o.tools.Declarations(),
		ToolChoice: "auto",
	})
}

func (t *turn) askModel(ctx context.Context) {
	reply, err := t.generate(ctx)
	if err != nil {
		t.o.logger.Error("model call failed", "turn", t.id, "user", t.key, "error", err)
		t.finish(Response{Action: ActionError, Body: msgApology}, true)
		return
	}
	t.reply = reply

	if len(reply.ToolCalls) > 0 {
		// Only the first call is acted on.
		t.call = reply.ToolCalls[0]
		t.appendHistory(protocol.Message{
			Role:      protocol.RoleAssistant,
			Content:   reply.Content,
			ToolCalls: []protocol.ToolCall{t.call},
		})
		t.state = stateToolRequested
		return
	}

	body := strings.TrimSpace(reply.Content)
	if body == "" {
		t.finish(Response{Action: ActionError, Body: msgApology}, true)
		return
	}
	t.appendHistory(protocol.NewMessage(protocol.RoleAssistant, body))
	t.finish(Response{Action: ActionResponse, Body: body}, false)
}

func (t *turn) runTool(ctx context.Context) {
	spec, ok := t.o.tools.Resolve(t.call.Name)
	if !ok {
		t.o.logger.Warn("model requested unknown tool", "turn", t.id, "user", t.key, "tool", t.call.Name)
		t.appendHistory(protocol.NewToolMessage(t.call, `{"error":"unknown tool"}`))
		t.finish(Response{Action: ActionError, Body: msgUnknownTool}, true)
		return
	}
	t.spec = spec

	req, err := tools.ParseCall(t.call)
	if err != nil {
		t.o.logger.Warn("malformed tool arguments", "turn", t.id, "tool", t.call.Name, "error", err)
		t.appendHistory(protocol.NewToolMessage(t.call, `{"error":"malformed arguments"}`))
		t.finish(Response{Action: ActionError, Body: msgRephrase}, true)
		return
	}

	t.result = t.invoke(ctx, req)
	t.appendHistory(protocol.NewToolMessage(t.call, toolContent(t.result)))

	if resp, ok := t.immediate(); ok {
		t.finish(resp, true)
		return
	}
	t.state = stateAwaitingFollowup
}

func (t *turn) invoke(ctx context.Context, req tools.Request) tools.Result {
	ctx, cancel := context.WithTimeout(ctx, t.o.cfg.ToolTimeout)
	defer cancel()
	return t.o.tools.Invoke(ctx, req, t.caller)
}

// immediate returns a response for results that need no interpretation
// by the model.
func (t *turn) immediate() (Response, bool) {
	res := t.result
	if p := res.Pending; p != nil {
		t.o.setPending(t.key, p)
		return Response{
			Action:               ActionConfirm,
			Body:                 confirmationPrompt(p),
			Data:                 p,
			RequiresConfirmation: true,
		}, true
	}

	switch res.Kind {
	case tools.KindDenied:
		return Response{Action: ActionResponse, Body: refusal(res.Category)}, true
	case tools.KindNotFound:
		return Response{Action: ActionResponse, Body: t.notFound(res)}, true
	case tools.KindUpstream:
		return Response{Action: ActionError, Body: msgApology}, true
	case tools.KindInternal:
		return Response{Action: ActionError, Body: msgInternal}, true
	case tools.KindNone:
		if b, ok := res.Data.(*tools.BasketSnapshot); ok && b.Empty() {
			return Response{Action: ActionResponse, Body: msgEmptyBasket, Data: b}, true
		}
	}
	return Response{}, false
}

func (t *turn) notFound(res tools.Result) string {
	if t.spec != nil && t.spec.ID == tools.GetUserProfile {
		return msgNoAccount
	}
	if res.Error == "basket is empty" {
		return msgEmptyBasket
	}
	return "Sorry, " + res.Error + "."
}

// followUp asks the model to phrase the tool result. When that fails, a
// recognized result is rendered directly.
func (t *turn) followUp(ctx context.Context) {
	reply, err := t.generate(ctx)
	var body string
	if err == nil {
		body = strings.TrimSpace(reply.Content)
	} else {
		t.o.logger.Error("follow-up model call failed", "turn", t.id, "user", t.key, "error", err)
	}

	if body == "" {
		if rendered, ok := renderResult(t.spec, t.result); ok {
			t.finish(Response{Action: ActionResponse, Body: rendered, Data: t.result.Data}, true)
			return
		}
		t.finish(Response{Action: ActionError, Body: msgApology}, true)
		return
	}
	t.finish(Response{Action: ActionResponse, Body: body, Data: t.result.Data}, true)
}

// fastPath answers direct price questions from the catalog without the
// model. Any miss falls through to the model.
func (t *turn) fastPath(ctx context.Context) (Response, bool) {
	term, ok := priceQuery(t.query)
	if !ok {
		return Response{}, false
	}
	res := t.invoke(ctx, tools.Request{
		Name:      tools.SearchProducts.String(),
		Arguments: map[string]any{"query": term},
	})
	products, ok := res.Data.([]store.Product)
	if res.Failed() || !ok || len(products) == 0 {
		return Response{}, false
	}
	t.call = protocol.ToolCall{Name: tools.SearchProducts.String()}
	return Response{Action: ActionResponse, Body: renderPrices(products), Data: products}, true
}
