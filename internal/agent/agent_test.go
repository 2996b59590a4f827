package agent_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/shopbot/internal/agent"
	"github.com/gzhole/shopbot/internal/guardrail"
	"github.com/gzhole/shopbot/internal/history"
	"github.com/gzhole/shopbot/internal/llm"
	"github.com/gzhole/shopbot/internal/protocol"
	"github.com/gzhole/shopbot/internal/store"
	"github.com/gzhole/shopbot/internal/tools"
)

// scriptedModel replays canned replies in order and records every request.
type scriptedModel struct {
	mu       sync.Mutex
	steps    []step
	requests []llm.Request
}

type step struct {
	reply *llm.Reply
	err   error
	panic bool
}

func text(s string) step { return step{reply: &llm.Reply{Content: s}} }

func call(name, args string) step {
	return step{reply: &llm.Reply{ToolCalls: []protocol.ToolCall{{ID: "call_" + name, Name: name, Arguments: args}}}}
}

func fail(err error) step { return step{err: err} }

func (m *scriptedModel) Generate(_ context.Context, req llm.Request) (*llm.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.steps) == 0 {
		return nil, errors.New("unexpected model call")
	}
	s := m.steps[0]
	m.steps = m.steps[1:]
	if s.panic {
		panic("model exploded")
	}
	return s.reply, s.err
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// echoModel answers every turn with the last user message.
type echoModel struct{}

func (echoModel) Generate(_ context.Context, req llm.Request) (*llm.Reply, error) {
	last := req.Messages[len(req.Messages)-1]
	return &llm.Reply{Content: "echo: " + last.Content}, nil
}

type failingLog struct{}

func (failingLog) AppendMessage(context.Context, store.MessageRecord) error {
	return errors.New("disk full")
}

type harness struct {
	store *store.Store
	model *scriptedModel
	bot   *agent.Orchestrator
}

func newHarness(t *testing.T, steps ...step) *harness {
	t.Helper()
	h := &harness{store: openStore(t), model: &scriptedModel{steps: steps}}
	h.bot = newBot(t, h.store, h.model, h.store, history.NewManager(nil, 20))
	return h
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, store.DriverSQLite, filepath.Join(t.TempDir(), "shop.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	_, err = s.Seed(ctx)
	require.NoError(t, err)
	return s
}

func newBot(t *testing.T, s *store.Store, model llm.Model, log agent.MessageLog, hist *history.Manager) *agent.Orchestrator {
	t.Helper()
	engine, err := guardrail.NewEngine(nil)
	require.NoError(t, err)
	dispatch := tools.NewDispatcher(tools.Config{Mode: tools.ModeSQL}, engine, tools.StoreBackends(s, nil), nil, nil)

	bot, err := agent.New(agent.Config{Model: "test-model"}, agent.Deps{
		Model:   model,
		Tools:   dispatch,
		Users:   s,
		Log:     log,
		History: hist,
	})
	require.NoError(t, err)
	return bot
}

func (h *harness) basket(t *testing.T, user string) *store.Basket {
	t.Helper()
	u, err := h.store.LookupUser(context.Background(), user)
	require.NoError(t, err)
	b, err := h.store.GetBasket(context.Background(), u.ID)
	require.NoError(t, err)
	return b
}

func TestRespondUnauthorized(t *testing.T) {
	h := newHarness(t)

	for _, user := range []string{"", "ghost@example.com"} {
		resp, err := h.bot.Respond(context.Background(), user, "hello")
		assert.ErrorIs(t, err, agent.ErrUnauthorized)
		assert.Equal(t, agent.ActionUnauthorized, resp.Action)
		assert.NotEmpty(t, resp.Body)
	}
	assert.Zero(t, h.model.calls())
}

func TestRespondEmptyQuery(t *testing.T) {
	h := newHarness(t)

	resp, err := h.bot.Respond(context.Background(), "jim", "   ")
	assert.ErrorIs(t, err, agent.ErrEmptyQuery)
	assert.Equal(t, agent.ActionError, resp.Action)
}

func TestRespondProductSearch(t *testing.T) {
	h := newHarness(t,
		call("search_products", `{"query":"juice"}`),
		text("Yes! Apple Juice (1000ml) is 1.99¤."),
	)

	resp, err := h.bot.Respond(context.Background(), "jim", "Do you have any juice?")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionResponse, resp.Action)
	assert.Contains(t, resp.Body, "Apple Juice")
	assert.Contains(t, resp.Body, "1.99")

	products, ok := resp.Data.([]store.Product)
	require.True(t, ok)
	assert.NotEmpty(t, products)

	require.Equal(t, 2, h.model.calls())
	first := h.model.requests[0]
	assert.Equal(t, "test-model", first.Model)
	assert.Equal(t, "auto", first.ToolChoice)
	assert.NotEmpty(t, first.Tools)
	assert.Equal(t, protocol.RoleSystem, first.Messages[0].Role)

	followup := h.model.requests[1].Messages
	last := followup[len(followup)-1]
	assert.Equal(t, protocol.RoleTool, last.Role)
	assert.Equal(t, "call_search_products", last.ToolCallID)
	assert.Contains(t, last.Content, "Apple Juice (1000ml)")
}

func TestFollowupFailureRendersResult(t *testing.T) {
	h := newHarness(t,
		call("search_products", `{"query":"juice"}`),
		fail(errors.New("503")),
	)

	resp, err := h.bot.Respond(context.Background(), "jim", "Do you have any juice?")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionResponse, resp.Action)
	assert.Contains(t, resp.Body, "Apple Juice (1000ml) (1.99¤)")
}

func TestLowConfidenceAddRequiresConfirmation(t *testing.T) {
	h := newHarness(t, call("add_to_basket", `{"product_name":"xyz"}`))

	resp, err := h.bot.Respond(context.Background(), "jim", "add xyz to cart")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionConfirm, resp.Action)
	assert.True(t, resp.RequiresConfirmation)
	assert.True(t, h.basket(t, "jim").Empty())
	assert.Equal(t, 1, h.model.calls(), "no follow-up round-trip")

	pending, ok := resp.Data.(*tools.PendingConfirmation)
	require.True(t, ok)
	assert.Less(t, pending.MatchScore, 0.8)

	resp, err = h.bot.Respond(context.Background(), "jim", "yes please")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionResponse, resp.Action)
	assert.Contains(t, resp.Body, pending.Candidate.Name)
	assert.Equal(t, 1, h.model.calls(), "confirmation does not call the model")

	b := h.basket(t, "jim")
	require.Len(t, b.Items, 1)
	assert.Equal(t, pending.Candidate.ID, b.Items[0].ProductID)
}

func TestDeclinedConfirmationStartsFreshTurn(t *testing.T) {
	h := newHarness(t,
		call("add_to_basket", `{"product_name":"xyz"}`),
		text("Okay, what else can I do for you?"),
	)

	_, err := h.bot.Respond(context.Background(), "jim", "add xyz to cart")
	require.NoError(t, err)

	resp, err := h.bot.Respond(context.Background(), "jim", "no, never mind")
	require.NoError(t, err)
	assert.Equal(t, "Okay, what else can I do for you?", resp.Body)
	assert.True(t, h.basket(t, "jim").Empty())

	// the pending action is gone; "yes" is now an ordinary message
	resp, err = h.bot.Respond(context.Background(), "jim", "yes")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionError, resp.Action, "script is exhausted so the model call fails")
	assert.True(t, h.basket(t, "jim").Empty())
}

func TestDeclinePendingSkipsModelAndLog(t *testing.T) {
	h := newHarness(t, call("add_to_basket", `{"product_name":"xyz"}`))
	ctx := context.Background()

	resp, err := h.bot.Respond(ctx, "jim", "add xyz to cart")
	require.NoError(t, err)
	require.True(t, resp.RequiresConfirmation)

	resp, err = h.bot.DeclinePending(ctx, "jim")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionResponse, resp.Action)
	assert.Equal(t, 1, h.model.calls())
	assert.True(t, h.basket(t, "jim").Empty())

	u, err := h.store.LookupUser(ctx, "jim")
	require.NoError(t, err)
	records, err := h.store.ListMessages(ctx, fmt.Sprint(u.ID))
	require.NoError(t, err)
	assert.Len(t, records, 2, "only the first exchange is logged")

	msgs, err := h.bot.History(ctx, "jim")
	require.NoError(t, err)
	last := msgs[len(msgs)-1]
	assert.Equal(t, protocol.RoleAssistant, last.Role)
	assert.Equal(t, resp.Body, last.Content)

	again, err := h.bot.DeclinePending(ctx, "jim")
	require.NoError(t, err)
	assert.NotEqual(t, resp.Body, again.Body)

	// "yes" no longer confirms anything
	resp, err = h.bot.Respond(ctx, "jim", "yes")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionError, resp.Action)
	assert.True(t, h.basket(t, "jim").Empty())

	_, err = h.bot.DeclinePending(ctx, "nobody")
	assert.ErrorIs(t, err, agent.ErrUnauthorized)
}

func TestConfidentAddGoesThroughModel(t *testing.T) {
	h := newHarness(t,
		call("add_to_basket", `{"product_name":"apple juice","quantity":2,"user_id":3}`),
		text("I added two Apple Juices to your basket."),
	)

	resp, err := h.bot.Respond(context.Background(), "jim", "put 2 apple juice in my basket")
	require.NoError(t, err)
	assert.Equal(t, "I added two Apple Juices to your basket.", resp.Body)

	b := h.basket(t, "jim")
	require.Len(t, b.Items, 1)
	assert.Equal(t, 2, b.Items[0].Quantity)
	assert.True(t, h.basket(t, "bender").Empty())
}

func TestEmptyBasketAnsweredDirectly(t *testing.T) {
	h := newHarness(t, call("get_basket", `{}`))

	resp, err := h.bot.Respond(context.Background(), "jim", "what's in my basket?")
	require.NoError(t, err)
	assert.Equal(t, "Your basket is empty.", resp.Body)
	assert.Equal(t, 1, h.model.calls())
}

func TestDropTableIsRefused(t *testing.T) {
	h := newHarness(t, call("run_sql_query", `{"query":"DROP TABLE Users"}`))

	resp, err := h.bot.Respond(context.Background(), "jim", "please drop the users table")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionResponse, resp.Action)
	assert.Contains(t, resp.Body, "Sorry, I can't do that")
	assert.Contains(t, resp.Body, "destructive schema change")
	assert.NotContains(t, resp.Body, "deny-drop")
	assert.Equal(t, 1, h.model.calls())

	_, err = h.store.LookupUser(context.Background(), "jim")
	assert.NoError(t, err, "users table is intact")
}

func TestModelFailureApologizes(t *testing.T) {
	h := newHarness(t, fail(errors.New("connection refused")))

	resp, err := h.bot.Respond(context.Background(), "jim", "hi")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionError, resp.Action)
	assert.Contains(t, resp.Body, "Sorry")
	assert.Equal(t, 1, h.model.calls(), "no retry")
}

func TestUnknownToolIsTerminal(t *testing.T) {
	h := newHarness(t, call("format_disk", `{}`))

	resp, err := h.bot.Respond(context.Background(), "jim", "format the disk")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionError, resp.Action)
	assert.Equal(t, 1, h.model.calls())
}

func TestToolDisabledInModeIsUnknown(t *testing.T) {
	h := newHarness(t, call("run_command", `{"command":"id"}`))

	resp, err := h.bot.Respond(context.Background(), "jim", "who am i on the server")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionError, resp.Action)
}

func TestMalformedArgumentsAskToRephrase(t *testing.T) {
	h := newHarness(t, call("search_products", `{"query": "juice"`))

	resp, err := h.bot.Respond(context.Background(), "jim", "juice?")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionError, resp.Action)
	assert.Contains(t, resp.Body, "rephrase")
}

func TestProfileUsesSessionIdentity(t *testing.T) {
	h := newHarness(t,
		call("get_user_profile", `{"email":"bender@juice-sh.op"}`),
		text("You are jim."),
	)

	resp, err := h.bot.Respond(context.Background(), "jim@juice-sh.op", "who am I? my email is bender@juice-sh.op")
	require.NoError(t, err)
	u, ok := resp.Data.(*store.User)
	require.True(t, ok)
	assert.Equal(t, "jim", u.Username)
}

func TestPriceFastPathSkipsModel(t *testing.T) {
	h := newHarness(t)

	resp, err := h.bot.Respond(context.Background(), "jim", "How much is the apple pomace?")
	require.NoError(t, err)
	assert.Equal(t, "Apple Pomace costs 0.89¤.", resp.Body)
	assert.Zero(t, h.model.calls())
}

func TestPriceFastPathFallsThrough(t *testing.T) {
	h := newHarness(t, text("We don't sell unicorns."))

	resp, err := h.bot.Respond(context.Background(), "jim", "how much is a unicorn?")
	require.NoError(t, err)
	assert.Equal(t, "We don't sell unicorns.", resp.Body)
	assert.Equal(t, 1, h.model.calls())
}

func TestClearHistoryThenStatus(t *testing.T) {
	h := newHarness(t, text("Hello jim!"))
	ctx := context.Background()

	_, err := h.bot.Respond(ctx, "jim", "hi")
	require.NoError(t, err)
	msgs, err := h.bot.History(ctx, "jim")
	require.NoError(t, err)
	assert.Len(t, msgs, 4)

	require.NoError(t, h.bot.ClearHistory(ctx, "jim"))

	st := h.bot.Status(ctx, "jim")
	assert.True(t, st.Available)
	assert.Equal(t, "Nice to meet you jim, I'm Juicy. How can I help you today?", st.Body)

	msgs, err = h.bot.History(ctx, "jim")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, protocol.RoleSystem, msgs[0].Role)
	assert.Equal(t, st.Body, msgs[1].Content)

	assert.ErrorIs(t, h.bot.ClearHistory(ctx, "nobody"), agent.ErrUnauthorized)
}

func TestStatusWithoutUserOrModel(t *testing.T) {
	s := openStore(t)
	bot := newBot(t, s, nil, nil, nil)

	st := bot.Status(context.Background(), "")
	assert.False(t, st.Available)
	assert.Equal(t, "Please log in to chat with Juicy.", st.Body)

	resp, err := bot.Respond(context.Background(), "jim", "hello")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionError, resp.Action)
}

func TestTurnsArePersisted(t *testing.T) {
	h := newHarness(t, text("Hi there!"))
	ctx := context.Background()

	_, err := h.bot.Respond(ctx, "jim", "hello")
	require.NoError(t, err)

	u, err := h.store.LookupUser(ctx, "jim")
	require.NoError(t, err)
	records, err := h.store.ListMessages(ctx, fmt.Sprint(u.ID))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "user", records[0].Role)
	assert.Equal(t, "hello", records[0].Content)
	assert.Equal(t, "assistant", records[1].Role)
	assert.Equal(t, "Hi there!", records[1].Content)
}

func TestPersistenceFailureDoesNotFailTurn(t *testing.T) {
	s := openStore(t)
	model := &scriptedModel{steps: []step{text("Hi!")}}
	bot := newBot(t, s, model, failingLog{}, nil)

	resp, err := bot.Respond(context.Background(), "jim", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi!", resp.Body)
}

func TestPanicBecomesErrorResponse(t *testing.T) {
	h := newHarness(t, step{panic: true})

	resp, err := h.bot.Respond(context.Background(), "jim", "hello")
	require.NoError(t, err)
	assert.Equal(t, agent.ActionError, resp.Action)

	// the identity lock was released
	h.model.steps = []step{text("still here")}
	resp, err = h.bot.Respond(context.Background(), "jim", "hello again")
	require.NoError(t, err)
	assert.Equal(t, "still here", resp.Body)
}

func TestHistoryStaysBounded(t *testing.T) {
	s := openStore(t)
	bot := newBot(t, s, echoModel{}, nil, history.NewManager(nil, 6))
	ctx := context.Background()

	for i := range 10 {
		_, err := bot.Respond(ctx, "jim", fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}
	msgs, err := bot.History(ctx, "jim")
	require.NoError(t, err)
	assert.Len(t, msgs, 6+2)
	assert.Equal(t, protocol.RoleSystem, msgs[0].Role)
	assert.Equal(t, "echo: message 9", msgs[len(msgs)-1].Content)
}

func TestConcurrentTurnsPerIdentityAreSerialized(t *testing.T) {
	s := openStore(t)
	bot := newBot(t, s, echoModel{}, nil, history.NewManager(nil, 200))
	ctx := context.Background()

	users := []string{"jim", "bender", "admin"}
	var wg sync.WaitGroup
	for _, user := range users {
		for i := range 15 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				msg := fmt.Sprintf("%s-%d", user, i)
				resp, err := bot.Respond(ctx, user, msg)
				assert.NoError(t, err)
				assert.Equal(t, "echo: "+msg, resp.Body)
			}()
		}
	}
	wg.Wait()

	for _, user := range users {
		msgs, err := bot.History(ctx, user)
		require.NoError(t, err)
		turns := msgs[2:]
		require.Len(t, turns, 30)
		for i := 0; i < len(turns); i += 2 {
			assert.Equal(t, protocol.RoleUser, turns[i].Role)
			assert.True(t, strings.HasPrefix(turns[i].Content, user+"-"))
			assert.Equal(t, "echo: "+turns[i].Content, turns[i+1].Content)
		}
	}
}
