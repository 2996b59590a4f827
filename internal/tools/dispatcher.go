package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gzhole/shopbot/internal/guardrail"
	"github.com/gzhole/shopbot/internal/logger"
	"github.com/gzhole/shopbot/internal/protocol"
	"github.com/gzhole/shopbot/internal/sandbox"
	"github.com/gzhole/shopbot/internal/store"
)

const (
	DefaultSQLRowLimit    = 50
	DefaultSQLTimeout     = 5 * time.Second
	DefaultCommandTimeout = sandbox.DefaultTimeout
)

type Catalog interface {
	ListProducts(ctx context.Context) ([]store.Product, error)
	SearchProducts(ctx context.Context, query string) ([]store.Product, error)
}

type Baskets interface {
	GetBasket(ctx context.Context, userID int64) (*store.Basket, error)
	AddItem(ctx context.Context, userID, productID int64, quantity int) error
	RemoveItem(ctx context.Context, userID, productID int64) error
}

type Users interface {
	GetUser(ctx context.Context, id int64) (*store.User, error)
}

type Coupons interface {
	SaveCoupon(ctx context.Context, c store.Coupon) error
}

type QueryRunner interface {
	Query(ctx context.Context, stmt string, maxRows int) (*store.QueryResult, error)
	Exec(ctx context.Context, stmt string) (*store.QueryResult, error)
}

type CommandRunner interface {
	Run(ctx context.Context, command string) (sandbox.Result, error)
}

type Auditor interface {
	Log(event logger.AuditEvent) error
}

// Backends groups the collaborators the dispatcher calls. *store.Store
// satisfies every interface except Commands.
type Backends struct {
	Catalog  Catalog
	Baskets  Baskets
	Users    Users
	Coupons  Coupons
	Queries  QueryRunner
	Commands CommandRunner
}

// StoreBackends wires every data collaborator to one store.
func StoreBackends(s *store.Store, commands CommandRunner) Backends {
	return Backends{Catalog: s, Baskets: s, Users: s, Coupons: s, Queries: s, Commands: commands}
}

type Config struct {
	Mode           Mode
	SQLRowLimit    int
	SQLTimeout     time.Duration
	CommandTimeout time.Duration
}

type Dispatcher struct {
	cfg     Config
	backend Backends
	guard   *guardrail.Engine
	audit   Auditor
	log     *slog.Logger
	now     func() time.Time
}

// NewDispatcher builds a dispatcher. audit and log may be nil.
func NewDispatcher(cfg Config, guard *guardrail.Engine, backend Backends, audit Auditor, log *slog.Logger) *Dispatcher {
	if cfg.Mode == "" {
		cfg.Mode = ModeBasic
	}
	if cfg.SQLRowLimit <= 0 {
		cfg.SQLRowLimit = DefaultSQLRowLimit
	}
	if cfg.SQLTimeout <= 0 {
		cfg.SQLTimeout = DefaultSQLTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{cfg: cfg, backend: backend, guard: guard, audit: audit, log: log, now: time.Now}
}

func (d *Dispatcher) Mode() Mode { return d.cfg.Mode }

// Declarations returns the tools advertised to the model.
func (d *Dispatcher) Declarations() []protocol.Tool {
	return Declarations(d.cfg.Mode)
}

// Resolve returns the declaration for name when it is enabled in this mode.
func (d *Dispatcher) Resolve(name string) (*Spec, bool) {
	s, ok := Lookup(name)
	if !ok || !s.EnabledIn(d.cfg.Mode) {
		return nil, false
	}
	return s, true
}

// Invoke runs one tool call on behalf of caller. It never returns a Go
// error; failures are reported in the Result.
func (d *Dispatcher) Invoke(ctx context.Context, req Request, caller Identity) Result {
	spec, ok := d.Resolve(req.Name)
	if !ok {
		return failure(KindValidation, fmt.Sprintf("%v: %s", ErrUnknownTool, req.Name))
	}

	args := req.Arguments
	if args == nil {
		args = map[string]any{}
	}
	if spec.UserScoped {
		args = d.bindIdentity(spec, args, caller)
	}
	if err := spec.validate(args); err != nil {
		return failure(KindValidation, err.Error())
	}

	switch spec.ID {
	case SearchProducts:
		return d.searchProducts(ctx, stringArg(args, "query"))
	case GetUserProfile:
		return d.userProfile(ctx, caller)
	case GetBasket:
		return d.basket(ctx, caller)
	case AddToBasket:
		return d.addToBasket(ctx, caller, stringArg(args, "product_name"), intArg(args, "quantity", 1))
	case RemoveFromBasket:
		return d.removeFromBasket(ctx, caller, stringArg(args, "product_name"))
	case GenerateCoupon:
		return d.generateCoupon(ctx, caller, intArg(args, "discount", defaultDiscount))
	case RunSQLQuery:
		return d.runSQL(ctx, caller, stringArg(args, "query"))
	case RunCommand:
		return d.runCommand(ctx, caller, stringArg(args, "command"))
	default:
		return failure(KindInternal, fmt.Sprintf("tool %s has no handler", spec.Name))
	}
}

// bindIdentity drops identity arguments supplied by the model. The session
// identity is the only one a user-scoped tool acts on.
func (d *Dispatcher) bindIdentity(spec *Spec, args map[string]any, caller Identity) map[string]any {
	clean, removed := stripIdentity(args)
	if len(removed) > 0 {
		d.log.Warn("dropped identity arguments from tool call",
			"tool", spec.Name, "user", caller.Key(), "keys", removed)
	}
	return clean
}

func (d *Dispatcher) record(caller Identity, spec ID, domain guardrail.Domain, statement string, v guardrail.Verdict, execErr error) {
	if d.audit == nil {
		return
	}
	event := logger.AuditEvent{
		Timestamp: d.now().UTC().Format(time.RFC3339),
		User:      caller.Key(),
		Tool:      spec.String(),
		Domain:    string(domain),
		Statement: statement,
		Decision:  v.Decision(),
		RuleID:    v.RuleID,
		Category:  v.Category,
		Mode:      string(d.cfg.Mode),
	}
	if execErr != nil {
		event.Error = execErr.Error()
	}
	if err := d.audit.Log(event); err != nil {
		d.log.Warn("failed to write audit event", "error", err)
	}
}
