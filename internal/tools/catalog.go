// Package tools declares the storefront tools the model may call and
// dispatches calls to the shop, database and shell collaborators.
package tools

import (
	"fmt"
	"strings"

	"github.com/gzhole/shopbot/internal/protocol"
)

// ID identifies a statically declared tool.
type ID int

const (
	SearchProducts ID = iota + 1
	GetUserProfile
	GetBasket
	AddToBasket
	RemoveFromBasket
	GenerateCoupon
	RunSQLQuery
	RunCommand
)

// Mode gates which tools are advertised and callable.
type Mode string

const (
	ModeBasic      Mode = "basic"
	ModeSQL        Mode = "sql"
	ModePrivileged Mode = "privileged"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBasic:
		return ModeBasic, nil
	case ModeSQL:
		return ModeSQL, nil
	case ModePrivileged:
		return ModePrivileged, nil
	}
	return "", fmt.Errorf("unknown mode %q (want basic, sql or privileged)", s)
}

func (m Mode) rank() int {
	switch m {
	case ModeSQL:
		return 1
	case ModePrivileged:
		return 2
	default:
		return 0
	}
}

// ParamType is the JSON schema primitive of a tool parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
)

type Param struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
}

// Spec is the static declaration of one tool.
type Spec struct {
	ID          ID
	Name        string
	Description string
	Params      []Param
	MinMode     Mode
	// UserScoped tools act on the caller's own records; identity arguments
	// from the model are replaced with the session identity.
	UserScoped bool
}

var specs = []Spec{
	{
		ID:          SearchProducts,
		Name:        "search_products",
		Description: "Search the product catalog by name or description. Use it for any question about products or prices.",
		Params: []Param{
			{Name: "query", Type: TypeString, Description: "Search term, e.g. 'apple juice'", Required: true},
		},
		MinMode: ModeBasic,
	},
	{
		ID:          GetUserProfile,
		Name:        "get_user_profile",
		Description: "Get the profile of the logged-in customer.",
		MinMode:     ModeBasic,
		UserScoped:  true,
	},
	{
		ID:          GetBasket,
		Name:        "get_basket",
		Description: "Get the contents of the logged-in customer's basket.",
		MinMode:     ModeBasic,
		UserScoped:  true,
	},
	{
		ID:          AddToBasket,
		Name:        "add_to_basket",
		Description: "Add a product to the logged-in customer's basket.",
		Params: []Param{
			{Name: "product_name", Type: TypeString, Description: "Name of the product to add", Required: true},
			{Name: "quantity", Type: TypeInteger, Description: "Number of units, defaults to 1"},
		},
		MinMode:    ModeBasic,
		UserScoped: true,
	},
	{
		ID:          RemoveFromBasket,
		Name:        "remove_from_basket",
		Description: "Remove a product from the logged-in customer's basket.",
		Params: []Param{
			{Name: "product_name", Type: TypeString, Description: "Name of the product to remove", Required: true},
		},
		MinMode:    ModeBasic,
		UserScoped: true,
	},
	{
		ID:          GenerateCoupon,
		Name:        "generate_coupon",
		Description: "Generate a discount coupon for the logged-in customer.",
		Params: []Param{
			{Name: "discount", Type: TypeInteger, Description: "Discount in percent, 1 to 40, defaults to 10"},
		},
		MinMode:    ModeBasic,
		UserScoped: true,
	},
	{
		ID:          RunSQLQuery,
		Name:        "run_sql_query",
		Description: "Run a SQL statement against the shop database and return the rows.",
		Params: []Param{
			{Name: "query", Type: TypeString, Description: "The SQL statement", Required: true},
		},
		MinMode: ModeSQL,
	},
	{
		ID:          RunCommand,
		Name:        "run_command",
		Description: "Run a shell command on the shop server and return its output.",
		Params: []Param{
			{Name: "command", Type: TypeString, Description: "The shell command", Required: true},
		},
		MinMode: ModePrivileged,
	},
}

var byName = func() map[string]*Spec {
	m := make(map[string]*Spec, len(specs))
	for i := range specs {
		m[specs[i].Name] = &specs[i]
	}
	return m
}()

// Lookup resolves a tool name to its declaration.
func Lookup(name string) (*Spec, bool) {
	s, ok := byName[name]
	return s, ok
}

func (id ID) String() string {
	for i := range specs {
		if specs[i].ID == id {
			return specs[i].Name
		}
	}
	return fmt.Sprintf("tool(%d)", int(id))
}

// EnabledIn reports whether the tool may be used in mode m.
func (s *Spec) EnabledIn(m Mode) bool {
	return m.rank() >= s.MinMode.rank()
}

// Declaration renders the tool in the function-calling wire shape.
func (s *Spec) Declaration() protocol.Tool {
	props := make(map[string]any, len(s.Params))
	required := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		props[p.Name] = map[string]any{
			"type":        string(p.Type),
			"description": p.Description,
		}
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return protocol.Tool{
		Name:        s.Name,
		Description: s.Description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": props,
			"required":   required,
		},
	}
}

// Declarations returns every tool enabled in mode m, in catalog order.
func Declarations(m Mode) []protocol.Tool {
	var out []protocol.Tool
	for i := range specs {
		if specs[i].EnabledIn(m) {
			out = append(out, specs[i].Declaration())
		}
	}
	return out
}
