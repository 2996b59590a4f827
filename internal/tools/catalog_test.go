package tools_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gzhole/shopbot/internal/tools"
)

func toolNames(m tools.Mode) []string {
	var names []string
	for _, d := range tools.Declarations(m) {
		names = append(names, d.Name)
	}
	return names
}

func TestDeclarationsByMode(t *testing.T) {
	basic := toolNames(tools.ModeBasic)
	assert.Equal(t, []string{
		"search_products", "get_user_profile", "get_basket",
		"add_to_basket", "remove_from_basket", "generate_coupon",
	}, basic)

	sql := toolNames(tools.ModeSQL)
	assert.Contains(t, sql, "run_sql_query")
	assert.NotContains(t, sql, "run_command")

	priv := toolNames(tools.ModePrivileged)
	assert.Contains(t, priv, "run_sql_query")
	assert.Contains(t, priv, "run_command")
}

func TestDeclarationShape(t *testing.T) {
	spec, ok := tools.Lookup("add_to_basket")
	require.True(t, ok)
	assert.Equal(t, tools.AddToBasket, spec.ID)

	decl := spec.Declaration()
	assert.Equal(t, "add_to_basket", decl.Name)
	assert.NotEmpty(t, decl.Description)
	assert.Equal(t, "object", decl.Parameters["type"])
	assert.Equal(t, []string{"product_name"}, decl.Parameters["required"])

	props := decl.Parameters["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "integer", "description": "Number of units, defaults to 1"}, props["quantity"])

	empty, ok := tools.Lookup("get_basket")
	require.True(t, ok)
	assert.Equal(t, []string{}, empty.Declaration().Parameters["required"])
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]tools.Mode{
		"":            tools.ModeBasic,
		"basic":       tools.ModeBasic,
		"SQL":         tools.ModeSQL,
		" privileged": tools.ModePrivileged,
	} {
		got, err := tools.ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := tools.ParseMode("root")
	assert.Error(t, err)
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "run_command", tools.RunCommand.String())
	assert.Equal(t, "tool(99)", tools.ID(99).String())
}
