package udf

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alwaysTrue([]pgtype.Text) pgtype.Bool { return pgtype.Bool{Bool: true, Valid: true} }

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Descriptor{Name: "always_true"}, alwaysTrue))

	err := r.Register(Descriptor{Name: "always_true"}, alwaysTrue)
	assert.True(t, errors.Is(err, ErrDuplicate), "got %v", err)

	for _, name := range []string{"", "1abc", "Has-Dash", "IsValidator", "a b"} {
		err := r.Register(Descriptor{Name: name}, alwaysTrue)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}

	assert.Error(t, r.Register(Descriptor{Name: "nil_func"}, nil))
}

func TestRegistryLookup(t *testing.T) {
	r := Builtins()

	d, err := r.Lookup("is_validator")
	require.NoError(t, err)
	assert.Equal(t, "is validator", d.Description)
	assert.Equal(t, []string{"extrinsics", "accountID"}, d.Params)

	d, err = r.Lookup("IS_VALIDATOR")
	require.NoError(t, err)
	assert.Equal(t, IsValidatorName, d.Name)

	_, err = r.Lookup("is_nominator")
	assert.ErrorIs(t, err, ErrFunctionNotFound)
}

func TestRegistryList(t *testing.T) {
	r := Builtins()
	require.NoError(t, r.Register(Descriptor{Name: "always_true"}, alwaysTrue))
	require.NoError(t, r.Register(Descriptor{Name: "zeta"}, alwaysTrue))

	var names []string
	for _, d := range r.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"always_true", IsValidatorName, "zeta"}, names)
}

func TestRegistryDescriptorCopied(t *testing.T) {
	r := NewRegistry()
	params := []string{"a"}
	require.NoError(t, r.Register(Descriptor{Name: "f", Params: params}, alwaysTrue))
	params[0] = "mutated"

	d, err := r.Lookup("f")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, d.Params)
}

func TestRegistryInvoke(t *testing.T) {
	r := Builtins()

	got, err := r.Invoke(IsValidatorName, []pgtype.Text{Text(ValidatorStashMarker + stash), Text(stash)})
	require.NoError(t, err)
	assert.Equal(t, pgtype.Bool{Bool: true, Valid: true}, got)

	got, err = r.Invoke(IsValidatorName, []pgtype.Text{{}, Text(stash)})
	require.NoError(t, err)
	assert.False(t, got.Valid)

	_, err = r.Invoke(IsValidatorName, []pgtype.Text{Text("x")})
	assert.ErrorIs(t, err, ErrArity)

	_, err = r.Invoke("missing", nil)
	assert.ErrorIs(t, err, ErrFunctionNotFound)
}

func TestRegisterBuiltinsTwice(t *testing.T) {
	r := Builtins()
	assert.ErrorIs(t, RegisterBuiltins(r), ErrDuplicate)
}
