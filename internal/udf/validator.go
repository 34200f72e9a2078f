package udf

import (
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// ValidatorStashMarker precedes the stash account in a staking.validate call
// (call index 0x0712) as it appears in serialized extrinsics.
const ValidatorStashMarker = `callIndex":"0x0712","args":{"validator_stash":"`

// IsValidatorName is the name is_validator is registered under.
const IsValidatorName = "is_validator"

// IsValidator reports whether extrinsics literally contains
// ValidatorStashMarker followed by accountID. The match is byte-wise and
// case-sensitive; extrinsics is never parsed. If either input is NULL the
// result is NULL.
func IsValidator(extrinsics, accountID pgtype.Text) pgtype.Bool {
	if !extrinsics.Valid || !accountID.Valid {
		return pgtype.Bool{}
	}
	return pgtype.Bool{
		Bool:  strings.Contains(extrinsics.String, ValidatorStashMarker+accountID.String),
		Valid: true,
	}
}

var isValidatorDescriptor = Descriptor{
	Name:        IsValidatorName,
	Description: "is validator",
	Version:     "test",
	Author:      "pr0n00gler",
	Params:      []string{"extrinsics", "accountID"},
}

func isValidatorFunc(args []pgtype.Text) pgtype.Bool {
	return IsValidator(args[0], args[1])
}

// RegisterBuiltins adds every function this package ships to r.
func RegisterBuiltins(r *Registry) error {
	return r.Register(isValidatorDescriptor, isValidatorFunc)
}

// Builtins returns a fresh registry holding the shipped functions.
func Builtins() *Registry {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		panic(err)
	}
	return r
}
