// Package errs provides the error categories and types shared across the
// reflection registry, the patch/migration engine and the resource
// provider. It wraps github.com/gostdlib/base/errors the same way
// languages/go/errors did for the claw runtime, adding the domain-specific
// Types this module needs instead of storage Types it doesn't.
package errs

import (
	"github.com/gostdlib/base/context"
	"github.com/gostdlib/base/errors"
	pkgerrors "github.com/pkg/errors"
)

//go:generate stringer -type=Type -linecomment

// Category represents the category of the error.
type Category = errors.Category

const (
	// CatUser represents an error caused by bad caller input (a malformed
	// patch, a path that doesn't resolve, a duplicate registration).
	CatUser Category = Category(1)
	// CatInternal represents an internal invariant violation.
	CatInternal Category = Category(2)
)

// Type represents the type of the error.
type Type uint16

const (
	TypeUnknown Type = Type(0) // Unknown

	// TypeRegistryConflict covers duplicate enum/struct/function registration.
	TypeRegistryConflict Type = Type(1) // RegistryConflict
	// TypeValidation covers archetype/size/offset invariant violations.
	TypeValidation Type = Type(2) // Validation
	// TypeLocator covers field-path resolution failures.
	TypeLocator Type = Type(3) // Locator
	// TypePatchBuild covers overlapping chunks or builder overflow.
	TypePatchBuild Type = Type(4) // PatchBuild
	// TypeMigration covers seed/migrator construction and execution failures.
	TypeMigration Type = Type(5) // Migration
	// TypeResource covers resource provider scan/load/VFS failures.
	TypeResource Type = Type(6) // Resource
	// TypeFS mirrors the teacher's file-system error Type.
	TypeFS Type = Type(7) // FS
)

var typeNames = map[Type]string{
	TypeUnknown:           "Unknown",
	TypeRegistryConflict:  "RegistryConflict",
	TypeValidation:        "Validation",
	TypeLocator:           "Locator",
	TypePatchBuild:        "PatchBuild",
	TypeMigration:         "Migration",
	TypeResource:          "Resource",
	TypeFS:                "FS",
}

// String implements fmt.Stringer.
func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "Unknown"
}

// Error is the error type for this module. It implements
// github.com/gostdlib/base/errors.E.
type Error = errors.Error

// EOption is an optional argument for E().
type EOption = errors.EOption

// E creates a new Error with the given parameters, adjusting the call
// frame by one since E() itself is a wrapper around errors.E().
func E(ctx context.Context, c Category, t Type, msg error, options ...EOption) Error {
	opts := make([]EOption, 0, len(options)+1)
	opts = append(opts, errors.WithCallNum(2))
	opts = append(opts, options...)
	return errors.E(ctx, c, errors.Type(t), msg, opts...)
}

// Wrap annotates err with msg using github.com/pkg/errors, the way the
// teacher's languages/go/errors package annotated lower-level I/O
// failures (VFS opens, index reads) before lifting them into an Error
// via E. Returns nil if err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, msg)
}

// Cause unwraps err to the deepest github.com/pkg/errors-annotated
// cause, for callers that need to inspect the original failure past
// any Wrap annotations (e.g. checking for os.ErrNotExist).
func Cause(err error) error {
	return pkgerrors.Cause(err)
}
