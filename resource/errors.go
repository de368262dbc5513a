package resource

import (
	"fmt"

	"github.com/gostdlib/base/context"

	"github.com/bearlytools/kanreflect/errs"
	"github.com/bearlytools/kanreflect/intern"
)

// resourceErr wraps an underlying VFS/IO failure with this module's
// errs.Type so callers across package boundaries can distinguish it
// from a caller-input mistake.
func resourceErr(ctx context.Context, err error) error {
	return errs.E(ctx, errs.CatInternal, errs.TypeResource, err)
}

// vfsErr annotates a raw VFS/IO failure with the operation and path
// that triggered it, using errs.Wrap, before lifting it into an Error.
func vfsErr(ctx context.Context, op, path string, err error) error {
	return errs.E(ctx, errs.CatInternal, errs.TypeFS, errs.Wrap(err, op+" "+path))
}

func typeNotRegisteredErr(typeName intern.Name) error {
	return fmt.Errorf("resource: struct %v is not registered", intern.String(typeName))
}

func duplicateEntryErr(typ, name intern.Name) error {
	return fmt.Errorf("resource: duplicate resource (%v, %v)", intern.String(typ), intern.String(name))
}

func fsOpenNotSeekableErr(path string) error {
	return fmt.Errorf("resource: %s does not support seeking", path)
}

func entryNotFoundErr(typ, name intern.Name) error {
	return fmt.Errorf("resource: no entry for (%v, %v)", intern.String(typ), intern.String(name))
}
