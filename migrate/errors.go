package migrate

import (
	"fmt"

	"github.com/bearlytools/kanreflect/intern"
)

func enumNotRegisteredErr(name intern.Name) error {
	return errNotRegistered("enum", name)
}

func errNotRegistered(kind string, name intern.Name) error {
	return fmt.Errorf("migrate: %s %v has no migrator", kind, name)
}
