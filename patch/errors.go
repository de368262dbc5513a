package patch

import (
	"fmt"

	"github.com/bearlytools/kanreflect/intern"
)

func chunkRangeErr(offset, size uint32) error {
	return fmt.Errorf("patch: chunk offset %d / size %d exceeds 16-bit range", offset, size)
}

func chunkLenErr(size uint32, gotLen int) error {
	return fmt.Errorf("patch: chunk declares size %d but got %d bytes", size, gotLen)
}

func overlapErr(prevOffset, prevSize uint16, nextOffset uint16) error {
	return fmt.Errorf("patch: overlapping chunks: [%d,%d) and offset %d", prevOffset, prevOffset+prevSize, nextOffset)
}

func badTargetErr(a any) error {
	return fmt.Errorf("patch: node targets field with unpatchable archetype %v", a)
}

func unknownStructErr(name intern.Name) error {
	return fmt.Errorf("patch: struct %v is not registered", name)
}
