package patch

import (
	kbinary "github.com/bearlytools/kanreflect/internal/binary"
)

// nodeHeaderSize is sizeof(offset uint16) + sizeof(size uint16), the
// Go rendering of original_source's compiled_patch_node_t header.
const nodeHeaderSize = 4

// nodeAlign is the byte alignment the next node's header is padded to
// after a node's payload, mirroring the C type's natural
// _Alignof(compiled_patch_node_t) of 2, rounded up to keep headers
// 4-byte aligned for cheap reads.
const nodeAlign = 4

// Node is one patch node as returned by Iterate: an offset into the
// target struct, its size, and the bytes to write there.
type Node struct {
	Offset uint32
	Size   uint32
	Bytes  []byte
}

func alignUp(n, align int) int {
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}

// appendNode writes one node's header and payload into blob, padding
// the result up to nodeAlign so the next node's header starts aligned.
func appendNode(blob []byte, offset uint16, bytes []byte) []byte {
	header := make([]byte, nodeHeaderSize)
	kbinary.Put(header[0:2], offset)
	kbinary.Put(header[2:4], uint16(len(bytes)))
	blob = append(blob, header...)
	blob = append(blob, bytes...)

	padded := alignUp(len(blob), nodeAlign)
	if padded > len(blob) {
		blob = append(blob, make([]byte, padded-len(blob))...)
	}
	return blob
}

// decodeNodes walks blob and reconstructs the Node slice it encodes.
// Nothing in this module calls it: Iterate and Validate read the Node
// slice built once at Build time and cached on Compiled.
func decodeNodes(blob []byte, count int) []Node {
	nodes := make([]Node, 0, count)
	pos := 0
	for pos+nodeHeaderSize <= len(blob) && len(nodes) < count {
		offset := kbinary.Get[uint16](blob[pos : pos+2])
		size := kbinary.Get[uint16](blob[pos+2 : pos+4])
		start := pos + nodeHeaderSize
		end := start + int(size)
		nodes = append(nodes, Node{Offset: uint32(offset), Size: uint32(size), Bytes: blob[start:end]})
		pos = alignUp(end, nodeAlign)
	}
	return nodes
}
