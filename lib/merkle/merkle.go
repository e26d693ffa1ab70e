package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
)

var (
	ErrNoLeaves        = errors.New("merkle tree requires at least one leaf")
	ErrIndexOutOfRange = errors.New("leaf index out of range")
	ErrBranchLength    = errors.New("branch length does not match tree depth")
	ErrInvalidNodeSize = errors.New("merkle node must be a sha256 digest")
)

// EmptyLeaf pads the leaf level up to a power of two.
var EmptyLeaf = Hash(nil)

// Hash returns sha256 of the concatenated parts.
func Hash(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}

	return h.Sum(nil)
}

// Tree keeps every level of a binary hash tree, leaves first.
type Tree struct {
	levels [][][]byte
}

func New(leaves [][]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}

	width := 1
	for width < len(leaves) {
		width <<= 1
	}

	level := make([][]byte, width)
	for i := range level {
		if i < len(leaves) {
			if len(leaves[i]) != sha256.Size {
				return nil, ErrInvalidNodeSize
			}
			level[i] = leaves[i]
			continue
		}
		level[i] = EmptyLeaf
	}

	levels := [][][]byte{level}
	for len(level) > 1 {
		next := make([][]byte, len(level)/2)
		for i := range next {
			next[i] = Hash(level[2*i], level[2*i+1])
		}
		levels = append(levels, next)
		level = next
	}

	return &Tree{levels: levels}, nil
}

func (t *Tree) Root() []byte {
	return t.levels[len(t.levels)-1][0]
}

// Depth is the number of sibling hashes in every branch.
func (t *Tree) Depth() int {
	return len(t.levels) - 1
}

// Leaves returns the padded leaf level.
func (t *Tree) Leaves() [][]byte {
	return t.levels[0]
}

// IndexOf returns the position of leaf or -1.
func (t *Tree) IndexOf(leaf []byte) int {
	for i, l := range t.levels[0] {
		if bytes.Equal(l, leaf) {
			return i
		}
	}

	return -1
}

// Proof returns the sibling hashes from the leaf at index up to the root.
func (t *Tree) Proof(index int) ([][]byte, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return nil, ErrIndexOutOfRange
	}

	branch := make([][]byte, 0, t.Depth())
	for _, level := range t.levels[:len(t.levels)-1] {
		branch = append(branch, level[index^1])
		index >>= 1
	}

	return branch, nil
}

// Verify folds branch into leaf and compares the result with root.
func Verify(root []byte, depth int, leaf []byte, index int, branch [][]byte) (bool, error) {
	if len(branch) != depth {
		return false, ErrBranchLength
	}

	if index < 0 || index >= 1<<depth {
		return false, ErrIndexOutOfRange
	}

	if len(leaf) != sha256.Size {
		return false, ErrInvalidNodeSize
	}

	node := leaf
	for _, sibling := range branch {
		if len(sibling) != sha256.Size {
			return false, ErrInvalidNodeSize
		}

		if index&1 == 0 {
			node = Hash(node, sibling)
		} else {
			node = Hash(sibling, node)
		}
		index >>= 1
	}

	return bytes.Equal(node, root), nil
}
