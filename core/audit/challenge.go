package audit

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/pyropy/dsn/core/model"
	"github.com/pyropy/dsn/lib/merkle"
)

const ChallengeSize = 32

// GenerateChallenges draws n random challenges for shard and builds the audit
// tree over sha256(sha256(challenge || shard)).
func GenerateChallenges(shard []byte, n int) (model.AuditTree, error) {
	if n <= 0 {
		return model.AuditTree{}, fmt.Errorf("challenge count must be positive, got %d", n)
	}

	challenges := make([]string, 0, n)
	leaves := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		challenge := make([]byte, ChallengeSize)
		if _, err := rand.Read(challenge); err != nil {
			return model.AuditTree{}, err
		}

		challenges = append(challenges, hex.EncodeToString(challenge))
		leaves = append(leaves, merkle.Hash(merkle.Hash(challenge, shard)))
	}

	tree, err := merkle.New(leaves)
	if err != nil {
		return model.AuditTree{}, err
	}

	encoded := make([]string, 0, len(tree.Leaves()))
	for _, leaf := range tree.Leaves() {
		encoded = append(encoded, hex.EncodeToString(leaf))
	}

	return model.AuditTree{
		Root:       hex.EncodeToString(tree.Root()),
		Depth:      tree.Depth(),
		Challenges: challenges,
		Leaves:     encoded,
	}, nil
}

// BuildTree restores an audit tree from its hex encoded leaves.
func BuildTree(leaves []string) (*merkle.Tree, error) {
	decoded := make([][]byte, 0, len(leaves))
	for _, leaf := range leaves {
		b, err := hex.DecodeString(leaf)
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, b)
	}

	return merkle.New(decoded)
}

// Respond answers challenge for shard with the response and its branch in tree.
func Respond(tree *merkle.Tree, shard, challenge []byte) (model.Proof, error) {
	response := merkle.Hash(challenge, shard)

	index := tree.IndexOf(merkle.Hash(response))
	if index < 0 {
		return model.Proof{}, ErrChallengeNotInTree
	}

	branch, err := tree.Proof(index)
	if err != nil {
		return model.Proof{}, err
	}

	return model.Proof{
		Response: response,
		Index:    index,
		Branch:   branch,
	}, nil
}

// Check validates proof against the root, depth and leaf index carried by item.
func Check(item model.QueueItem, proof model.Proof) (bool, error) {
	if len(proof.Response) != sha256.Size {
		return false, fmt.Errorf("%w: response must be %d bytes", ErrMalformedProof, sha256.Size)
	}

	root, err := hex.DecodeString(item.Root)
	if err != nil {
		return false, fmt.Errorf("%w: root: %v", ErrMalformedItem, err)
	}

	ok, err := merkle.Verify(root, item.Depth, merkle.Hash(proof.Response), proof.Index, proof.Branch)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}

	return ok && proof.Index == item.Index, nil
}
