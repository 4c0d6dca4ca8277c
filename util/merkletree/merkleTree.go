// Copyright 2021-2024, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

// Package merkletree commits to the set of active transfers of a channel.
//
// Leaves are the keccak256 hashes of the ABI-encoded core transfer states,
// ordered by transfer id. Interior nodes hash their two children in ascending
// byte order, so a proof is a plain list of siblings with no position bits.
package merkletree

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/offchainlabs/vector-reader/chaintypes"
)

var (
	ErrTransferNotInTree = errors.New("transfer not in tree")
	ErrDuplicateTransfer = errors.New("duplicate transfer id")
)

// OddNodePolicy decides what happens to the last node of a level with an odd
// number of nodes.
type OddNodePolicy uint8

const (
	// CarryOdd promotes the unpaired node to the next level unchanged.
	CarryOdd OddNodePolicy = iota
	// DuplicateOdd pairs the unpaired node with itself.
	DuplicateOdd
)

func (p OddNodePolicy) String() string {
	switch p {
	case CarryOdd:
		return "carry"
	case DuplicateOdd:
		return "duplicate"
	default:
		return fmt.Sprintf("OddNodePolicy(%d)", uint8(p))
	}
}

type Option func(*TransferTree)

func WithOddNodePolicy(policy OddNodePolicy) Option {
	return func(t *TransferTree) {
		t.policy = policy
	}
}

// TransferTree is immutable once built.
type TransferTree struct {
	policy OddNodePolicy
	ids    []common.Hash
	index  map[common.Hash]int
	layers [][]common.Hash
}

type leaf struct {
	id   common.Hash
	hash common.Hash
}

func NewTransferTree(transfers []*chaintypes.CoreTransferState, opts ...Option) (*TransferTree, error) {
	tree := &TransferTree{
		index: make(map[common.Hash]int, len(transfers)),
	}
	for _, opt := range opts {
		opt(tree)
	}
	leaves := make([]leaf, 0, len(transfers))
	seen := make(map[common.Hash]struct{}, len(transfers))
	for i, transfer := range transfers {
		if transfer == nil {
			return nil, fmt.Errorf("transfer %d is nil", i)
		}
		if _, ok := seen[transfer.TransferID]; ok {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateTransfer, transfer.TransferID)
		}
		seen[transfer.TransferID] = struct{}{}
		hash, err := chaintypes.HashCoreTransferState(transfer)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf{id: transfer.TransferID, hash: hash})
	}
	sort.Slice(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i].id[:], leaves[j].id[:]) < 0
	})

	level := make([]common.Hash, len(leaves))
	tree.ids = make([]common.Hash, len(leaves))
	for i, l := range leaves {
		level[i] = l.hash
		tree.ids[i] = l.id
		tree.index[l.id] = i
	}
	tree.layers = append(tree.layers, level)
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			switch {
			case i+1 < len(level):
				next = append(next, HashPair(level[i], level[i+1]))
			case tree.policy == DuplicateOdd:
				next = append(next, HashPair(level[i], level[i]))
			default:
				next = append(next, level[i])
			}
		}
		tree.layers = append(tree.layers, next)
		level = next
	}
	return tree, nil
}

// Root of an empty tree is the zero hash.
func (t *TransferTree) Root() common.Hash {
	top := t.layers[len(t.layers)-1]
	if len(top) == 0 {
		return common.Hash{}
	}
	return top[0]
}

func (t *TransferTree) Size() int {
	return len(t.ids)
}

func (t *TransferTree) Policy() OddNodePolicy {
	return t.policy
}

// TransferIDs returns the ids in leaf order.
func (t *TransferTree) TransferIDs() []common.Hash {
	return append([]common.Hash(nil), t.ids...)
}

func (t *TransferTree) Contains(transferID common.Hash) bool {
	_, ok := t.index[transferID]
	return ok
}

type TransferProof struct {
	TransferID common.Hash
	RootHash   common.Hash
	LeafHash   common.Hash
	Siblings   []common.Hash
}

func (t *TransferTree) Prove(transferID common.Hash) (*TransferProof, error) {
	idx, ok := t.index[transferID]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrTransferNotInTree, transferID)
	}
	proof := &TransferProof{
		TransferID: transferID,
		RootHash:   t.Root(),
		LeafHash:   t.layers[0][idx],
	}
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := idx ^ 1
		if sibling < len(layer) {
			proof.Siblings = append(proof.Siblings, layer[sibling])
		} else if t.policy == DuplicateOdd {
			proof.Siblings = append(proof.Siblings, layer[idx])
		}
		idx /= 2
	}
	return proof, nil
}

func (proof *TransferProof) IsCorrect() bool {
	return VerifyProof(proof.Siblings, proof.LeafHash, proof.RootHash)
}

// VerifyProof folds the siblings into leaf with HashPair and compares the
// result against root. It is the check an on-chain sorted-pair verifier runs.
func VerifyProof(siblings []common.Hash, leaf common.Hash, root common.Hash) bool {
	hash := leaf
	for _, sibling := range siblings {
		hash = HashPair(hash, sibling)
	}
	return hash == root
}

// HashPair hashes two nodes smallest first.
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

// Root builds a tree with the default policy and returns its root.
func Root(transfers []*chaintypes.CoreTransferState) (common.Hash, error) {
	tree, err := NewTransferTree(transfers)
	if err != nil {
		return common.Hash{}, err
	}
	return tree.Root(), nil
}
