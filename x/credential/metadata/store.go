// Package metadata stores certificate metadata documents and proof images,
// content addressed by keccak256 of their bytes.
package metadata

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrNotFound = errors.New("object not found")

// Object is a stored blob.
type Object struct {
	Digest      common.Hash
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

type Store interface {
	// Put stores data and returns its URI. Storing the same bytes twice yields the same URI.
	Put(ctx context.Context, contentType string, data []byte) (string, error)
	Get(ctx context.Context, digest common.Hash) (Object, error)
}

var _ Store = (*Memory)(nil)

type Memory struct {
	mu      sync.RWMutex
	baseURI string
	objects map[common.Hash]Object
}

func NewMemory(baseURI string) *Memory {
	return &Memory{
		baseURI: strings.TrimRight(baseURI, "/"),
		objects: make(map[common.Hash]Object),
	}
}

func (m *Memory) Put(_ context.Context, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty object")
	}
	digest := crypto.Keccak256Hash(data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[digest]; !exists {
		m.objects[digest] = Object{
			Digest:      digest,
			ContentType: contentType,
			Data:        append([]byte(nil), data...),
			CreatedAt:   time.Now().UTC(),
		}
	}
	return m.URI(digest), nil
}

func (m *Memory) Get(_ context.Context, digest common.Hash) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[digest]
	if !ok {
		return Object{}, ErrNotFound
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return obj, nil
}

// URI returns the address an object with digest is served under.
func (m *Memory) URI(digest common.Hash) string {
	return m.baseURI + "/" + strings.TrimPrefix(digest.Hex(), "0x")
}

// ParseDigest accepts a digest with or without 0x prefix.
func ParseDigest(s string) (common.Hash, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, errors.New("digest must be 32 bytes")
	}
	return common.BytesToHash(b), nil
}
