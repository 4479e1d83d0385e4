package registry

import (
	"context"
	"sync"

	"mandate.org/internal/authority"
)

// InMemory implements Service with in-process concurrency safety.
// Suitable for single-node deployments and tests; the pg store is the
// durable alternative.
type InMemory struct {
	mu     sync.RWMutex
	tokens map[authority.TokenID]authority.Token
	order  []authority.TokenID // insertion order, for deterministic validation output
	index  *authority.RevocationIndex
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an empty registry.
func NewInMemory() *InMemory {
	return &InMemory{
		tokens: make(map[authority.TokenID]authority.Token),
		index:  authority.NewRevocationIndex(),
	}
}

func (s *InMemory) Mint(ctx context.Context, params MintParams) (authority.Token, error) {
	request, err := BuildMintRequest(params)
	if err != nil {
		return authority.Token{}, err
	}
	token, err := authority.Mint(request)
	if err != nil {
		return authority.Token{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token.TokenID()]; ok {
		return authority.Token{}, ErrAlreadyExists
	}
	s.tokens[token.TokenID()] = token
	s.order = append(s.order, token.TokenID())
	return token, nil
}

func (s *InMemory) Delegate(ctx context.Context, parentID authority.TokenID, params DelegateParams) (authority.Token, error) {
	request, err := BuildDelegationRequest(params)
	if err != nil {
		return authority.Token{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.tokens[parentID]
	if !ok {
		return authority.Token{}, ErrNotFound
	}
	if _, ok := s.tokens[request.TokenID]; ok {
		return authority.Token{}, ErrAlreadyExists
	}
	child, err := authority.Delegate(parent, request, s.index)
	if err != nil {
		return authority.Token{}, err
	}
	s.tokens[child.TokenID()] = child
	s.order = append(s.order, child.TokenID())
	return child, nil
}

// Revoke records the id in the revocation index. Idempotent, and
// deliberately permissive about unknown ids: revoking a token the
// registry never stored still poisons it for every future validation.
func (s *InMemory) Revoke(ctx context.Context, tokenID authority.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Revoke(tokenID)
	return nil
}

func (s *InMemory) GetToken(ctx context.Context, tokenID authority.TokenID) (authority.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[tokenID]
	if !ok {
		return authority.Token{}, ErrNotFound
	}
	return token, nil
}

func (s *InMemory) ListTokens(ctx context.Context, subject string, limit int) ([]authority.Token, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []authority.Token
	for _, id := range s.order {
		token := s.tokens[id]
		if subject != "" && token.Subject().String() != subject {
			continue
		}
		out = append(out, token)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemory) RevokedIDs(ctx context.Context) ([]authority.TokenID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Revoked(), nil
}

func (s *InMemory) ValidateAt(ctx context.Context, evaluationTime authority.Timestamp) (authority.BoundaryValidation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return authority.ValidateAtPolicyBoundary(s.snapshot(), s.index, evaluationTime), nil
}

func (s *InMemory) RestoreAt(ctx context.Context, restoreTime authority.Timestamp) (authority.BoundaryValidation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return authority.RevalidateOnRestore(s.snapshot(), s.index, restoreTime), nil
}

// snapshot returns tokens in insertion order. Callers hold s.mu.
func (s *InMemory) snapshot() []authority.Token {
	out := make([]authority.Token, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tokens[id])
	}
	return out
}
