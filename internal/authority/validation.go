package authority

// InvalidToken records a token stripped during boundary validation,
// with the first reason that disqualified it.
type InvalidToken struct {
	TokenID TokenID       `json:"token_id"`
	Reason  InvalidReason `json:"reason"`
}

// BoundaryValidation partitions a token collection into the tokens that
// remain effective at an evaluation instant and the tokens stripped,
// preserving relative order within each bucket.
type BoundaryValidation struct {
	Effective []Token
	Invalid   []InvalidToken
}

// ValidateAtPolicyBoundary classifies each token at the evaluation
// instant. Reason precedence mirrors delegation's fail-closed ordering:
// revoked first, then expired, then pre-issuance. Invalidity is data,
// not an error: a batch containing stale tokens is a routine outcome.
func ValidateAtPolicyBoundary(tokens []Token, index *RevocationIndex, evaluationTime Timestamp) BoundaryValidation {
	var out BoundaryValidation
	for _, token := range tokens {
		switch {
		case index.IsRevoked(token.TokenID()):
			out.Invalid = append(out.Invalid, InvalidToken{TokenID: token.TokenID(), Reason: ReasonRevoked})
		case token.IsExpiredAt(evaluationTime):
			out.Invalid = append(out.Invalid, InvalidToken{TokenID: token.TokenID(), Reason: ReasonExpired})
		case token.IsPreIssuanceAt(evaluationTime):
			out.Invalid = append(out.Invalid, InvalidToken{TokenID: token.TokenID(), Reason: ReasonPreIssuance})
		default:
			out.Effective = append(out.Effective, token)
		}
	}
	return out
}

// RevalidateOnRestore re-runs full boundary validation over a restored
// token collection. It is a distinct named operation so that call sites
// and audit trails make explicit that a persisted token set is never
// trusted on the strength of a previously computed validity bit.
func RevalidateOnRestore(tokens []Token, index *RevocationIndex, restoreTime Timestamp) BoundaryValidation {
	return ValidateAtPolicyBoundary(tokens, index, restoreTime)
}
