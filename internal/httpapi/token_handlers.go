package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mandate.org/internal/audit"
	"mandate.org/internal/auth"
	"mandate.org/internal/authority"
	"mandate.org/internal/ids"
	"mandate.org/internal/obs"
	"mandate.org/internal/registry"
	"mandate.org/internal/stream"
)

// roleIssuer marks principals allowed to mint root tokens. Everyone
// else is untrusted and mint fails closed in the engine.
const roleIssuer = "issuer"

type mintTokenRequest struct {
	TokenID    string   `json:"token_id"`
	Issuer     string   `json:"issuer"`
	Subject    string   `json:"subject"`
	Capability string   `json:"capability"`
	Scope      []string `json:"scope"`
	IssuedAt   uint64   `json:"issued_at"`
	ExpiresAt  uint64   `json:"expires_at"`
}

type delegateTokenRequest struct {
	TokenID     string   `json:"token_id"`
	DelegatedBy string   `json:"delegated_by"`
	Subject     string   `json:"subject"`
	Scope       []string `json:"scope"`
	DelegatedAt uint64   `json:"delegated_at"`
	ExpiresAt   uint64   `json:"expires_at"`
}

type validateRequest struct {
	EvaluationTime uint64 `json:"evaluation_time"`
}

type restoreRequest struct {
	RestoreTime uint64 `json:"restore_time"`
}

type validationResponse struct {
	At        uint64                   `json:"at"`
	Effective []authority.Record       `json:"effective"`
	Invalid   []authority.InvalidToken `json:"invalid"`
}

type listTokensResponse struct {
	Items []authority.Record `json:"items"`
}

func (a *API) handleTokensCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.mintToken(w, r)
	case http.MethodGet:
		a.listTokens(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleTokenResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/tokens/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/delegate") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/delegate"), "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "token not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.delegateToken(w, r, id)
		return
	}

	if strings.HasSuffix(path, "/revoke") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/revoke"), "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "token not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.revokeToken(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getToken(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) mintToken(w http.ResponseWriter, r *http.Request) {
	var req mintTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	tokenID := strings.TrimSpace(req.TokenID)
	if tokenID == "" {
		tokenID = ids.New()
	}

	trust := authority.Untrusted
	if auth.HasRole(r.Context(), roleIssuer) {
		trust = authority.HostTrusted
	}

	token, err := a.registry.Mint(r.Context(), registry.MintParams{
		TokenID:     tokenID,
		Issuer:      req.Issuer,
		IssuerTrust: trust,
		Subject:     req.Subject,
		Capability:  req.Capability,
		Scope:       req.Scope,
		IssuedAt:    req.IssuedAt,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		obs.CountMint("rejected")
		a.auditToken(r, "authority.token.mint_rejected", tokenID, map[string]any{
			"issuer": req.Issuer,
			"error":  err.Error(),
		})
		handleTokenError(w, r, err)
		return
	}

	obs.CountMint("ok")
	a.auditToken(r, "authority.token.mint", tokenID, map[string]any{
		"issuer":     req.Issuer,
		"subject":    req.Subject,
		"capability": req.Capability,
	})
	a.publish(stream.Event{
		Type:    "minted",
		TokenID: string(token.TokenID()),
		Subject: token.Subject().String(),
	})

	w.Header().Set("Location", "/v1/tokens/"+string(token.TokenID()))
	writeJSON(w, http.StatusCreated, token.Record())
}

func (a *API) delegateToken(w http.ResponseWriter, r *http.Request, parentID string) {
	var req delegateTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	tokenID := strings.TrimSpace(req.TokenID)
	if tokenID == "" {
		tokenID = ids.New()
	}

	child, err := a.registry.Delegate(r.Context(), authority.TokenID(parentID), registry.DelegateParams{
		TokenID:     tokenID,
		DelegatedBy: req.DelegatedBy,
		Subject:     req.Subject,
		Scope:       req.Scope,
		DelegatedAt: req.DelegatedAt,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		obs.CountDelegation("rejected")
		a.auditToken(r, "authority.token.delegate_rejected", tokenID, map[string]any{
			"parent_token_id": parentID,
			"error":           err.Error(),
		})
		handleTokenError(w, r, err)
		return
	}

	obs.CountDelegation("ok")
	a.auditToken(r, "authority.token.delegate", tokenID, map[string]any{
		"parent_token_id": parentID,
		"subject":         req.Subject,
	})
	a.publish(stream.Event{
		Type:          "delegated",
		TokenID:       string(child.TokenID()),
		ParentTokenID: parentID,
		Subject:       child.Subject().String(),
	})

	w.Header().Set("Location", "/v1/tokens/"+string(child.TokenID()))
	writeJSON(w, http.StatusCreated, child.Record())
}

func (a *API) revokeToken(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.registry.Revoke(r.Context(), authority.TokenID(id)); err != nil {
		handleTokenError(w, r, err)
		return
	}

	obs.CountRevocation()
	a.auditToken(r, "authority.token.revoke", id, nil)
	a.publish(stream.Event{Type: "revoked", TokenID: id})

	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": id,
		"revoked":  true,
	})
}

func (a *API) getToken(w http.ResponseWriter, r *http.Request, id string) {
	token, err := a.registry.GetToken(r.Context(), authority.TokenID(id))
	if err != nil {
		handleTokenError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token.Record())
}

func (a *API) listTokens(w http.ResponseWriter, r *http.Request) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	subject := strings.TrimSpace(r.URL.Query().Get("subject"))

	tokens, err := a.registry.ListTokens(r.Context(), subject, limit)
	if err != nil {
		handleTokenError(w, r, err)
		return
	}
	items := make([]authority.Record, 0, len(tokens))
	for _, token := range tokens {
		items = append(items, token.Record())
	}
	writeJSON(w, http.StatusOK, listTokensResponse{Items: items})
}

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.runValidation(w, r, "validated", req.EvaluationTime, func(at authority.Timestamp) (authority.BoundaryValidation, error) {
		return a.registry.ValidateAt(r.Context(), at)
	})
}

func (a *API) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req restoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.runValidation(w, r, "restored", req.RestoreTime, func(at authority.Timestamp) (authority.BoundaryValidation, error) {
		return a.registry.RestoreAt(r.Context(), at)
	})
}

// runValidation executes a boundary or restore pass. Invalid tokens are
// reported, not errored: a collection full of expired tokens is still a
// successful validation.
func (a *API) runValidation(w http.ResponseWriter, r *http.Request, eventType string, at uint64, run func(authority.Timestamp) (authority.BoundaryValidation, error)) {
	result, err := run(authority.Timestamp(at))
	if err != nil {
		handleTokenError(w, r, err)
		return
	}

	strips := make(map[string]int)
	for _, invalid := range result.Invalid {
		strips[invalid.Reason.String()]++
	}
	obs.CountBoundaryCheck(strips)
	a.auditToken(r, "authority.collection."+eventType, "", map[string]any{
		"at":        at,
		"effective": len(result.Effective),
		"invalid":   len(result.Invalid),
	})
	a.publish(stream.Event{Type: eventType})

	effective := make([]authority.Record, 0, len(result.Effective))
	for _, token := range result.Effective {
		effective = append(effective, token.Record())
	}
	invalid := result.Invalid
	if invalid == nil {
		invalid = []authority.InvalidToken{}
	}
	writeJSON(w, http.StatusOK, validationResponse{
		At:        at,
		Effective: effective,
		Invalid:   invalid,
	})
}

func (a *API) publish(evt stream.Event) {
	if a.broker != nil {
		a.broker.Publish(evt)
	}
}

func (a *API) auditToken(r *http.Request, event, tokenID string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	if tokenID != "" {
		fields["token_id"] = tokenID
	}
	_ = audit.LogEvent(r.Context(), event, fields)
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between 1 and 1000")
	}
	return val, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleTokenError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		emptyErr     *authority.EmptyFieldError
		lifetimeErr  *authority.InvalidLifetimeError
		minterErr    *authority.UntrustedMinterError
		narrowErr    *authority.LifetimeNotNarrowedError
		parentErr    *authority.InvalidParentError
		causalityErr *authority.DelegationBeforeIssuanceError
	)
	switch {
	case errors.As(err, &emptyErr):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &lifetimeErr),
		errors.As(err, &narrowErr),
		errors.As(err, &causalityErr),
		errors.Is(err, authority.ErrScopeNotStrictSubset):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &minterErr):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.As(err, &parentErr):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
