package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Harardin/nft-custody/internal/consumer"
	"github.com/Harardin/nft-custody/internal/token"
	"github.com/Harardin/nft-custody/internal/vault"
	"github.com/Harardin/nft-custody/pkg/chain"
	"github.com/Harardin/nft-custody/pkg/utils"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
)

const (
	callerHeader = "X-Caller"
	maxMint      = 1000
)

type handlerFunc func(r *http.Request) (any, error)

// Handler returns router of the custody api
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handle("health", s.health)).Methods(http.MethodGet)

	r.HandleFunc("/tokens/mint", s.handle("mint", s.mint)).Methods(http.MethodPost)
	r.HandleFunc("/tokens/approval", s.handle("approval", s.approval)).Methods(http.MethodPost)
	r.HandleFunc("/tokens/transfer", s.handle("transfer", s.transfer)).Methods(http.MethodPost)
	r.HandleFunc("/tokens/{id}/owner", s.handle("owner_of", s.ownerOf)).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{address}/balance", s.handle("balance_of", s.balanceOf)).Methods(http.MethodGet)

	r.HandleFunc("/vault", s.handle("vault", s.vaultInfo)).Methods(http.MethodGet)
	r.HandleFunc("/vault/deposit", s.handle("deposit", s.deposit)).Methods(http.MethodPost)
	r.HandleFunc("/vault/withdraw", s.handle("withdraw", s.withdraw)).Methods(http.MethodPost)
	r.HandleFunc("/vault/tokens/{id}", s.handle("vault_token", s.vaultToken)).Methods(http.MethodGet)
	r.HandleFunc("/vault/held/{id}", s.handle("held_owner_of", s.heldOwnerOf)).Methods(http.MethodGet)
	r.HandleFunc("/vault/held-balance/{address}", s.handle("held_balance_of", s.heldBalanceOf)).Methods(http.MethodGet)
	r.HandleFunc("/vault/supports/{interface}", s.handle("supports_interface", s.supportsInterface)).Methods(http.MethodGet)
	r.HandleFunc("/vault/holdings", s.handle("holdings", s.holdings)).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handle("events", s.events)).Methods(http.MethodGet)

	r.HandleFunc("/consumer/owner/{id}", s.handle("consumer_owner", s.consumerOwner)).Methods(http.MethodGet)
	r.HandleFunc("/consumer/balance/{address}", s.handle("consumer_balance", s.consumerBalance)).Methods(http.MethodGet)

	return r
}

func (s *Server) handle(operation string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h(r)
		if err != nil {
			status := statusOf(err)
			if status >= http.StatusInternalServerError {
				s.logger.Errorf("%s failed: %v", operation, err)
			} else {
				s.logger.Debugf("%s rejected: %v", operation, err)
			}

			s.pm.IncrementOperation(operation, "error")
			s.writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}

		s.pm.IncrementOperation(operation, "ok")
		s.writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("failed to write response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// inputError marks malformed requests
type inputError struct {
	err error
}

func (e inputError) Error() string {
	return e.err.Error()
}

func (e inputError) Unwrap() error {
	return e.err
}

func statusOf(err error) int {
	var inErr inputError

	switch {
	case errors.As(err, &inErr):
		return http.StatusBadRequest
	case errors.Is(err, token.ErrNonexistentToken):
		return http.StatusNotFound
	case errors.Is(err, token.ErrNotApproved),
		errors.Is(err, token.ErrNotApprover),
		errors.Is(err, token.ErrIncorrectOwner),
		errors.Is(err, vault.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, vault.ErrInvalidTokenAddress),
		errors.Is(err, consumer.ErrNotHolder),
		errors.Is(err, token.ErrInvalidOwner),
		errors.Is(err, token.ErrInvalidReceiver),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrApproveToCaller),
		errors.Is(err, token.ErrApprovalToOwner):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func caller(r *http.Request) (chain.Address, error) {
	h := r.Header.Get(callerHeader)
	if h == "" {
		return chain.ZeroAddress, inputError{errors.New(callerHeader + " header is required")}
	}

	addr, err := chain.HexToAddress(h)
	if err != nil {
		return chain.ZeroAddress, inputError{err}
	}
	if addr.IsZero() {
		return chain.ZeroAddress, inputError{errors.New(callerHeader + " must not be zero address")}
	}

	return addr, nil
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return inputError{err}
	}

	if v, ok := dst.(validation.Validatable); ok {
		if err := v.Validate(); err != nil {
			return inputError{err}
		}
	}

	return nil
}

func pathID(r *http.Request) (token.ID, error) {
	raw := mux.Vars(r)["id"]

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, inputError{errors.New("invalid token id \"" + raw + "\"")}
	}

	return token.ID(id), nil
}

func pathAddress(r *http.Request) (chain.Address, error) {
	addr, err := chain.HexToAddress(mux.Vars(r)["address"])
	if err != nil {
		return chain.ZeroAddress, inputError{err}
	}
	return addr, nil
}

// queryToken reads `token` query param, vault collection when absent
func (s *Server) queryToken(r *http.Request) (chain.Address, error) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		return s.vault.Token(), nil
	}

	addr, err := chain.HexToAddress(raw)
	if err != nil {
		return chain.ZeroAddress, inputError{err}
	}
	return addr, nil
}

var notZeroAddress = validation.By(func(value interface{}) error {
	if addr, ok := value.(chain.Address); ok && addr.IsZero() {
		return errors.New("must not be zero address")
	}
	return nil
})

type mintRequest struct {
	Count int `json:"count"`
}

func (m *mintRequest) Validate() error {
	return validation.ValidateStruct(
		m,
		validation.Field(&m.Count, validation.Required, validation.Min(1), validation.Max(maxMint)),
	)
}

type approvalRequest struct {
	Operator chain.Address `json:"operator"`
	Approved bool          `json:"approved"`
}

func (a *approvalRequest) Validate() error {
	return validation.ValidateStruct(
		a,
		validation.Field(&a.Operator, notZeroAddress),
	)
}

type transferRequest struct {
	From    chain.Address `json:"from"`
	To      chain.Address `json:"to"`
	TokenID token.ID      `json:"token_id"`
}

func (t *transferRequest) Validate() error {
	return validation.ValidateStruct(
		t,
		validation.Field(&t.From, notZeroAddress),
	)
}

type tokenRequest struct {
	TokenID token.ID `json:"token_id"`
}

type ownerResponse struct {
	TokenID token.ID      `json:"token_id"`
	Owner   chain.Address `json:"owner"`
}

type balanceResponse struct {
	Address chain.Address `json:"address"`
	Balance uint64        `json:"balance"`
}

func (s *Server) health(*http.Request) (any, error) {
	return map[string]string{"status": "ok"}, nil
}

func (s *Server) mint(r *http.Request) (any, error) {
	from, err := caller(r)
	if err != nil {
		return nil, err
	}

	req := new(mintRequest)
	if err := decode(r, req); err != nil {
		return nil, err
	}

	ids, err := s.token.Mint(from, req.Count)
	if err != nil {
		return nil, err
	}

	return map[string][]token.ID{"token_ids": ids}, nil
}

func (s *Server) approval(r *http.Request) (any, error) {
	from, err := caller(r)
	if err != nil {
		return nil, err
	}

	req := new(approvalRequest)
	if err := decode(r, req); err != nil {
		return nil, err
	}

	if err := s.token.SetApprovalForAll(from, req.Operator, req.Approved); err != nil {
		return nil, err
	}

	return map[string]any{
		"owner":    from,
		"operator": req.Operator,
		"approved": s.token.IsApprovedForAll(from, req.Operator),
	}, nil
}

func (s *Server) transfer(r *http.Request) (any, error) {
	from, err := caller(r)
	if err != nil {
		return nil, err
	}

	req := new(transferRequest)
	if err := decode(r, req); err != nil {
		return nil, err
	}

	if err := s.token.TransferFrom(from, req.From, req.To, req.TokenID); err != nil {
		return nil, err
	}

	return ownerResponse{TokenID: req.TokenID, Owner: req.To}, nil
}

func (s *Server) ownerOf(r *http.Request) (any, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}

	owner, err := s.token.OwnerOf(id)
	if err != nil {
		return nil, err
	}

	return ownerResponse{TokenID: id, Owner: owner}, nil
}

func (s *Server) balanceOf(r *http.Request) (any, error) {
	addr, err := pathAddress(r)
	if err != nil {
		return nil, err
	}

	balance, err := s.token.BalanceOf(addr)
	if err != nil {
		return nil, err
	}

	return balanceResponse{Address: addr, Balance: balance}, nil
}

func (s *Server) vaultInfo(*http.Request) (any, error) {
	return map[string]any{
		"address":          s.vault.Address(),
		"token":            s.vault.Token(),
		"timelock_seconds": int64(s.vault.Timelock().Seconds()),
	}, nil
}

func (s *Server) deposit(r *http.Request) (any, error) {
	from, err := caller(r)
	if err != nil {
		return nil, err
	}

	req := new(tokenRequest)
	if err := decode(r, req); err != nil {
		return nil, err
	}

	if err := s.vault.Deposit(r.Context(), from, req.TokenID); err != nil {
		return nil, err
	}
	s.pm.SetHeld(len(s.vault.Holdings()))

	return vault.Holding{
		TokenID:   req.TokenID,
		Depositor: from,
		UnlockAt:  s.vault.Locks(req.TokenID),
	}, nil
}

func (s *Server) withdraw(r *http.Request) (any, error) {
	from, err := caller(r)
	if err != nil {
		return nil, err
	}

	req := new(tokenRequest)
	if err := decode(r, req); err != nil {
		return nil, err
	}

	if err := s.vault.Withdraw(r.Context(), from, req.TokenID); err != nil {
		return nil, err
	}
	s.pm.SetHeld(len(s.vault.Holdings()))

	return ownerResponse{TokenID: req.TokenID, Owner: from}, nil
}

// vaultToken exposes raw owner and lock mappings, zero values for ids not held
func (s *Server) vaultToken(r *http.Request) (any, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}

	var unlockAt int64
	if lock := s.vault.Locks(id); !lock.IsZero() {
		unlockAt = lock.Unix()
	}

	return map[string]any{
		"owner":     s.vault.Owners(id),
		"unlock_at": unlockAt,
	}, nil
}

func (s *Server) heldOwnerOf(r *http.Request) (any, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}

	collection, err := s.queryToken(r)
	if err != nil {
		return nil, err
	}

	owner, err := s.vault.HeldOwnerOf(collection, id)
	if err != nil {
		return nil, err
	}

	return ownerResponse{TokenID: id, Owner: owner}, nil
}

func (s *Server) heldBalanceOf(r *http.Request) (any, error) {
	addr, err := pathAddress(r)
	if err != nil {
		return nil, err
	}

	collection, err := s.queryToken(r)
	if err != nil {
		return nil, err
	}

	balance, err := s.vault.HeldBalanceOf(collection, addr)
	if err != nil {
		return nil, err
	}

	return balanceResponse{Address: addr, Balance: balance}, nil
}

func (s *Server) supportsInterface(r *http.Request) (any, error) {
	id, err := chain.ParseInterfaceID(mux.Vars(r)["interface"])
	if err != nil {
		return nil, inputError{err}
	}

	return map[string]any{
		"interface": id.Hex(),
		"supported": s.vault.SupportsInterface(id),
	}, nil
}

func (s *Server) holdings(*http.Request) (any, error) {
	return s.vault.Holdings(), nil
}

func (s *Server) events(*http.Request) (any, error) {
	return s.recorder.Events(), nil
}

func (s *Server) consumerOwner(r *http.Request) (any, error) {
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}

	owner, err := s.consumer.GetOwner(id)
	if err != nil {
		return nil, err
	}

	return ownerResponse{TokenID: id, Owner: owner}, nil
}

func (s *Server) consumerBalance(r *http.Request) (any, error) {
	addr, err := pathAddress(r)
	if err != nil {
		return nil, err
	}

	list := utils.SplitList(r.URL.Query().Get("holders"))
	holders := make([]chain.Address, 0, len(list))
	for _, item := range list {
		h, err := chain.HexToAddress(item)
		if err != nil {
			return nil, inputError{err}
		}
		holders = append(holders, h)
	}

	balance, err := s.consumer.GetBalance(addr, holders)
	if err != nil {
		return nil, err
	}

	return balanceResponse{Address: addr, Balance: balance}, nil
}
