package juzud

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/wakumo/juzu-protocol/native/locker"
	"github.com/wakumo/juzu-protocol/native/token"
)

// Server exposes the factory and its lockers over HTTP. Deposit bundles and
// condition sets travel ABI-encoded in hex payload fields; amounts are
// decimal strings.
type Server struct {
	factory  *locker.Factory
	registry *token.Registry
	logger   *slog.Logger
	limiter  *rate.Limiter
	gatherer prometheus.Gatherer
}

// NewServer wires the HTTP surface around a factory generation.
func NewServer(factory *locker.Factory, registry *token.Registry, logger *slog.Logger, cfg *Config, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Limit(cfg.RateLimitPerSecond)
	return &Server{
		factory:  factory,
		registry: registry,
		logger:   logger,
		limiter:  rate.NewLimiter(limit, cfg.RateLimitBurst),
		gatherer: gatherer,
	}
}

// Router assembles the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.throttle)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/factory", s.handleFactoryInfo)
		v1.Post("/factory/pause", s.handlePause)
		v1.Post("/factory/unpause", s.handleUnpause)
		v1.Post("/factory/apr", s.handleSetApr)
		v1.Post("/factory/base-fee", s.handleSetBaseFee)

		v1.Post("/lockers", s.handleCreateLocker)
		v1.Route("/lockers/{id}", func(lr chi.Router) {
			lr.Get("/", s.handleGetLocker)
			lr.Post("/assets", s.handleAddAssets)
			lr.Post("/lock", s.handleLock)
			lr.Post("/conditions", s.handleUpdateConditions)
			lr.Post("/withdraw/nft", s.handleWithdrawNFT)
			lr.Post("/withdraw/asset", s.handleWithdrawAsset)
			lr.Post("/fees/extra", s.handleDepositExtraFee)
			lr.Post("/fees/base", s.handleDepositBaseFee)
			lr.Post("/release", s.handleRelease)
			lr.Post("/claim", s.handleClaim)
			lr.Post("/burn", s.handleBurn)
			lr.Post("/transfer", s.handleTransfer)
		})
	})
	return r
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type createLockerRequest struct {
	Caller            string `json:"caller"`
	ConditionsPayload string `json:"conditionsPayload"`
	InitialStage      string `json:"initialStage"`
}

type createLockerResponse struct {
	PositionID uint64 `json:"positionId"`
	Address    string `json:"address"`
}

func (s *Server) handleCreateLocker(w http.ResponseWriter, r *http.Request) {
	var req createLockerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	conds, ok := parseConditions(w, req.ConditionsPayload)
	if !ok {
		return
	}
	initial, err := parseStage(req.InitialStage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l, err := s.factory.CreateLocker(caller, conds, initial)
	if err != nil {
		s.writeDomainError(w, "create_locker", err)
		return
	}
	writeJSON(w, http.StatusCreated, createLockerResponse{
		PositionID: l.PositionID(),
		Address:    l.Address().Hex(),
	})
}

type factoryInfoResponse struct {
	Address            string `json:"address"`
	Version            uint64 `json:"version"`
	Apr                uint64 `json:"apr"`
	BaseFeeRequirement string `json:"baseFeeRequirement"`
	RewardToken        string `json:"rewardToken"`
	Paused             bool   `json:"paused"`
}

func (s *Server) handleFactoryInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factoryInfoResponse{
		Address:            s.factory.Address().Hex(),
		Version:            s.factory.Version(),
		Apr:                s.factory.Apr(),
		BaseFeeRequirement: s.factory.BaseFeeRequirement().String(),
		RewardToken:        s.factory.RewardToken().Hex(),
		Paused:             s.factory.Paused(),
	})
}

type callerRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	if err := s.factory.Pause(caller); err != nil {
		s.writeDomainError(w, "pause", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	var req callerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	if err := s.factory.Unpause(caller); err != nil {
		s.writeDomainError(w, "unpause", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

type setAprRequest struct {
	Caller string `json:"caller"`
	Apr    uint64 `json:"apr"`
}

func (s *Server) handleSetApr(w http.ResponseWriter, r *http.Request) {
	var req setAprRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	if err := s.factory.SetApr(caller, req.Apr); err != nil {
		s.writeDomainError(w, "set_apr", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"apr": req.Apr})
}

type setBaseFeeRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

func (s *Server) handleSetBaseFee(w http.ResponseWriter, r *http.Request) {
	var req setBaseFeeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}
	if err := s.factory.SetBaseFeeRequirement(caller, amount); err != nil {
		s.writeDomainError(w, "set_base_fee", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"baseFeeRequirement": amount.String()})
}

type lockerView struct {
	PositionID       uint64          `json:"positionId"`
	Address          string          `json:"address"`
	Owner            string          `json:"owner"`
	Stage            string          `json:"stage"`
	FactoryVersion   uint64          `json:"factoryVersion"`
	Conditions       []conditionView `json:"conditions"`
	NFTs             []nftView       `json:"nfts"`
	Assets           []assetView     `json:"assets"`
	DepositedBaseFee string          `json:"depositedBaseFee"`
	PendingReward    string          `json:"pendingReward"`
	ClaimedAmount    string          `json:"claimedAmount"`
	StakingRate      uint64          `json:"stakingRate"`
	Released         bool            `json:"released"`
	ReleasedBy       string          `json:"releasedBy,omitempty"`
}

type conditionView struct {
	UnlockAt      uint64 `json:"unlockAt"`
	FeeToken      string `json:"feeToken"`
	FeeAmount     string `json:"feeAmount"`
	FeeReceipt    string `json:"feeReceipt"`
	ReleasableBy  string `json:"releasableBy"`
	GroupPriority uint64 `json:"groupPriority"`
}

type nftView struct {
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
	Amount     string `json:"amount"`
	Kind       uint16 `json:"kind"`
}

type assetView struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleGetLocker(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLocker(w, r)
	if !ok {
		return
	}
	view := lockerView{
		PositionID:       l.PositionID(),
		Address:          l.Address().Hex(),
		Owner:            l.Owner().Hex(),
		Stage:            l.Stage().String(),
		FactoryVersion:   l.FactoryVersion(),
		Conditions:       []conditionView{},
		NFTs:             []nftView{},
		Assets:           []assetView{},
		DepositedBaseFee: l.DepositedBaseFee().String(),
		PendingReward:    l.PendingReward().String(),
		ClaimedAmount:    l.ClaimedAmount().String(),
		StakingRate:      l.StakingRate(),
	}
	for _, c := range l.Conditions() {
		view.Conditions = append(view.Conditions, conditionView{
			UnlockAt:      c.UnlockAt,
			FeeToken:      c.ExternalFee.Token.Hex(),
			FeeAmount:     c.ExternalFee.Amount.String(),
			FeeReceipt:    c.ExternalFee.Receipt.Hex(),
			ReleasableBy:  c.ReleasableBy.Hex(),
			GroupPriority: c.GroupPriority,
		})
	}
	for _, n := range l.LockedNFTs() {
		view.NFTs = append(view.NFTs, nftView{
			Collection: n.Collection.Hex(),
			TokenID:    n.TokenID.String(),
			Amount:     n.Amount.String(),
			Kind:       uint16(n.Kind),
		})
	}
	for _, a := range l.LockedAssets() {
		view.Assets = append(view.Assets, assetView{Token: a.Token.Hex(), Amount: a.Amount.String()})
	}
	if released, by := l.Released(); released {
		view.Released = true
		view.ReleasedBy = by.Hex()
	}
	writeJSON(w, http.StatusOK, view)
}

type addAssetsRequest struct {
	Caller        string `json:"caller"`
	BundlePayload string `json:"bundlePayload"`
	BaseFee       string `json:"baseFee"`
	Attached      string `json:"attached"`
}

func (s *Server) handleAddAssets(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLocker(w, r)
	if !ok {
		return
	}
	var req addAssetsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	payload, err := hexutil.Decode(strings.TrimSpace(req.BundlePayload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bundlePayload must be 0x-prefixed hex")
		return
	}
	bundle, err := locker.DecodeAssetBundle(payload)
	if err != nil {
		s.writeDomainError(w, "add_assets", err)
		return
	}
	baseFee, ok := parseAmount(w, req.BaseFee, "baseFee")
	if !ok {
		return
	}
	attached, ok := parseAmount(w, req.Attached, "attached")
	if !ok {
		return
	}
	if err := l.AddAssets(caller, bundle, baseFee, attached); err != nil {
		s.writeDomainError(w, "add_assets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deposited"})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLocker(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	if err := l.Lock(caller); err != nil {
		s.writeDomainError(w, "lock", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"stage": locker.StageLocked.String()})
}

type updateConditionsRequest struct {
	Caller            string `json:"caller"`
	ConditionsPayload string `json:"conditionsPayload"`
}

func (s *Server) handleUpdateConditions(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLocker(w, r)
	if !ok {
		return
	}
	var req updateConditionsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	conds, ok := parseConditions(w, req.ConditionsPayload)
	if !ok {
		return
	}
	if err := l.UpdateConditions(caller, conds); err != nil {
		s.writeDomainError(w, "update_conditions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"conditions": len(conds)})
}

type withdrawNFTRequest struct {
	Caller     string `json:"caller"`
	Index      int    `json:"index"`
	Collection string `json:"collection"`
	TokenID    string `json:"tokenId"`
}

func (s *Server) handleWithdrawNFT(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLocker(w, r)
	if !ok {
		return
	}
	var req withdrawNFTRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	collection, ok := parseAddress(w, req.Collection, "collection")
	if !ok {
		return
	}
	tokenID, ok := parseAmount(w, req.TokenID, "tokenId")
	if !ok {
		return
	}
	if err := l.WithdrawNFT(caller, req.Index, collection, tokenID); err != nil {
		s.writeDomainError(w, "withdraw_nft", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

type withdrawAssetRequest struct {
	Caller string `json:"caller"`
	Index  int    `json:"index"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleWithdrawAsset(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLocker(w, r)
	if !ok {
		return
	}
	var req withdrawAssetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	tokenAddr, ok := parseAddress(w, req.Token, "token")
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}
	if err := l.WithdrawAsset(caller, req.Index, tokenAddr, amount); err != nil {
		s.writeDomainError(w, "withdraw_asset", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

type extraFeeRequest struct {
	Caller   string `json:"caller"`
	Token    string `json:"token"`
	Amount   string `json:"amount"`
	Attached string `json:"attached"`
}

func (s *Server) handleDepositExtraFee(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLocker(w, r)
	if !ok {
		return
	}
	var req extraFeeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	tokenAddr, ok := parseAddress(w, req.Token, "token")
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}
	attached, ok := parseAmount(w, req.Attached, "attached")
	if !ok {
		return
	}
	if err := l.DepositExtraFee(caller, tokenAddr, amount, attached); err != nil {
		s.writeDomainError(w, "deposit_extra_fee", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deposited"})
}

type baseFeeDepositRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

func (s *Server) handleDepositBaseFee(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLocker(w, r)
	if !ok {
		return
	}
	var req baseFeeDepositRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}
	if err := l.DepositBaseFee(caller, amount); err != nil {
		s.writeDomainError(w, "deposit_base_fee", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deposited"})
}

type releaseRequest struct {
	Caller         string `json:"caller"`
	GroupIndex     int    `json:"groupIndex"`
	ConditionIndex int    `json:"conditionIndex"`
	Attached       string `json:"attached"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLocker(w, r)
	if !ok {
		return
	}
	var req releaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	attached, ok := parseAmount(w, req.Attached, "attached")
	if !ok {
		return
	}
	if err := l.Release(caller, req.GroupIndex, req.ConditionIndex, attached); err != nil {
		s.writeDomainError(w, "release", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"stage": locker.StageUnlocked.String()})
}

type claimRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLocker(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	to := caller
	if strings.TrimSpace(req.To) != "" {
		if to, ok = parseAddress(w, req.To, "to"); !ok {
			return
		}
	}
	amount, err := l.Claim(caller, to)
	if err != nil {
		s.writeDomainError(w, "claim", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"claimed": amount.String()})
}

func (s *Server) handleBurn(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLocker(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	if err := l.Burn(caller); err != nil {
		s.writeDomainError(w, "burn", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "burned"})
}

type transferRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	l, ok := s.lookupLocker(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	to, ok := parseAddress(w, req.To, "to")
	if !ok {
		return
	}
	if err := s.registry.Transfer(caller, l.PositionID(), to); err != nil {
		s.writeDomainError(w, "transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": to.Hex()})
}

func (s *Server) lookupLocker(w http.ResponseWriter, r *http.Request) (*locker.Locker, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "locker id must be a positive integer")
		return nil, false
	}
	l, ok := s.factory.Locker(id)
	if !ok {
		writeError(w, http.StatusNotFound, "locker not found")
		return nil, false
	}
	return l, true
}

func (s *Server) writeDomainError(w http.ResponseWriter, action string, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("locker operation failed", "action", action, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, locker.ErrInvalidAmount),
		errors.Is(err, locker.ErrInvalidPayload),
		errors.Is(err, locker.ErrInvalidCondition),
		errors.Is(err, locker.ErrInvalidBundle),
		errors.Is(err, locker.ErrConditionOutOfRange),
		errors.Is(err, locker.ErrEntryMismatch),
		errors.Is(err, token.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, locker.ErrUnauthorized),
		errors.Is(err, locker.ErrNotAdmin),
		errors.Is(err, token.ErrItemForbidden),
		errors.Is(err, token.ErrAdminRequired):
		return http.StatusForbidden
	case errors.Is(err, locker.ErrPositionBurned),
		errors.Is(err, token.ErrPositionBurned),
		errors.Is(err, token.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, locker.ErrPaused),
		errors.Is(err, locker.ErrInvalidStage),
		errors.Is(err, locker.ErrInvalidLockedStage),
		errors.Is(err, locker.ErrInvalidUnlockedStage),
		errors.Is(err, locker.ErrTimeLocked):
		return http.StatusConflict
	case errors.Is(err, token.ErrAllowance),
		errors.Is(err, token.ErrInsufficient),
		errors.Is(err, token.ErrNativePull):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func parseConditions(w http.ResponseWriter, payload string) ([]locker.Condition, bool) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, true
	}
	data, err := hexutil.Decode(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "conditionsPayload must be 0x-prefixed hex")
		return nil, false
	}
	conds, err := locker.DecodeConditions(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return conds, true
}

func parseStage(raw string) (locker.Stage, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "open":
		return locker.StageOpen, nil
	case "locked":
		return locker.StageLocked, nil
	default:
		return 0, errors.New("initialStage must be \"open\" or \"locked\"")
	}
}

func parseAddress(w http.ResponseWriter, raw, field string) (common.Address, bool) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, field+" must be a hex address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseAmount(w http.ResponseWriter, raw, field string) (*big.Int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return big.NewInt(0), true
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		writeError(w, http.StatusBadRequest, field+" must be a non-negative decimal string")
		return nil, false
	}
	return amount, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
