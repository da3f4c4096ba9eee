// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package httpapi wires the relayer's HTTP surface (C10c): prepare and
// submit endpoints for deposit/transfer/withdraw, root/status lookups, and
// the health/info endpoints, per spec.md §6.
package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/luxfi/cipherpay-relayer/internal/apperr"
	"github.com/luxfi/cipherpay-relayer/internal/auth"
	"github.com/luxfi/cipherpay-relayer/internal/field"
	"github.com/luxfi/cipherpay-relayer/internal/logging"
	"github.com/luxfi/cipherpay-relayer/internal/merkletree"
	"github.com/luxfi/cipherpay-relayer/internal/metrics"
	"github.com/luxfi/cipherpay-relayer/internal/submit"
	"github.com/luxfi/cipherpay-relayer/internal/witness"
)

// Server wires every dependency the router's handlers close over.
type Server struct {
	tree    *merkletree.Tree
	witness *witness.Service
	submit  *submit.Pipeline
	auth    auth.Authenticator
	log     logging.Logger
	m       *metrics.Registry

	version       string
	programID     string
	clusterURL    string
	relayerPubkey string
}

// Config carries the pieces NewRouter needs beyond the dependency handles:
// the service version string, the ledger program identity for
// /api/v1/relayer/info, and the CORS allowed origins.
type Config struct {
	Version        string
	ProgramID      string
	ClusterURL     string
	RelayerPubkey  string
	AllowedOrigins []string
}

// NewRouter builds the chi.Router exposing every endpoint spec.md §6 names.
func NewRouter(tree *merkletree.Tree, ws *witness.Service, sp *submit.Pipeline, a auth.Authenticator, log logging.Logger, m *metrics.Registry, cfg Config) http.Handler {
	s := &Server{
		tree: tree, witness: ws, submit: sp, auth: a, log: log, m: m,
		version:       cfg.Version,
		programID:     cfg.ProgramID,
		clusterURL:    cfg.ClusterURL,
		relayerPubkey: cfg.RelayerPubkey,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.metricsMiddleware)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Signature"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Get("/ready", s.handleHealth)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(s.authMiddleware)

		api.Get("/relayer/info", s.handleInfo)
		api.Get("/submit/merkle/root", s.handleMerkleRoot)
		api.Get("/submit/status/{sig}", s.handleSubmitStatus)

		api.Post("/prepare/deposit", s.handlePrepareDeposit)
		api.Post("/prepare/transfer", s.handlePrepareTransfer)
		api.Post("/prepare/withdraw", s.handlePrepareWithdraw)

		api.Post("/submit/deposit", s.handleSubmitDeposit)
		api.Post("/submit/transfer", s.handleSubmitTransfer)
		api.Post("/submit/withdraw", s.handleSubmitWithdraw)
	})

	return r
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.m == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.m.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		s.m.HTTPRequestsTotal.WithLabelValues(route, http.StatusText(rw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// authMiddleware resolves a auth.Credential from the request per the active
// scheme and rejects with 401 on failure. The credential fields that don't
// apply to the configured scheme are simply left zero; auth.Authenticator
// implementations only look at the ones they need.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			next.ServeHTTP(w, r)
			return
		}

		// Only the HMAC scheme needs the raw body, signaled by the presence
		// of X-Signature; avoid buffering it for bearer/JWT requests.
		var body []byte
		if r.Body != nil && r.Header.Get("X-Signature") != "" {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		cred := auth.Credential{
			BearerToken: bearerToken(r),
			JWT:         bearerToken(r),
			Body:        body,
			Signature:   r.Header.Get("X-Signature"),
		}

		if _, err := s.auth.Authenticate(r.Context(), cred); err != nil {
			if s.log != nil {
				s.log.Warn("httpapi: authentication rejected", logging.Err(err), logging.String("path", r.URL.Path))
			}
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleInfo serves spec.md §6's GET /api/v1/relayer/info, identifying the
// relayer and the ledger program it submits to.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"relayerPubkey": s.relayerPubkey,
		"programId":     s.programID,
		"clusterUrl":    s.clusterURL,
	})
}

func (s *Server) handleMerkleRoot(w http.ResponseWriter, r *http.Request) {
	root, _, err := s.tree.GetRootAndIndex(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"root": root.Hex()})
}

// handleSubmitStatus is a thin pass-through: the relayer does not persist
// transaction status itself, so this simply echoes back the signature the
// caller already has. Status lookups belong to the ledger RPC directly; this
// endpoint exists for API symmetry with the other submit_* routes.
func (s *Server) handleSubmitStatus(w http.ResponseWriter, r *http.Request) {
	sig := chi.URLParam(r, "sig")
	if sig == "" {
		writeError(w, apperr.New(apperr.Validation, "missing signature"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"signature": sig, "status": "submitted"})
}

func pathElementsHex(elems []field.FE) []string {
	out := make([]string, len(elems))
	for i, e := range elems {
		out[i] = e.Hex()
	}
	return out
}

func pathIndicesInt(bits []uint8) []int {
	out := make([]int, len(bits))
	for i, b := range bits {
		out[i] = int(b)
	}
	return out
}

// prepareDepositRequest matches spec.md §6's POST /api/v1/prepare/deposit
// body: {commitment: decimal-string}.
type prepareDepositRequest struct {
	Commitment string `json:"commitment"`
}

// depositWitnessResponse matches spec.md §6's prepare_deposit response:
// {merkleRoot, nextLeafIndex, inPathElements, inPathIndices}.
type depositWitnessResponse struct {
	MerkleRoot     string   `json:"merkleRoot"`
	NextLeafIndex  uint64   `json:"nextLeafIndex"`
	InPathElements []string `json:"inPathElements"`
	InPathIndices  []int    `json:"inPathIndices"`
}

func (s *Server) handlePrepareDeposit(w http.ResponseWriter, r *http.Request) {
	var req prepareDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.Validation, "malformed request body", err))
		return
	}
	commitment, err := parseFieldDecimal(req.Commitment)
	if err != nil {
		writeError(w, err)
		return
	}

	wit, err := s.witness.PrepareDeposit(r.Context(), commitment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, depositWitnessResponse{
		MerkleRoot:     wit.MerkleRoot.Hex(),
		NextLeafIndex:  wit.NextLeafIndex,
		InPathElements: pathElementsHex(wit.InPathElements),
		InPathIndices:  pathIndicesInt(wit.InPathIndices),
	})
}

// prepareTransferRequest matches spec.md §6's prepare_transfer body:
// {inCommitment, out1Commitment}.
type prepareTransferRequest struct {
	InCommitment   string `json:"inCommitment"`
	Out1Commitment string `json:"out1Commitment"`
}

type transferWitnessResponse struct {
	MerkleRoot       string   `json:"merkleRoot"`
	NextLeafIndex    uint64   `json:"nextLeafIndex"`
	InPathElements   []string `json:"inPathElements"`
	InPathIndices    []int    `json:"inPathIndices"`
	Out1PathElements []string `json:"out1PathElements"`
	Out1PathIndices  []int    `json:"out1PathIndices"`
}

func (s *Server) handlePrepareTransfer(w http.ResponseWriter, r *http.Request) {
	var req prepareTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.Validation, "malformed request body", err))
		return
	}
	inCommitment, err := parseFieldHex(req.InCommitment)
	if err != nil {
		writeError(w, err)
		return
	}
	out1Commitment, err := parseFieldHex(req.Out1Commitment)
	if err != nil {
		writeError(w, err)
		return
	}

	wit, err := s.witness.PrepareTransfer(r.Context(), inCommitment, out1Commitment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transferWitnessResponse{
		MerkleRoot:       wit.MerkleRoot.Hex(),
		NextLeafIndex:    wit.NextLeafIndex,
		InPathElements:   pathElementsHex(wit.InPathElements),
		InPathIndices:    pathIndicesInt(wit.InPathIndices),
		Out1PathElements: pathElementsHex(wit.Out1PathElements),
		Out1PathIndices:  pathIndicesInt(wit.Out1PathIndices),
	})
}

// prepareWithdrawRequest matches spec.md §6's prepare_withdraw body:
// {spendCommitment}.
type prepareWithdrawRequest struct {
	SpendCommitment string `json:"spendCommitment"`
}

// withdrawWitnessResponse matches spec.md §6's prepare_withdraw response:
// {merkleRoot, pathElements, pathIndices} — distinct field names from the
// deposit witness response, which prefixes its path with "in".
type withdrawWitnessResponse struct {
	MerkleRoot   string   `json:"merkleRoot"`
	PathElements []string `json:"pathElements"`
	PathIndices  []int    `json:"pathIndices"`
}

func (s *Server) handlePrepareWithdraw(w http.ResponseWriter, r *http.Request) {
	var req prepareWithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.Validation, "malformed request body", err))
		return
	}
	spendCommitment, err := parseFieldHex(req.SpendCommitment)
	if err != nil {
		writeError(w, err)
		return
	}

	wit, err := s.witness.PrepareWithdraw(r.Context(), spendCommitment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawWitnessResponse{
		MerkleRoot:   wit.MerkleRoot.Hex(),
		PathElements: pathElementsHex(wit.PathElements),
		PathIndices:  pathIndicesInt(wit.PathIndices),
	})
}

type submitResponse struct {
	OK          bool   `json:"ok"`
	Accepted    bool   `json:"accepted"`
	TxSignature string `json:"txSignature"`
}

// submitDepositRequest matches spec.md §6's POST /api/v1/submit/deposit
// body: {proof, publicSignals[7], depositHash, commitment, amount,
// tokenMint, memo}.
type submitDepositRequest struct {
	Proof         string   `json:"proof"`
	PublicSignals []string `json:"publicSignals"`
	DepositHash   string   `json:"depositHash"`
	Commitment    string   `json:"commitment"`
	TokenMint     string   `json:"tokenMint"`
	Amount        uint64   `json:"amount"`
	Memo          string   `json:"memo"`
}

func (s *Server) handleSubmitDeposit(w http.ResponseWriter, r *http.Request) {
	var req submitDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.Validation, "malformed request body", err))
		return
	}
	proof, err := decodeHexBytes(req.Proof)
	if err != nil {
		writeError(w, err)
		return
	}
	signals, err := decodeFieldHexSlice(req.PublicSignals)
	if err != nil {
		writeError(w, err)
		return
	}
	depositHash, err := decodeHex32(req.DepositHash)
	if err != nil {
		writeError(w, err)
		return
	}
	commitment, err := parseFieldHex(req.Commitment)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.submit.SubmitDeposit(r.Context(), submit.DepositRequest{
		Proof:         proof,
		PublicSignals: signals,
		DepositHash:   depositHash,
		Commitment:    commitment,
		TokenMint:     req.TokenMint,
		Amount:        req.Amount,
		Memo:          req.Memo,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{OK: res.OK, Accepted: res.Accepted, TxSignature: res.TxSignature})
}

// submitTransferRequest matches spec.md §6's submit_transfer body:
// {proof, publicSignals, nullifier, out1Commitment, out2Commitment}.
type submitTransferRequest struct {
	Proof          string   `json:"proof"`
	PublicSignals  []string `json:"publicSignals"`
	Nullifier      string   `json:"nullifier"`
	Out1Commitment string   `json:"out1Commitment"`
	Out2Commitment string   `json:"out2Commitment"`
}

func (s *Server) handleSubmitTransfer(w http.ResponseWriter, r *http.Request) {
	var req submitTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.Validation, "malformed request body", err))
		return
	}
	proof, err := decodeHexBytes(req.Proof)
	if err != nil {
		writeError(w, err)
		return
	}
	signals, err := decodeFieldHexSlice(req.PublicSignals)
	if err != nil {
		writeError(w, err)
		return
	}
	nullifier, err := decodeHex32(req.Nullifier)
	if err != nil {
		writeError(w, err)
		return
	}
	out1Commitment, err := parseFieldHex(req.Out1Commitment)
	if err != nil {
		writeError(w, err)
		return
	}
	out2Commitment, err := parseFieldHex(req.Out2Commitment)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.submit.SubmitTransfer(r.Context(), submit.TransferRequest{
		Proof:          proof,
		PublicSignals:  signals,
		Nullifier:      nullifier,
		Out1Commitment: out1Commitment,
		Out2Commitment: out2Commitment,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{OK: res.OK, Accepted: res.Accepted, TxSignature: res.TxSignature})
}

// submitWithdrawRequest matches spec.md §6's submit_withdraw body:
// {proof, publicSignals, nullifier, recipient, amount, mint}.
type submitWithdrawRequest struct {
	Proof         string   `json:"proof"`
	PublicSignals []string `json:"publicSignals"`
	Nullifier     string   `json:"nullifier"`
	Recipient     string   `json:"recipient"`
	Mint          string   `json:"mint"`
	Amount        uint64   `json:"amount"`
}

func (s *Server) handleSubmitWithdraw(w http.ResponseWriter, r *http.Request) {
	var req submitWithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Wrap(apperr.Validation, "malformed request body", err))
		return
	}
	proof, err := decodeHexBytes(req.Proof)
	if err != nil {
		writeError(w, err)
		return
	}
	signals, err := decodeFieldHexSlice(req.PublicSignals)
	if err != nil {
		writeError(w, err)
		return
	}
	nullifier, err := decodeHex32(req.Nullifier)
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.submit.SubmitWithdraw(r.Context(), submit.WithdrawRequest{
		Proof:         proof,
		PublicSignals: signals,
		Nullifier:     nullifier,
		Recipient:     req.Recipient,
		Mint:          req.Mint,
		Amount:        req.Amount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{OK: res.OK, Accepted: res.Accepted, TxSignature: res.TxSignature})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	writeJSON(w, code.HTTPStatus(), errorResponse{Error: err.Error(), Code: code.String()})
}
