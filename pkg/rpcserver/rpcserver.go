// Package rpcserver exposes the vault over JSON-RPC 2.0 on a single
// net/http listener, with /metrics mounted on the same mux for Prometheus
// scraping.
//
// Grounded on cuemby-warren/pkg/api/health.go's ServeMux-and-Start shape;
// the RPC dispatch itself follows original_source/src/handlers/mod.rs's
// method table, translated from a daemon's line-delimited request loop
// into a single /rpc HTTP handler that serves one JSON-RPC request object
// per POST. Batch requests (a JSON array body) are not supported. See
// DESIGN.md.
package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/passd/pkg/config"
	"github.com/cuemby/passd/pkg/keymanager"
	"github.com/cuemby/passd/pkg/log"
	"github.com/cuemby/passd/pkg/metadata"
	"github.com/cuemby/passd/pkg/metrics"
	"github.com/cuemby/passd/pkg/passderr"
	"github.com/cuemby/passd/pkg/secret"
	"github.com/cuemby/passd/pkg/vault"
)

const jsonRPCVersion = "2.0"

// Standard JSON-RPC 2.0 error codes, plus a block reserved for passd's own
// error taxonomy.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603

	codeNotFound          = -32001
	codeAlreadyExists     = -32002
	codeBadPassword       = -32003
	codeScopeViolation    = -32004
	codeDecryptionFailed  = -32005
	codeChecksumMismatch  = -32006
	codeKeyNotFound       = -32007
	codeNoRecipients      = -32008
	codeNotUTF8           = -32009
	codeNoEncryptionKey   = -32010
	codeEncryptionFailed  = -32011
	codeInvalidMetadata   = -32012
	codeRemovalErrors     = -32013
)

var kindToCode = map[passderr.Kind]int{
	passderr.KindNotFound:             codeNotFound,
	passderr.KindAlreadyExists:        codeAlreadyExists,
	passderr.KindBadPassword:          codeBadPassword,
	passderr.KindScopeViolation:       codeScopeViolation,
	passderr.KindDecryptionFailed:     codeDecryptionFailed,
	passderr.KindChecksumMismatch:     codeChecksumMismatch,
	passderr.KindKeyNotFound:          codeKeyNotFound,
	passderr.KindNoRecipientsInCipher: codeNoRecipients,
	passderr.KindNotUTF8:              codeNotUTF8,
	passderr.KindNoEncryptionKey:      codeNoEncryptionKey,
	passderr.KindEncryptionFailed:     codeEncryptionFailed,
	passderr.KindInvalidMetadata:      codeInvalidMetadata,
	passderr.KindRemovalErrors:        codeRemovalErrors,
	passderr.KindInvalidArgument:      codeInvalidParams,
	passderr.KindIO:                  codeInternalError,
}

// request is one JSON-RPC 2.0 request object. Params is decoded lazily
// per-method since each method has its own parameter shape.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Server dispatches JSON-RPC requests against a fixed Config/KeyManager
// pair and mounts Prometheus metrics alongside it.
type Server struct {
	cfg *config.Config
	km  *keymanager.Manager
	mux *http.ServeMux
}

// New builds a Server bound to cfg and km. Constructing a Server touches
// neither disk nor network.
func New(cfg *config.Config, km *keymanager.Manager) *Server {
	mux := http.NewServeMux()
	s := &Server{cfg: cfg, km: km, mux: mux}
	mux.HandleFunc("/rpc", s.handleRPC)
	mux.Handle("/metrics", metrics.Handler())
	return s
}

// Start blocks serving RPC and metrics traffic on addr until the listener
// fails.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	log.WithComponent("rpc").Info().Str("addr", addr).Msg("rpc server listening")
	return server.ListenAndServe()
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, response{JSONRPC: jsonRPCVersion, Error: &rpcError{Code: codeParseError, Message: "failed to parse request body"}})
		return
	}
	if req.JSONRPC != jsonRPCVersion || req.Method == "" {
		writeResponse(w, response{JSONRPC: jsonRPCVersion, ID: req.ID, Error: &rpcError{Code: codeInvalidRequest, Message: "request must set jsonrpc=\"2.0\" and method"}})
		return
	}

	requestID := uuid.NewString()
	logger := log.WithComponent("rpc").With().Str("request_id", requestID).Str("method", req.Method).Logger()

	start := time.Now()
	result, err := s.dispatch(r.Context(), req.Method, req.Params)
	metrics.OperationDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Error().Err(err).Msg("rpc method failed")
		writeResponse(w, response{JSONRPC: jsonRPCVersion, ID: req.ID, Error: toRPCError(err)})
		return
	}

	logger.Info().Dur("duration", time.Since(start)).Msg("rpc method completed")
	writeResponse(w, response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result})
}

func writeResponse(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// errMethodNotFound marks a request naming a method dispatch does not know.
var errMethodNotFound = errors.New("method not found")

func toRPCError(err error) *rpcError {
	if errors.Is(err, errMethodNotFound) {
		return &rpcError{Code: codeMethodNotFound, Message: err.Error()}
	}
	var perr *passderr.Error
	if errors.As(err, &perr) {
		code, ok := kindToCode[perr.Kind]
		if !ok {
			code = codeInternalError
		}
		return &rpcError{Code: code, Message: perr.Error()}
	}
	return &rpcError{Code: codeInternalError, Message: err.Error()}
}

func (s *Server) dispatch(ctx context.Context, method string, raw json.RawMessage) (interface{}, error) {
	switch method {
	case "create":
		return s.handleCreate(raw)
	case "read":
		return s.handleRead(raw)
	case "update":
		return s.handleUpdate(raw)
	case "delete", "remove":
		return s.handleRemove(raw)
	case "move":
		return s.handleMove(raw)
	case "copy":
		return s.handleCopy(raw)
	case "clone":
		return s.handleClone(raw)
	case "find":
		return s.handleFind(raw)
	case "diagnose":
		return s.handleDiagnose()
	default:
		return nil, fmt.Errorf("unknown method %q: %w", method, errMethodNotFound)
	}
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return passderr.New(passderr.KindInvalidArgument, "params is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return passderr.Wrap(passderr.KindInvalidArgument, "failed to decode params", err)
	}
	return nil
}

func (s *Server) recordOutcome(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.SecretOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

type createParams struct {
	RelativePath          string                `json:"relative_path"`
	Content               string                `json:"content"`
	MetadataOverlay       metadata.BaseMetadata `json:"metadata_overlay"`
	RecipientFingerprints []string              `json:"recipient_fingerprints"`
}

func (s *Server) handleCreate(raw json.RawMessage) (interface{}, error) {
	var p createParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	sec := secret.New(s.cfg, s.km, p.RelativePath)
	err := sec.Create([]byte(p.Content), p.MetadataOverlay, p.RecipientFingerprints)
	s.recordOutcome("create", err)
	if err != nil {
		return nil, err
	}
	return sec.Metadata()
}

type readParams struct {
	RelativePath string `json:"relative_path"`
	Password     string `json:"password"`
}

type readResult struct {
	Metadata  metadata.Metadata `json:"metadata"`
	Plaintext string            `json:"plaintext"`
}

func (s *Server) handleRead(raw json.RawMessage) (interface{}, error) {
	var p readParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	sec := secret.New(s.cfg, s.km, p.RelativePath)
	plaintext, err := sec.Plaintext(p.Password)
	s.recordOutcome("read", err)
	if err != nil {
		return nil, err
	}
	m, err := sec.Metadata()
	if err != nil {
		return nil, err
	}
	return readResult{Metadata: m, Plaintext: string(plaintext)}, nil
}

type updateParams struct {
	RelativePath          string                 `json:"relative_path"`
	Content               *string                `json:"content"`
	MetadataOverlay       *metadata.BaseMetadata `json:"metadata_overlay"`
	RecipientFingerprints []string               `json:"recipient_fingerprints"`
	Password              string                 `json:"password"`
}

func (s *Server) handleUpdate(raw json.RawMessage) (interface{}, error) {
	var p updateParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	opts := secret.UpdateOptions{
		MetadataOverlay:       p.MetadataOverlay,
		RecipientFingerprints: p.RecipientFingerprints,
		Password:              p.Password,
	}
	if p.Content != nil {
		opts.Content = []byte(*p.Content)
	}
	sec := secret.New(s.cfg, s.km, p.RelativePath)
	err := sec.Update(opts)
	s.recordOutcome("update", err)
	if err != nil {
		return nil, err
	}
	return sec.Metadata()
}

type removeParams struct {
	RelativePath string `json:"relative_path"`
	Password     string `json:"password"`
}

func (s *Server) handleRemove(raw json.RawMessage) (interface{}, error) {
	var p removeParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	sec := secret.New(s.cfg, s.km, p.RelativePath)
	err := sec.Remove(p.Password)
	s.recordOutcome("remove", err)
	if err != nil {
		return nil, err
	}
	return map[string]bool{"removed": true}, nil
}

type moveParams struct {
	RelativePath string `json:"relative_path"`
	Destination  string `json:"destination"`
}

func (s *Server) handleMove(raw json.RawMessage) (interface{}, error) {
	var p moveParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	sec := secret.New(s.cfg, s.km, p.RelativePath)
	dest, err := sec.MoveTo(p.Destination)
	s.recordOutcome("move", err)
	if err != nil {
		return nil, err
	}
	return dest.Metadata()
}

type copyParams struct {
	RelativePath string `json:"relative_path"`
	Destination  string `json:"destination"`
}

func (s *Server) handleCopy(raw json.RawMessage) (interface{}, error) {
	var p copyParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	sec := secret.New(s.cfg, s.km, p.RelativePath)
	dest, err := sec.CopyTo(p.Destination)
	s.recordOutcome("copy", err)
	if err != nil {
		return nil, err
	}
	return dest.Metadata()
}

type cloneParams struct {
	RelativePath          string   `json:"relative_path"`
	Destination           string   `json:"destination"`
	RecipientFingerprints []string `json:"recipient_fingerprints"`
	Password              string   `json:"password"`
}

func (s *Server) handleClone(raw json.RawMessage) (interface{}, error) {
	var p cloneParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	sec := secret.New(s.cfg, s.km, p.RelativePath)
	dest, err := sec.CloneTo(p.Destination, p.RecipientFingerprints, p.Password)
	s.recordOutcome("clone", err)
	if err != nil {
		return nil, err
	}
	return dest.Metadata()
}

type findParams struct {
	Filter *vault.Filter     `json:"filter"`
	Sort   []vault.SortField `json:"sort"`
	Offset int               `json:"offset"`
	Limit  *int              `json:"limit"`
}

func (s *Server) handleFind(raw json.RawMessage) (interface{}, error) {
	var p findParams
	if len(raw) > 0 {
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
	}
	paths, err := vault.Find(s.cfg, vault.FindOptions{
		Filter: p.Filter,
		Sort:   p.Sort,
		Offset: p.Offset,
		Limit:  p.Limit,
	})
	s.recordOutcome("find", err)
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func (s *Server) handleDiagnose() (interface{}, error) {
	results := vault.Diagnose(s.cfg, s.km)
	for _, r := range results {
		metrics.DiagnoseIssuesTotal.WithLabelValues(string(r.Issue)).Inc()
	}
	return results, nil
}
