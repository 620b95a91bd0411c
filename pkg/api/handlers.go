// Package api is the HTTP surface of the governance kernel.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/contracts"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/kernel"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/ledger"
)

const maxBodyBytes = 1 << 20

// EvaluateRequest is the body of POST /v1/evaluate. Omitted sections take
// the kernel policy defaults.
type EvaluateRequest struct {
	Content      string                  `json:"content"`
	Authority    *contracts.Authority    `json:"authority,omitempty"`
	Proof        *contracts.ActionProof  `json:"proof,omitempty"`
	Verification *contracts.Verification `json:"verification,omitempty"`
	Witnesses    []string                `json:"witnesses,omitempty"`
}

// TipResponse describes the accepted state.
type TipResponse struct {
	Length      int    `json:"length"`
	Sequence    uint64 `json:"sequence"`
	Hash        string `json:"hash"`
	GeneID      string `json:"gene_id,omitempty"`
	StateHash   string `json:"state_hash"`
	RefusalHead string `json:"refusal_head"`
	Refusals    int    `json:"refusals"`
	Halted      bool   `json:"halted"`
}

// VerifyResponse reports a successful chain verification.
type VerifyResponse struct {
	OK       bool `json:"ok"`
	Entries  int  `json:"entries"`
	Refusals int  `json:"refusals"`
}

// Server serves the kernel over HTTP.
type Server struct {
	kernel *kernel.Kernel
	logger *slog.Logger
	tracer trace.Tracer
}

// NewServer creates a server. tracer may be nil.
func NewServer(k *kernel.Kernel, logger *slog.Logger, tracer trace.Tracer) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = otel.Tracer("govkernel/api")
	}
	return &Server{kernel: k, logger: logger.With("component", "api"), tracer: tracer}
}

// Routes returns the handler tree. limiter may be nil.
func (s *Server) Routes(limiter *RateLimiter) http.Handler {
	mux := http.NewServeMux()

	var evaluate http.Handler = http.HandlerFunc(s.HandleEvaluate)
	if limiter != nil {
		evaluate = limiter.Middleware(evaluate)
	}
	mux.Handle("POST /v1/evaluate", evaluate)
	mux.HandleFunc("GET /v1/ledger/tip", s.HandleTip)
	mux.HandleFunc("GET /v1/ledger/verify", s.HandleVerify)
	mux.HandleFunc("GET /healthz", s.HandleHealth)

	return RequestID(mux)
}

// HandleEvaluate runs one proposal through the kernel. Executed, refused
// and quiescent outcomes are all 200; the outcome kind is in the body.
func (s *Server) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "kernel.evaluate", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var req EvaluateRequest
	if err := dec.Decode(&req); err != nil {
		WriteBadRequest(w, r, "Invalid request body")
		return
	}

	out, err := s.kernel.Submit(ctx, kernel.Request{
		Content:      req.Content,
		Authority:    req.Authority,
		Proof:        req.Proof,
		Verification: req.Verification,
		Witnesses:    req.Witnesses,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		switch {
		case errors.Is(err, kernel.ErrHalted):
			WriteHalted(w, r)
		case ctx.Err() != nil:
			// Client went away before commit; nothing was appended.
			WriteError(w, r, http.StatusServiceUnavailable, "Request Cancelled", "The request was cancelled before commit.")
		default:
			WriteInternal(w, r, s.logger, err)
		}
		return
	}

	attrs := []attribute.KeyValue{attribute.String("govkernel.outcome", string(out.Kind()))}
	if rec, ok := out.Refusal(); ok {
		attrs = append(attrs, attribute.String("govkernel.violation_code", string(rec.ReasonCode)))
	}
	if g, ok := out.Gene(); ok {
		attrs = append(attrs, attribute.Int64("govkernel.sequence", int64(g.Sequence)))
	}
	span.SetAttributes(attrs...)

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) HandleTip(w http.ResponseWriter, r *http.Request) {
	state, err := s.kernel.StateHash()
	if err != nil {
		WriteInternal(w, r, s.logger, err)
		return
	}

	resp := TipResponse{
		Hash:        s.kernel.Anchor().RootHash,
		StateHash:   state,
		RefusalHead: s.kernel.Refusals().Head(),
		Refusals:    s.kernel.Refusals().Len(),
		Halted:      s.kernel.Halted(),
	}
	if tip, ok := s.kernel.Ledger().Tip(); ok {
		resp.Length = s.kernel.Ledger().Len()
		resp.Sequence = tip.Gene.Sequence
		resp.Hash = tip.Hash
		resp.GeneID = tip.Gene.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleVerify re-verifies both chains. A broken chain is a 409 carrying
// the violation code.
func (s *Server) HandleVerify(w http.ResponseWriter, r *http.Request) {
	for _, check := range []struct {
		name   string
		verify func() error
	}{
		{"gene ledger", s.kernel.Ledger().VerifyChain},
		{"refusal log", s.kernel.Refusals().VerifyChain},
	} {
		if err := check.verify(); err != nil {
			p := &ProblemDetail{
				Type:   problemBase + "chain-integrity",
				Status: http.StatusConflict,
				Title:  "Chain Verification Failed",
				Detail: check.name + ": " + err.Error(),
			}
			if code, ok := ledger.CodeOf(err); ok {
				p.Code = string(code)
			}
			s.logger.ErrorContext(r.Context(), "chain verification failed", "chain", check.name, "error", err, "alert", true)
			writeProblem(w, r, p)
			return
		}
	}

	writeJSON(w, http.StatusOK, VerifyResponse{
		OK:       true,
		Entries:  s.kernel.Ledger().Len(),
		Refusals: s.kernel.Refusals().Len(),
	})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if s.kernel.Halted() {
		WriteHalted(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
