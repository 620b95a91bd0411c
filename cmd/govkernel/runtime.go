package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/TrueAlpha-spiral/governance-kernel/pkg/anchor"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/config"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/curator"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/kernel"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/ledger"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/observability"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/repair"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/revocation"
	storeledger "github.com/TrueAlpha-spiral/governance-kernel/pkg/store/ledger"
	"github.com/TrueAlpha-spiral/governance-kernel/pkg/validator"
)

// runtime is a fully wired kernel plus the resources it owns.
type runtime struct {
	cfg       *config.Config
	policy    *config.Policy
	logger    *slog.Logger
	anchor    *anchor.Store
	kernel    *kernel.Kernel
	telemetry *observability.Provider

	backend  storeledger.Backend
	revFile  *revocation.FileRegistry
	revRedis *revocation.RedisRegistry
}

func buildRuntime(ctx context.Context, cfg *config.Config, logOut io.Writer) (_ *runtime, err error) {
	logger, err := observability.NewLogger(logOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	if rt.policy, err = config.LoadPolicy(cfg.PolicyFile); err != nil {
		return nil, err
	}

	if cfg.AnchorSeed != "" {
		rt.anchor, err = anchor.NewFromSeed([]byte(cfg.AnchorSeed), cfg.AnchorKeyID, rt.policy.AnchorDiameter)
	} else {
		logger.WarnContext(ctx, "ANCHOR_SEED not set, using an ephemeral anchor; persisted history will not verify after restart")
		rt.anchor, err = anchor.NewRandom(cfg.AnchorKeyID, rt.policy.AnchorDiameter)
	}
	if err != nil {
		return nil, err
	}

	registry, err := rt.openRegistry(ctx)
	if err != nil {
		return nil, err
	}

	val, err := validator.New(validator.Config{
		MaxTau:        rt.policy.MaxTau,
		MinPhi:        rt.policy.MinPhi,
		AdmissionExpr: rt.policy.AdmissionExpr,
	}, registry)
	if err != nil {
		return nil, err
	}
	val.WithAnchor(rt.anchor)
	cur, err := curator.New(curator.Config{
		K:             rt.policy.LipschitzK,
		StripFraction: rt.policy.StripFraction,
		MaxIterations: rt.policy.MaxIterations,
		Epsilon:       rt.policy.Epsilon,
		MaxRatio:      rt.policy.MaxRatio,
	}, nil)
	if err != nil {
		return nil, err
	}

	lopts := []ledger.Option{
		ledger.WithVerifier(rt.anchor.Verifier()),
		ledger.WithProofVerifier(rt.anchor.ProofVerifier()),
		ledger.WithSigner(rt.anchor.Signer()),
		ledger.WithLogger(logger),
	}
	if rt.backend, err = storeledger.Open(ctx, cfg.DatabaseURL); err != nil {
		return nil, err
	}
	var (
		genes    *ledger.Ledger
		refusals *ledger.RefusalLog
	)
	if rt.backend != nil {
		if genes, err = ledger.Load(ctx, rt.backend, lopts...); err != nil {
			return nil, fmt.Errorf("load ledger: %w", err)
		}
		if refusals, err = ledger.LoadRefusalLog(ctx, rt.backend, lopts...); err != nil {
			return nil, fmt.Errorf("load refusal log: %w", err)
		}
	} else {
		genes = ledger.New(lopts...)
		refusals = ledger.NewRefusalLog(lopts...)
	}

	rt.telemetry, err = observability.New(ctx, &observability.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRate:     1.0,
		Enabled:        cfg.OTelEnabled,
		Insecure:       true,
	}, logger)
	if err != nil {
		return nil, err
	}
	metrics, err := observability.NewKernelMetrics(rt.telemetry.Meter())
	if err != nil {
		return nil, err
	}

	rt.kernel, err = kernel.New(kernel.Policy{
		Version:            rt.policy.Version,
		ActorID:            rt.policy.ActorID,
		RevocationRef:      rt.policy.RevocationRef,
		DefaultTau:         rt.policy.DefaultTau,
		DefaultPhi:         rt.policy.DefaultPhi,
		WitnessQuorum:      rt.policy.WitnessQuorum,
		AttestationTimeout: cfg.AttestationTimeout,
	}, kernel.Deps{
		Anchor:    rt.anchor,
		Validator: val,
		Curator:   cur,
		Repair:    repair.NewEngine(cur, logger),
		Ledger:    genes,
		Refusals:  refusals,
		Prover:    rt.anchor.Prover(),
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "kernel ready",
		"anchor", rt.anchor.Anchor().RootHash,
		"policy_version", rt.policy.Version,
		"entries", genes.Len(),
		"refusals", refusals.Len(),
	)
	return rt, nil
}

// openRegistry prefers Redis, then a watched file, then an empty in-memory set.
func (rt *runtime) openRegistry(ctx context.Context) (revocation.Registry, error) {
	switch {
	case rt.cfg.RedisAddr != "":
		r := revocation.NewRedisRegistry(rt.cfg.RedisAddr, rt.cfg.RedisPassword, 0, revocation.DefaultRedisKey)
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("revocation redis %s: %w", rt.cfg.RedisAddr, err)
		}
		rt.revRedis = r
		return r, nil
	case rt.cfg.RevocationFile != "":
		r, err := revocation.NewFileRegistry(rt.cfg.RevocationFile, rt.logger)
		if err != nil {
			return nil, err
		}
		rt.revFile = r
		return r, nil
	default:
		return revocation.NewMemoryRegistry(), nil
	}
}

// Close releases everything buildRuntime opened.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.telemetry != nil {
		errs = append(errs, rt.telemetry.Shutdown(ctx))
	}
	if rt.revRedis != nil {
		errs = append(errs, rt.revRedis.Close())
	}
	if rt.backend != nil {
		errs = append(errs, rt.backend.Close())
	}
	return errors.Join(errs...)
}

// loadRuntime reads the environment and wires a runtime for a subcommand.
func loadRuntime(ctx context.Context, logOut io.Writer) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return buildRuntime(ctx, cfg, logOut)
}
