package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed policy.schema.json
var policySchema string

const policySchemaURL = "https://govkernel.schemas.local/policy.schema.json"

// Policy is the kernel's threshold document. Omitted optional fields take
// the defaults below; thresholds are fixed for the process lifetime.
type Policy struct {
	Version        string  `json:"version"`
	MaxTau         float64 `json:"max_tau"`
	MinPhi         float64 `json:"min_phi"`
	LipschitzK     float64 `json:"lipschitz_k"`
	MaxRatio       float64 `json:"max_ratio"`
	AnchorDiameter float64 `json:"anchor_diameter"`
	StripFraction  float64 `json:"strip_fraction"`
	MaxIterations  int     `json:"max_iterations"`
	Epsilon        float64 `json:"epsilon"`

	ActorID       string  `json:"actor_id"`
	RevocationRef string  `json:"revocation_ref"`
	DefaultTau    float64 `json:"default_tau"`
	DefaultPhi    float64 `json:"default_phi"`

	// WitnessQuorum names the witnesses whose quorum gates admission. When
	// non-empty every request must carry at least one witness.
	WitnessQuorum []string `json:"witness_quorum,omitempty"`

	AdmissionExpr string `json:"admission_expr,omitempty"`

	semver *semver.Version
}

// policyDoc is the YAML form. Thresholds are pointers so an explicit zero
// survives decoding.
type policyDoc struct {
	Version        string   `yaml:"version"`
	MaxTau         *float64 `yaml:"max_tau"`
	MinPhi         *float64 `yaml:"min_phi"`
	LipschitzK     *float64 `yaml:"lipschitz_k"`
	MaxRatio       *float64 `yaml:"max_ratio"`
	AnchorDiameter *float64 `yaml:"anchor_diameter"`
	StripFraction  *float64 `yaml:"strip_fraction"`
	MaxIterations  *int     `yaml:"max_iterations"`
	Epsilon        *float64 `yaml:"epsilon"`

	ActorID       string   `yaml:"actor_id"`
	RevocationRef string   `yaml:"revocation_ref"`
	DefaultTau    float64  `yaml:"default_tau"`
	DefaultPhi    float64  `yaml:"default_phi"`
	WitnessQuorum []string `yaml:"witness_quorum"`
	AdmissionExpr string   `yaml:"admission_expr"`
}

func (d policyDoc) policy() *Policy {
	return &Policy{
		Version:        d.Version,
		MaxTau:         orDefault(d.MaxTau, 1.0),
		MinPhi:         orDefault(d.MinPhi, 5.0),
		LipschitzK:     orDefault(d.LipschitzK, 1/1.618033988749895),
		MaxRatio:       orDefault(d.MaxRatio, 10.0),
		AnchorDiameter: orDefault(d.AnchorDiameter, 100.0),
		StripFraction:  orDefault(d.StripFraction, 0.10),
		MaxIterations:  orDefault(d.MaxIterations, 100),
		Epsilon:        orDefault(d.Epsilon, 1e-9),
		ActorID:        d.ActorID,
		RevocationRef:  d.RevocationRef,
		DefaultTau:     d.DefaultTau,
		DefaultPhi:     d.DefaultPhi,
		WitnessQuorum:  d.WitnessQuorum,
		AdmissionExpr:  d.AdmissionExpr,
	}
}

func orDefault[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

// DefaultPolicy is used when no policy file is configured.
func DefaultPolicy() *Policy {
	p := policyDoc{
		Version:       "1.0.0",
		ActorID:       "operator",
		RevocationRef: "operator-grant",
		DefaultTau:    0.5,
		DefaultPhi:    7.0,
	}.policy()
	p.semver = semver.MustParse(p.Version)
	return p
}

// SemVer returns the parsed policy version.
func (p *Policy) SemVer() *semver.Version { return p.semver }

// LoadPolicy reads a YAML policy file, validates it against the embedded
// schema and parses its version. An empty path yields DefaultPolicy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load policy %q: %w", path, err)
	}
	return ParsePolicy(data)
}

// ParsePolicy validates and decodes a YAML policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	// Round-trip through JSON so the validator sees JSON types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("policy schema validation failed: %w", err)
	}

	var d policyDoc
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	v, err := semver.NewVersion(d.Version)
	if err != nil {
		return nil, fmt.Errorf("policy version %q: %w", d.Version, err)
	}
	p := d.policy()
	p.semver = v
	return p, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(policySchemaURL, strings.NewReader(policySchema)); err != nil {
		return nil, fmt.Errorf("policy schema load failed: %w", err)
	}
	schema, err := c.Compile(policySchemaURL)
	if err != nil {
		return nil, fmt.Errorf("policy schema compile failed: %w", err)
	}
	return schema, nil
}
