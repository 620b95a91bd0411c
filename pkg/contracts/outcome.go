package contracts

import (
	"encoding/json"
	"fmt"
)

// OutcomeKind discriminates the variants of Outcome.
type OutcomeKind string

const (
	OutcomeExecuted  OutcomeKind = "EXECUTED"
	OutcomeRefused   OutcomeKind = "REFUSED"
	OutcomeQuiescent OutcomeKind = "QUIESCENT_NOOP"
)

// Outcome is the result of one kernel evaluation. Exactly one of the
// variants is populated; build values with Executed, Refused or Quiescent.
type Outcome struct {
	kind    OutcomeKind
	gene    *Gene
	refusal *RefusalRecord
	before  string
	state   string
}

// Executed wraps an accepted gene with the state hashes read before and
// after the commit.
func Executed(g Gene, stateBefore, stateAfter string) Outcome {
	return Outcome{kind: OutcomeExecuted, gene: &g, before: stateBefore, state: stateAfter}
}

// Refused wraps a refusal record.
func Refused(r RefusalRecord) Outcome {
	return Outcome{kind: OutcomeRefused, refusal: &r, before: r.StateHashBefore, state: r.StateHashAfter}
}

// Quiescent is the outcome for an empty proposal: nothing happened.
func Quiescent(stateHash string) Outcome {
	return Outcome{kind: OutcomeQuiescent, before: stateHash, state: stateHash}
}

func (o Outcome) Kind() OutcomeKind { return o.kind }

// StateHash is the kernel state hash after the evaluation.
func (o Outcome) StateHash() string { return o.state }

// StateHashBefore is the kernel state hash the evaluation started from.
func (o Outcome) StateHashBefore() string { return o.before }

// RequestHash is the canonical hash of the proposal, when one was computed.
func (o Outcome) RequestHash() string {
	switch {
	case o.gene != nil:
		return o.gene.Manifest.RequestHash
	case o.refusal != nil:
		return o.refusal.RequestHash
	default:
		return ""
	}
}

// Gene returns the accepted gene, if this is an Executed outcome.
func (o Outcome) Gene() (Gene, bool) {
	if o.kind != OutcomeExecuted || o.gene == nil {
		return Gene{}, false
	}
	return *o.gene, true
}

// Refusal returns the refusal record, if this is a Refused outcome.
func (o Outcome) Refusal() (RefusalRecord, bool) {
	if o.kind != OutcomeRefused || o.refusal == nil {
		return RefusalRecord{}, false
	}
	return *o.refusal, true
}

func (o Outcome) String() string {
	switch o.kind {
	case OutcomeExecuted:
		return fmt.Sprintf("EXECUTED(seq=%d)", o.gene.Sequence)
	case OutcomeRefused:
		return fmt.Sprintf("REFUSED(%s)", o.refusal.ReasonCode)
	case OutcomeQuiescent:
		return string(OutcomeQuiescent)
	default:
		return "UNKNOWN"
	}
}

type outcomeJSON struct {
	Kind            OutcomeKind    `json:"kind"`
	Gene            *Gene          `json:"gene,omitempty"`
	Refusal         *RefusalRecord `json:"refusal,omitempty"`
	RequestHash     string         `json:"request_hash,omitempty"`
	StateHashBefore string         `json:"state_hash_before"`
	StateHash       string         `json:"state_hash"`
}

// MarshalJSON renders the populated variant only.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(outcomeJSON{
		Kind:            o.kind,
		Gene:            o.gene,
		Refusal:         o.refusal,
		RequestHash:     o.RequestHash(),
		StateHashBefore: o.before,
		StateHash:       o.state,
	})
}

// UnmarshalJSON rejects payloads whose populated fields disagree with kind.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	var raw outcomeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case OutcomeExecuted:
		if raw.Gene == nil || raw.Refusal != nil {
			return fmt.Errorf("outcome %s must carry only a gene", raw.Kind)
		}
		*o = Executed(*raw.Gene, raw.StateHashBefore, raw.StateHash)
	case OutcomeRefused:
		if raw.Refusal == nil || raw.Gene != nil {
			return fmt.Errorf("outcome %s must carry only a refusal", raw.Kind)
		}
		*o = Refused(*raw.Refusal)
	case OutcomeQuiescent:
		if raw.Gene != nil || raw.Refusal != nil {
			return fmt.Errorf("outcome %s must be empty", raw.Kind)
		}
		*o = Quiescent(raw.StateHash)
	default:
		return fmt.Errorf("unknown outcome kind %q", raw.Kind)
	}
	return nil
}
