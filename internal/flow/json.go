package flow

import (
	"encoding/json"
	"fmt"
)

// This file gives the flow tree a JSON wire format for the HTTP control
// surface (POST /api/v1/flows). FlowNode is a Go interface with no
// encoding/json support of its own, so every concrete node type gets a
// "type" discriminator and every struct holding a FlowNode field (directly
// or inside a slice) implements MarshalJSON/UnmarshalJSON to route through
// it — the same tagged-union shape the original action-flow crate gets for
// free from serde's enum representation.

func (k FlowConditionKind) String() string {
	switch k {
	case CondElementExists:
		return "element_exists"
	case CondElementVisible:
		return "element_visible"
	case CondUrlMatches:
		return "url_matches"
	case CondTitleMatches:
		return "title_matches"
	case CondJsEvaluates:
		return "js_evaluates"
	case CondPreviousStepSucceeded:
		return "previous_step_succeeded"
	case CondVariableEquals:
		return "variable_equals"
	case CondAnd:
		return "and"
	case CondOr:
		return "or"
	case CondNot:
		return "not"
	default:
		return "unknown"
	}
}

func (k FlowConditionKind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *FlowConditionKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "element_exists":
		*k = CondElementExists
	case "element_visible":
		*k = CondElementVisible
	case "url_matches":
		*k = CondUrlMatches
	case "title_matches":
		*k = CondTitleMatches
	case "js_evaluates":
		*k = CondJsEvaluates
	case "previous_step_succeeded":
		*k = CondPreviousStepSucceeded
	case "variable_equals":
		*k = CondVariableEquals
	case "and":
		*k = CondAnd
	case "or":
		*k = CondOr
	case "not":
		*k = CondNot
	default:
		return fmt.Errorf("flow: unknown condition kind %q", s)
	}
	return nil
}

func (k LoopConditionKind) String() string {
	switch k {
	case LoopWhile:
		return "while"
	case LoopUntil:
		return "until"
	case LoopCount:
		return "count"
	case LoopInfinite:
		return "infinite"
	default:
		return "unknown"
	}
}

func (k LoopConditionKind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *LoopConditionKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "while":
		*k = LoopWhile
	case "until":
		*k = LoopUntil
	case "count":
		*k = LoopCount
	case "infinite":
		*k = LoopInfinite
	default:
		return fmt.Errorf("flow: unknown loop condition kind %q", s)
	}
	return nil
}

func (k ActionStepKind) String() string {
	switch k {
	case ActionNavigate:
		return "navigate"
	case ActionClick:
		return "click"
	case ActionTypeText:
		return "type_text"
	case ActionSelect:
		return "select"
	case ActionScroll:
		return "scroll"
	case ActionWait:
		return "wait"
	default:
		return "unknown"
	}
}

func (k ActionStepKind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *ActionStepKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "navigate":
		*k = ActionNavigate
	case "click":
		*k = ActionClick
	case "type_text":
		*k = ActionTypeText
	case "select":
		*k = ActionSelect
	case "scroll":
		*k = ActionScroll
	case "wait":
		*k = ActionWait
	default:
		return fmt.Errorf("flow: unknown action step kind %q", s)
	}
	return nil
}

func (k FailureStrategyKind) String() string {
	switch k {
	case StrategyAbort:
		return "abort"
	case StrategyContinue:
		return "continue"
	case StrategyRetry:
		return "retry"
	case StrategyFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

func (k FailureStrategyKind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *FailureStrategyKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "abort":
		*k = StrategyAbort
	case "continue":
		*k = StrategyContinue
	case "retry":
		*k = StrategyRetry
	case "fallback":
		*k = StrategyFallback
	default:
		return fmt.Errorf("flow: unknown failure strategy kind %q", s)
	}
	return nil
}

// nodeWire is the on-the-wire shape of any FlowNode: a "type" discriminator
// plus the union of every variant's fields (only the ones matching Type are
// populated on encode, only the ones matching Type are read on decode).
type nodeWire struct {
	Type string `json:"type"`

	// Sequence / Parallel
	Steps   []json.RawMessage `json:"steps,omitempty"`
	WaitAll bool              `json:"wait_all,omitempty"`

	// Conditional
	Condition *FlowCondition  `json:"condition,omitempty"`
	Then      json.RawMessage `json:"then,omitempty"`
	Else      json.RawMessage `json:"else,omitempty"`

	// Loop
	Body          json.RawMessage `json:"body,omitempty"`
	LoopCondition *LoopCondition  `json:"loop_condition,omitempty"`
	MaxIterations int             `json:"max_iterations,omitempty"`

	// Action
	ID              string           `json:"id,omitempty"`
	Action          *ActionStep      `json:"action,omitempty"`
	Priority        *json.RawMessage `json:"priority,omitempty"`
	FailureStrategy *FailureStrategy `json:"failure_strategy,omitempty"`
	Fallback        json.RawMessage  `json:"fallback,omitempty"`
}

// DecodeFlowNode parses a single JSON-encoded FlowNode, dispatching on its
// "type" discriminator.
func DecodeFlowNode(data []byte) (FlowNode, error) {
	var w nodeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("flow: decoding node: %w", err)
	}

	switch w.Type {
	case "sequence":
		steps, err := decodeNodes(w.Steps)
		if err != nil {
			return nil, err
		}
		return SequenceNode{Steps: steps}, nil

	case "parallel":
		steps, err := decodeNodes(w.Steps)
		if err != nil {
			return nil, err
		}
		return ParallelNode{Steps: steps, WaitAll: w.WaitAll}, nil

	case "conditional":
		if w.Condition == nil {
			return nil, fmt.Errorf("flow: conditional node missing condition")
		}
		then, err := decodeOptionalNode(w.Then)
		if err != nil {
			return nil, err
		}
		els, err := decodeOptionalNode(w.Else)
		if err != nil {
			return nil, err
		}
		return ConditionalNode{Condition: *w.Condition, Then: then, Else: els}, nil

	case "loop":
		body, err := decodeOptionalNode(w.Body)
		if err != nil {
			return nil, err
		}
		if w.LoopCondition == nil {
			return nil, fmt.Errorf("flow: loop node missing loop_condition")
		}
		return LoopNode{Body: body, Condition: *w.LoopCondition, MaxIterations: w.MaxIterations}, nil

	case "action":
		if w.Action == nil {
			return nil, fmt.Errorf("flow: action node missing action")
		}
		node := NewActionNode(w.ID, *w.Action)
		if w.Priority != nil {
			if err := json.Unmarshal(*w.Priority, &node.Priority); err != nil {
				return nil, fmt.Errorf("flow: decoding action priority: %w", err)
			}
		}
		node.FailureStrategy = w.FailureStrategy
		fallback, err := decodeOptionalNode(w.Fallback)
		if err != nil {
			return nil, err
		}
		node.Fallback = fallback
		return node, nil

	default:
		return nil, fmt.Errorf("flow: unknown node type %q", w.Type)
	}
}

func decodeNodes(raw []json.RawMessage) ([]FlowNode, error) {
	nodes := make([]FlowNode, len(raw))
	for i, r := range raw {
		n, err := DecodeFlowNode(r)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

func decodeOptionalNode(raw json.RawMessage) (FlowNode, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return DecodeFlowNode(raw)
}

// EncodeFlowNode renders a FlowNode to its wire form.
func EncodeFlowNode(n FlowNode) ([]byte, error) {
	if n == nil {
		return json.Marshal(nil)
	}
	switch v := n.(type) {
	case SequenceNode:
		return v.MarshalJSON()
	case ParallelNode:
		return v.MarshalJSON()
	case ConditionalNode:
		return v.MarshalJSON()
	case LoopNode:
		return v.MarshalJSON()
	case ActionNode:
		return v.MarshalJSON()
	default:
		return nil, fmt.Errorf("flow: unencodable node type %T", n)
	}
}

func encodeNodes(nodes []FlowNode) ([]json.RawMessage, error) {
	raw := make([]json.RawMessage, len(nodes))
	for i, n := range nodes {
		b, err := EncodeFlowNode(n)
		if err != nil {
			return nil, err
		}
		raw[i] = b
	}
	return raw, nil
}

func encodeOptionalNode(n FlowNode) (json.RawMessage, error) {
	if n == nil {
		return nil, nil
	}
	return EncodeFlowNode(n)
}

func (n SequenceNode) MarshalJSON() ([]byte, error) {
	steps, err := encodeNodes(n.Steps)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeWire{Type: "sequence", Steps: steps})
}

func (n ParallelNode) MarshalJSON() ([]byte, error) {
	steps, err := encodeNodes(n.Steps)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeWire{Type: "parallel", Steps: steps, WaitAll: n.WaitAll})
}

func (n ConditionalNode) MarshalJSON() ([]byte, error) {
	then, err := encodeOptionalNode(n.Then)
	if err != nil {
		return nil, err
	}
	els, err := encodeOptionalNode(n.Else)
	if err != nil {
		return nil, err
	}
	cond := n.Condition
	return json.Marshal(nodeWire{Type: "conditional", Condition: &cond, Then: then, Else: els})
}

func (n LoopNode) MarshalJSON() ([]byte, error) {
	body, err := encodeOptionalNode(n.Body)
	if err != nil {
		return nil, err
	}
	cond := n.Condition
	return json.Marshal(nodeWire{Type: "loop", Body: body, LoopCondition: &cond, MaxIterations: n.MaxIterations})
}

func (n ActionNode) MarshalJSON() ([]byte, error) {
	fallback, err := encodeOptionalNode(n.Fallback)
	if err != nil {
		return nil, err
	}
	priority, err := json.Marshal(n.Priority)
	if err != nil {
		return nil, err
	}
	rawPriority := json.RawMessage(priority)
	action := n.Action
	return json.Marshal(nodeWire{
		Type:            "action",
		ID:              n.ID,
		Action:          &action,
		Priority:        &rawPriority,
		FailureStrategy: n.FailureStrategy,
		Fallback:        fallback,
	})
}

// MarshalJSON renders a Flow, routing its polymorphic Root field through
// EncodeFlowNode.
func (f Flow) MarshalJSON() ([]byte, error) {
	root, err := EncodeFlowNode(f.Root)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		ID                     string                 `json:"id"`
		Name                   string                 `json:"name"`
		Description            string                 `json:"description,omitempty"`
		Root                   json.RawMessage        `json:"root"`
		TimeoutMs              int64                  `json:"timeout_ms"`
		DefaultFailureStrategy FailureStrategy        `json:"default_failure_strategy"`
		Metadata               map[string]interface{} `json:"metadata,omitempty"`
	}{
		ID:                     f.ID,
		Name:                   f.Name,
		Description:            f.Description,
		Root:                   root,
		TimeoutMs:              f.TimeoutMs,
		DefaultFailureStrategy: f.DefaultFailureStrategy,
		Metadata:               f.Metadata,
	})
}

// UnmarshalJSON parses a Flow, routing its polymorphic Root field through
// DecodeFlowNode.
func (f *Flow) UnmarshalJSON(data []byte) error {
	var w struct {
		ID                     string                 `json:"id"`
		Name                   string                 `json:"name"`
		Description            string                 `json:"description"`
		Root                   json.RawMessage        `json:"root"`
		TimeoutMs              int64                  `json:"timeout_ms"`
		DefaultFailureStrategy FailureStrategy        `json:"default_failure_strategy"`
		Metadata               map[string]interface{} `json:"metadata"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	root, err := DecodeFlowNode(w.Root)
	if err != nil {
		return err
	}
	*f = Flow{
		ID:                     w.ID,
		Name:                   w.Name,
		Description:            w.Description,
		Root:                   root,
		TimeoutMs:              w.TimeoutMs,
		DefaultFailureStrategy: w.DefaultFailureStrategy,
		Metadata:               w.Metadata,
	}
	if f.TimeoutMs == 0 {
		f.TimeoutMs = 300_000
	}
	if f.Metadata == nil {
		f.Metadata = make(map[string]interface{})
	}
	return nil
}
