// Package flow implements the flow tree and its single-threaded
// interpreter (spec.md §4.6), translated field-for-field from the
// original implementation's action-flow crate (types.rs) into Go
// structs. FlowNode stays an interface with one concrete type per
// variant and a type switch in the interpreter, the "interface + type
// switch" idiom the rest of this codebase already uses in place of a
// tagged union (coretypes.AnchorDescriptor takes the other approach,
// a kind-tagged struct, where the variants are flatter leaves; FlowNode's
// variants recursively nest other FlowNodes, so a real Go interface
// reads more naturally here).
package flow

import (
	"time"

	"github.com/soulbrowser/soulbrowser/internal/coretypes"
	"github.com/soulbrowser/soulbrowser/internal/primitives"
	"github.com/soulbrowser/soulbrowser/internal/scheduler"
)

// Flow is a complete, named flow tree.
type Flow struct {
	ID                    string
	Name                  string
	Description           string
	Root                  FlowNode
	TimeoutMs             int64
	DefaultFailureStrategy FailureStrategy
	Metadata              map[string]interface{}
}

// NewFlow builds a Flow with spec.md's default timeout (300000ms) and
// Abort as the default failure strategy.
func NewFlow(id, name string, root FlowNode) Flow {
	return Flow{
		ID:                     id,
		Name:                   name,
		Root:                   root,
		TimeoutMs:              300_000,
		DefaultFailureStrategy: FailureStrategy{Kind: StrategyAbort},
		Metadata:               make(map[string]interface{}),
	}
}

// FlowNode is implemented by every node kind: Sequence, Parallel,
// Conditional, Loop, Action.
type FlowNode interface {
	flowNode()
}

// SequenceNode runs its steps left to right.
type SequenceNode struct {
	Steps []FlowNode
}

func (SequenceNode) flowNode() {}

// ParallelNode runs its steps concurrently (each on its own route's
// scheduler lane). WaitAll requires every step to succeed; otherwise the
// node returns on the first success and cancels the rest.
type ParallelNode struct {
	Steps   []FlowNode
	WaitAll bool
}

func (ParallelNode) flowNode() {}

// ConditionalNode branches on Condition.
type ConditionalNode struct {
	Condition FlowCondition
	Then      FlowNode
	Else      FlowNode // nil means no else branch
}

func (ConditionalNode) flowNode() {}

// LoopNode repeats Body according to Condition, up to MaxIterations.
type LoopNode struct {
	Body          FlowNode
	Condition     LoopCondition
	MaxIterations int
}

func (LoopNode) flowNode() {}

// ActionNode executes a single primitive call.
type ActionNode struct {
	ID              string
	Action          ActionStep
	Priority        scheduler.Priority
	FailureStrategy *FailureStrategy // nil means inherit the flow's default
	Fallback        FlowNode         // consulted only when FailureStrategy.Kind == StrategyFallback
}

func (ActionNode) flowNode() {}

// NewActionNode builds an ActionNode at scheduler.PriorityStandard, the
// priority spec.md's own scheduler examples use for ordinary actions.
func NewActionNode(id string, action ActionStep) ActionNode {
	return ActionNode{ID: id, Action: action, Priority: scheduler.PriorityStandard}
}

// FlowConditionKind discriminates FlowCondition's variants.
type FlowConditionKind int

const (
	CondElementExists FlowConditionKind = iota
	CondElementVisible
	CondUrlMatches
	CondTitleMatches
	CondJsEvaluates
	CondPreviousStepSucceeded
	CondVariableEquals
	CondAnd
	CondOr
	CondNot
)

// FlowCondition is a boolean combinator over element/page/variable state.
// Unlike FlowNode, its leaf variants are flat enough that a kind-tagged
// struct (coretypes.AnchorDescriptor's idiom) reads more naturally than
// ten more interface types.
type FlowCondition struct {
	Kind FlowConditionKind `json:"kind"`

	Anchor  coretypes.AnchorDescriptor `json:"anchor,omitempty"`   // ElementExists / ElementVisible
	Pattern string                     `json:"pattern,omitempty"` // UrlMatches / TitleMatches (regex) / JsEvaluates (expr)
	VarName string                     `json:"var_name,omitempty"`
	VarWant interface{}                `json:"var_want,omitempty"` // VariableEquals

	Sub []FlowCondition `json:"sub,omitempty"` // And / Or
	Not *FlowCondition  `json:"not,omitempty"`
}

// LoopConditionKind discriminates LoopCondition's variants.
type LoopConditionKind int

const (
	LoopWhile LoopConditionKind = iota
	LoopUntil
	LoopCount
	LoopInfinite
)

// LoopCondition controls how many times a LoopNode's body repeats.
type LoopCondition struct {
	Kind      LoopConditionKind `json:"kind"`
	Condition FlowCondition     `json:"condition,omitempty"` // While / Until
	Count     int               `json:"count,omitempty"`
}

// ActionStepKind discriminates ActionStep's variants.
type ActionStepKind int

const (
	ActionNavigate ActionStepKind = iota
	ActionClick
	ActionTypeText
	ActionSelect
	ActionScroll
	ActionWait
)

// ActionStep is the payload of an ActionNode: exactly one primitive call,
// mirroring the original implementation's ActionType enum (Custom is
// dropped: spec.md names no extensibility point for it and nothing in
// this codebase consumes it).
type ActionStep struct {
	Kind ActionStepKind `json:"kind"`

	URL    string                     `json:"url,omitempty"`    // Navigate
	Anchor coretypes.AnchorDescriptor `json:"anchor,omitempty"` // Click / TypeText / Select / Scroll (element form)
	Text   string                     `json:"text,omitempty"`   // TypeText
	Option string                     `json:"option,omitempty"` // Select

	ScrollByX float64 `json:"scroll_by_x,omitempty"` // Scroll
	ScrollByY float64 `json:"scroll_by_y,omitempty"`
	ScrollWindow bool `json:"scroll_window,omitempty"` // Scroll: true scrolls the viewport instead of Anchor

	WaitCondition primitives.WaitCondition `json:"wait_condition,omitempty"` // Wait
	TimeoutMs     int64                    `json:"timeout_ms,omitempty"`     // Wait / composes with ExecCtx's own deadline

	WaitTier coretypes.WaitTier `json:"wait_tier,omitempty"` // Navigate / Click / TypeText / Select / Scroll
}

// FailureStrategyKind discriminates FailureStrategy's variants.
type FailureStrategyKind int

const (
	StrategyAbort FailureStrategyKind = iota
	StrategyContinue
	StrategyRetry
	StrategyFallback
)

// FailureStrategy says what happens when an ActionNode's primitive call
// fails.
type FailureStrategy struct {
	Kind        FailureStrategyKind `json:"kind"`
	MaxAttempts int                 `json:"max_attempts,omitempty"` // Retry
	BackoffMs   int64               `json:"backoff_ms,omitempty"`  // Retry: base backoff, doubled per attempt, capped at 30s
}

// maxRetryBackoff caps Retry's exponential backoff at 30 seconds
// (spec.md §4.6).
const maxRetryBackoff = 30 * time.Second

// FlowContext is threaded through the whole interpretation: accumulated
// variables, whether the previous step succeeded, and the current loop
// iteration count.
type FlowContext struct {
	Variables           map[string]interface{}
	PreviousStepSuccess bool
	IterationCount      int
}

// NewFlowContext returns an empty FlowContext.
func NewFlowContext() *FlowContext {
	return &FlowContext{Variables: make(map[string]interface{})}
}

// StepResult is the outcome of one ActionNode's execution, including
// retries.
type StepResult struct {
	StepID        string                  `json:"step_id"`
	StepType      string                  `json:"step_type"`
	Success       bool                    `json:"success"`
	ActionReport  *coretypes.ActionReport `json:"action_report,omitempty"`
	StartedAt     time.Time               `json:"started_at"`
	FinishedAt    time.Time               `json:"finished_at"`
	LatencyMs     int64                   `json:"latency_ms"`
	RetryAttempts int                     `json:"retry_attempts,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

func newStepResult(id, stepType string) *StepResult {
	now := time.Now()
	return &StepResult{StepID: id, StepType: stepType, StartedAt: now, FinishedAt: now}
}

func (r *StepResult) finish() *StepResult {
	r.FinishedAt = time.Now()
	r.LatencyMs = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	return r
}

// FlowResult is the outcome of a complete flow run.
type FlowResult struct {
	FlowID      string                 `json:"flow_id"`
	Success     bool                   `json:"success"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at"`
	LatencyMs   int64                  `json:"latency_ms"`
	StepResults []StepResult           `json:"step_results,omitempty"`
	Variables   map[string]interface{} `json:"variables,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

func newFlowResult(flowID string) *FlowResult {
	now := time.Now()
	return &FlowResult{FlowID: flowID, StartedAt: now, FinishedAt: now, Variables: make(map[string]interface{})}
}

func (r *FlowResult) finish() *FlowResult {
	r.FinishedAt = time.Now()
	r.LatencyMs = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	return r
}
