package flow

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soulbrowser/soulbrowser/internal/apperrors"
	"github.com/soulbrowser/soulbrowser/internal/coretypes"
	"github.com/soulbrowser/soulbrowser/internal/primitives"
	"github.com/soulbrowser/soulbrowser/internal/scheduler"
)

// Runner is the subset of *primitives.Primitives the interpreter drives:
// the six action calls plus the three read-only probes Conditional/Loop
// nodes consult. Interface-typed so a flow can be exercised in tests
// without a live browser; *primitives.Primitives satisfies it as-is.
type Runner interface {
	Navigate(ec *coretypes.ExecCtx, url string, wait coretypes.WaitTier) (coretypes.ActionReport, *apperrors.PrimitiveError)
	Click(ec *coretypes.ExecCtx, anchor coretypes.AnchorDescriptor, wait coretypes.WaitTier) (coretypes.ActionReport, *apperrors.PrimitiveError)
	Type(ec *coretypes.ExecCtx, anchor coretypes.AnchorDescriptor, text string, wait coretypes.WaitTier) (coretypes.ActionReport, *apperrors.PrimitiveError)
	Select(ec *coretypes.ExecCtx, anchor coretypes.AnchorDescriptor, optionValue string, wait coretypes.WaitTier) (coretypes.ActionReport, *apperrors.PrimitiveError)
	Scroll(ec *coretypes.ExecCtx, anchor *coretypes.AnchorDescriptor, deltaX, deltaY float64, wait coretypes.WaitTier) (coretypes.ActionReport, *apperrors.PrimitiveError)
	Wait(ec *coretypes.ExecCtx, condition primitives.WaitCondition) (coretypes.ActionReport, *apperrors.PrimitiveError)
	Probe(ec *coretypes.ExecCtx, anchor coretypes.AnchorDescriptor) (primitives.ElementProbe, *apperrors.PrimitiveError)
	ReadPageState(ec *coretypes.ExecCtx) (primitives.PageState, *apperrors.PrimitiveError)
	EvaluateExpr(ec *coretypes.ExecCtx, expr string) (bool, *apperrors.PrimitiveError)
}

// Interpreter walks a Flow's tree once per Run, carrying a single
// FlowContext through every node the way the original implementation's
// action-flow crate describes: "a single-threaded interpreter over the
// flow tree." Parallel nodes are the one place several branches actually
// run concurrently, each serialized against the others only by whatever
// mutex keys their own action routes land on.
type Interpreter struct {
	engine   *Engine
	prims    Runner
	logger   *zap.Logger
	observer func(flowID string, step StepResult)
}

// NewInterpreter builds an Interpreter. engine is where Action nodes are
// submitted so they pick up scheduler fairness and priority; prims
// supplies the read-only probes Conditional/Loop nodes consult.
func NewInterpreter(engine *Engine, prims Runner, logger *zap.Logger) *Interpreter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{engine: engine, prims: prims, logger: logger}
}

// SetObserver registers a callback invoked synchronously every time an
// ActionNode's StepResult is finalized (success or failure), before its
// containing node has necessarily finished. The control surface uses this
// to stream StepResults over SSE as a flow runs rather than only once the
// whole run completes.
func (in *Interpreter) SetObserver(observer func(flowID string, step StepResult)) {
	in.observer = observer
}

func (in *Interpreter) notify(flowID string, step StepResult) {
	if in.observer != nil {
		in.observer(flowID, step)
	}
}

// Run executes flow's root node against route, within the flow's own
// timeout, and returns the accumulated FlowResult. The root ExecCtx's
// cancellation is propagated to every Action node it dispatches, so a
// flow-level timeout tears down all outstanding scheduler jobs at once.
func (in *Interpreter) Run(parent context.Context, flow Flow, route coretypes.ExecRoute, policy coretypes.PolicyView) *FlowResult {
	result := newFlowResult(flow.ID)
	fc := NewFlowContext()

	deadline := time.Now().Add(time.Duration(flow.TimeoutMs) * time.Millisecond)
	rootCtx, cancel := coretypes.NewExecCtx(parent, route, deadline, coretypes.ActionId(flow.ID), "", policy)
	defer cancel()

	err := in.execNode(rootCtx, flow.Root, fc, route, deadline, flow.DefaultFailureStrategy, result)
	result.Variables = fc.Variables
	if err != nil {
		result.Success = false
		result.Error = err.Error()
	} else {
		result.Success = true
	}
	return result.finish()
}

// execNode dispatches on node's concrete type (the "interface + type
// switch" idiom FlowNode documents) and returns the first error that
// should abort the enclosing node, or nil.
func (in *Interpreter) execNode(ec *coretypes.ExecCtx, node FlowNode, fc *FlowContext, route coretypes.ExecRoute, deadline time.Time, inherited FailureStrategy, result *FlowResult) error {
	if ec.IsCancelled() {
		return apperrors.Interrupted()
	}
	if ec.IsExpired() {
		return fmt.Errorf("deadline exceeded")
	}

	switch n := node.(type) {
	case SequenceNode:
		return in.execSequence(ec, n, fc, route, deadline, inherited, result)
	case ParallelNode:
		return in.execParallel(ec, n, fc, route, deadline, inherited, result)
	case ConditionalNode:
		return in.execConditional(ec, n, fc, route, deadline, inherited, result)
	case LoopNode:
		return in.execLoop(ec, n, fc, route, deadline, inherited, result)
	case ActionNode:
		return in.execAction(ec, n, fc, route, deadline, inherited, result)
	default:
		return fmt.Errorf("unknown flow node type %T", node)
	}
}

func (in *Interpreter) execSequence(ec *coretypes.ExecCtx, n SequenceNode, fc *FlowContext, route coretypes.ExecRoute, deadline time.Time, inherited FailureStrategy, result *FlowResult) error {
	for _, step := range n.Steps {
		// A Continue failure strategy is absorbed inside execAction itself
		// (it records the failed StepResult but returns nil), so any error
		// reaching here is one the sequence must abort on.
		if err := in.execNode(ec, step, fc, route, deadline, inherited, result); err != nil {
			return err
		}
	}
	return nil
}

// execParallel runs every step concurrently on independent ExecCtx
// tokens derived from ec, so a later cancellation of ec tears down every
// branch. WaitAll requires all to succeed; otherwise the node succeeds on
// the first success and cancels the rest.
func (in *Interpreter) execParallel(ec *coretypes.ExecCtx, n ParallelNode, fc *FlowContext, route coretypes.ExecRoute, deadline time.Time, inherited FailureStrategy, result *FlowResult) error {
	if len(n.Steps) == 0 {
		return nil
	}

	type branchOutcome struct {
		err error
	}

	outcomes := make(chan branchOutcome, len(n.Steps))
	var mu sync.Mutex
	branchCtx, cancelAll := context.WithCancel(ec.Context())
	defer cancelAll()

	var wg sync.WaitGroup
	for i, step := range n.Steps {
		step := step
		branchID := coretypes.ActionId(fmt.Sprintf("%s/%d", ec.ActionID, i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			branchEc, cancel := coretypes.NewExecCtx(branchCtx, route, deadline, branchID, ec.TaskID, ec.Policy)
			defer cancel()

			branchFc := &FlowContext{Variables: fc.Variables, IterationCount: fc.IterationCount}
			localResult := &FlowResult{FlowID: result.FlowID}

			err := in.execNode(branchEc, step, branchFc, route, deadline, inherited, localResult)

			mu.Lock()
			result.StepResults = append(result.StepResults, localResult.StepResults...)
			mu.Unlock()

			outcomes <- branchOutcome{err: err}
		}()
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	var firstErr error
	succeeded := 0
	for outcome := range outcomes {
		if outcome.err == nil {
			succeeded++
			if !n.WaitAll {
				cancelAll()
			}
		} else if firstErr == nil {
			firstErr = outcome.err
		}
	}

	if n.WaitAll {
		return firstErr
	}
	if succeeded > 0 {
		return nil
	}
	return firstErr
}

func (in *Interpreter) execConditional(ec *coretypes.ExecCtx, n ConditionalNode, fc *FlowContext, route coretypes.ExecRoute, deadline time.Time, inherited FailureStrategy, result *FlowResult) error {
	ok, err := in.evalCondition(ec, n.Condition, fc)
	if err != nil {
		return err
	}
	if ok {
		return in.execNode(ec, n.Then, fc, route, deadline, inherited, result)
	}
	if n.Else != nil {
		return in.execNode(ec, n.Else, fc, route, deadline, inherited, result)
	}
	return nil
}

func (in *Interpreter) execLoop(ec *coretypes.ExecCtx, n LoopNode, fc *FlowContext, route coretypes.ExecRoute, deadline time.Time, inherited FailureStrategy, result *FlowResult) error {
	max := n.MaxIterations
	if max <= 0 {
		max = 10000 // Infinite/unbounded loops still need a hard backstop.
	}

	for i := 0; i < max; i++ {
		switch n.Condition.Kind {
		case LoopWhile:
			ok, err := in.evalCondition(ec, n.Condition.Condition, fc)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		case LoopUntil:
			ok, err := in.evalCondition(ec, n.Condition.Condition, fc)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		case LoopCount:
			if i >= n.Condition.Count {
				return nil
			}
		case LoopInfinite:
			// bounded only by max above
		}

		if err := in.execNode(ec, n.Body, fc, route, deadline, inherited, result); err != nil {
			return err
		}
		fc.IterationCount++
	}
	return nil
}

func (in *Interpreter) execAction(ec *coretypes.ExecCtx, n ActionNode, fc *FlowContext, route coretypes.ExecRoute, deadline time.Time, inherited FailureStrategy, result *FlowResult) error {
	strategy := inherited
	if n.FailureStrategy != nil {
		strategy = *n.FailureStrategy
	}

	step := newStepResult(n.ID, actionStepName(n.Action.Kind))
	var lastErr *apperrors.PrimitiveError
	attempts := 0
	maxAttempts := 1
	if strategy.Kind == StrategyRetry && strategy.MaxAttempts > 0 {
		maxAttempts = strategy.MaxAttempts
	}

	priority := n.Priority

	for attempts < maxAttempts {
		if attempts > 0 {
			backoff := time.Duration(strategy.BackoffMs) * time.Millisecond * time.Duration(1<<uint(attempts-1))
			if backoff > maxRetryBackoff {
				backoff = maxRetryBackoff
			}
			select {
			case <-time.After(backoff):
			case <-ec.Context().Done():
				lastErr = apperrors.Interrupted()
				attempts++
				continue
			}
		}
		attempts++

		report, perr := in.dispatchAction(ec, route, n.Action, priority)
		if perr == nil {
			step.Success = true
			step.ActionReport = &report
			step.RetryAttempts = attempts - 1
			step.finish()
			result.StepResults = append(result.StepResults, *step)
			in.notify(result.FlowID, *step)
			fc.PreviousStepSuccess = true
			return nil
		}

		lastErr = perr
		if strategy.Kind != StrategyRetry || !perr.Kind.IsRetryable() {
			break
		}
	}

	step.Success = false
	step.RetryAttempts = attempts - 1
	if lastErr != nil {
		step.Error = lastErr.Error()
	}
	step.finish()
	result.StepResults = append(result.StepResults, *step)
	in.notify(result.FlowID, *step)
	fc.PreviousStepSuccess = false

	switch strategy.Kind {
	case StrategyContinue:
		return nil
	case StrategyFallback:
		if n.Fallback != nil {
			return in.execNode(ec, n.Fallback, fc, route, deadline, strategy, result)
		}
		return lastErr
	default:
		return lastErr
	}
}

func (in *Interpreter) dispatchAction(ec *coretypes.ExecCtx, route coretypes.ExecRoute, action ActionStep, priority scheduler.Priority) (coretypes.ActionReport, *apperrors.PrimitiveError) {
	work := func(workEc *coretypes.ExecCtx) (coretypes.ActionReport, *apperrors.PrimitiveError) {
		switch action.Kind {
		case ActionNavigate:
			return in.prims.Navigate(workEc, action.URL, action.WaitTier)
		case ActionClick:
			return in.prims.Click(workEc, action.Anchor, action.WaitTier)
		case ActionTypeText:
			return in.prims.Type(workEc, action.Anchor, action.Text, action.WaitTier)
		case ActionSelect:
			return in.prims.Select(workEc, action.Anchor, action.Option, action.WaitTier)
		case ActionScroll:
			var anchor *coretypes.AnchorDescriptor
			if !action.ScrollWindow {
				a := action.Anchor
				anchor = &a
			}
			return in.prims.Scroll(workEc, anchor, action.ScrollByX, action.ScrollByY, action.WaitTier)
		case ActionWait:
			return in.prims.Wait(workEc, action.WaitCondition)
		default:
			return coretypes.ActionReport{}, apperrors.NewPrimitiveError(apperrors.ActInternal, "unknown action step kind", nil)
		}
	}
	return in.engine.Dispatch(ec, priority, work)
}

func actionStepName(kind ActionStepKind) string {
	switch kind {
	case ActionNavigate:
		return "navigate"
	case ActionClick:
		return "click"
	case ActionTypeText:
		return "type"
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

// evalCondition evaluates a FlowCondition against the current page and
// FlowContext.
func (in *Interpreter) evalCondition(ec *coretypes.ExecCtx, cond FlowCondition, fc *FlowContext) (bool, error) {
	switch cond.Kind {
	case CondElementExists:
		probe, perr := in.prims.Probe(ec, cond.Anchor)
		if perr != nil {
			return false, perr
		}
		return probe.Exists, nil
	case CondElementVisible:
		probe, perr := in.prims.Probe(ec, cond.Anchor)
		if perr != nil {
			return false, perr
		}
		return probe.Visible, nil
	case CondUrlMatches:
		state, perr := in.prims.ReadPageState(ec)
		if perr != nil {
			return false, perr
		}
		re, err := regexp.Compile(cond.Pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(state.URL), nil
	case CondTitleMatches:
		state, perr := in.prims.ReadPageState(ec)
		if perr != nil {
			return false, perr
		}
		re, err := regexp.Compile(cond.Pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(state.Title), nil
	case CondJsEvaluates:
		ok, perr := in.prims.EvaluateExpr(ec, cond.Pattern)
		if perr != nil {
			return false, perr
		}
		return ok, nil
	case CondPreviousStepSucceeded:
		return fc.PreviousStepSuccess, nil
	case CondVariableEquals:
		got, ok := fc.Variables[cond.VarName]
		if !ok {
			return false, nil
		}
		return got == cond.VarWant, nil
	case CondAnd:
		for _, sub := range cond.Sub {
			ok, err := in.evalCondition(ec, sub, fc)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case CondOr:
		for _, sub := range cond.Sub {
			ok, err := in.evalCondition(ec, sub, fc)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case CondNot:
		if cond.Not == nil {
			return true, nil
		}
		ok, err := in.evalCondition(ec, *cond.Not, fc)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, fmt.Errorf("unknown flow condition kind %d", cond.Kind)
	}
}
