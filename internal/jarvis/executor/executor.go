// Package executor runs model-requested skills.
//
// Execute never fails: every outcome, including an unknown skill name,
// malformed arguments, a policy denial or a panic inside the skill, becomes a
// result string the model can read. ExecuteAll runs the requests of one
// model turn concurrently and returns their results in request order.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/jarvis/common/redact"
	"github.com/bdobrica/jarvis/internal/jarvis/conversation"
	"github.com/bdobrica/jarvis/internal/jarvis/observability"
	"github.com/bdobrica/jarvis/internal/jarvis/skills"
)

// Result text for outcomes that never reach a skill.
const (
	unknownSkillFormat = "Unknown skill '%s'."
	disabledFormat     = "Error: skill '%s' is disabled."
	// SearchLimitResult answers a search request over the per-request budget.
	SearchLimitResult = "Error: only one web search is allowed per request. Answer with the information already gathered, or tell the user it could not be found."
	// EmptyResult replaces an empty skill output.
	EmptyResult = "Done."
)

// UnknownSkillResult returns the result text for an unregistered name.
func UnknownSkillResult(name string) string {
	return fmt.Sprintf(unknownSkillFormat, name)
}

// Status classifies a tool call outcome for logs, metrics and audit rows.
type Status string

const (
	StatusOK       Status = "ok"
	StatusError    Status = "error"
	StatusUnknown  Status = "unknown"
	StatusDenied   Status = "denied"
	StatusInvalid  Status = "invalid"
	StatusRejected Status = "rejected"
)

// Record describes one finished tool call.
type Record struct {
	RequestID string
	Skill     string
	// Arguments is the decoded argument JSON with sensitive keys redacted.
	Arguments string
	Result    string
	Status    Status
	Duration  time.Duration
}

// Observer receives a Record for every call, from the calling goroutine.
type Observer interface {
	ObserveToolCall(ctx context.Context, rec Record)
}

// Authorizer reports whether a skill may run. *policy.Engine satisfies it.
type Authorizer interface {
	Allowed(skill string) bool
}

// Options tunes an Executor. The zero value is usable.
type Options struct {
	Policy   Authorizer
	Observer Observer
	Metrics  *observability.Metrics
	// RepairArguments attempts to repair malformed argument JSON before
	// falling back to an empty mapping.
	RepairArguments bool
	// SkillTimeout bounds each skill invocation. Zero means no bound.
	SkillTimeout time.Duration
	// MaxParallel caps concurrent skills within one ExecuteAll. Zero means
	// no cap.
	MaxParallel int
}

// Executor dispatches tool requests to registered skills.
type Executor struct {
	registry *skills.Registry
	opts     Options
}

// New returns an Executor over reg.
func New(reg *skills.Registry, opts Options) *Executor {
	return &Executor{registry: reg, opts: opts}
}

// Budget limits search-tagged skills across all rounds of one user request.
// Only requests that passed argument, policy and schema checks claim a slot,
// in request order, so which request is rejected is deterministic.
type Budget struct {
	mu        sync.Mutex
	remaining int
	unlimited bool
}

// NewBudget returns a Budget allowing maxSearches searches. Zero or a
// negative value means unlimited.
func NewBudget(maxSearches int) *Budget {
	return &Budget{remaining: maxSearches, unlimited: maxSearches <= 0}
}

func (b *Budget) claimSearch() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unlimited {
		return true
	}
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// call is a resolved request. A non-empty status means it was settled
// before reaching the skill and result holds the answer.
type call struct {
	req    conversation.ToolRequest
	skill  *skills.Skill
	args   skills.Args
	result string
	status Status
}

func (c *call) settled() bool { return c.status != "" }

func (c *call) settle(result string, status Status) {
	c.result, c.status = result, status
}

// Execute runs a single request outside any budget.
func (e *Executor) Execute(ctx context.Context, req conversation.ToolRequest) string {
	c := e.prepare(ctx, req)
	return e.run(ctx, &c)
}

// ExecuteAll runs reqs concurrently and returns results indexed like reqs.
func (e *Executor) ExecuteAll(ctx context.Context, reqs []conversation.ToolRequest, budget *Budget) []string {
	ctx, span := observability.Tracer().Start(ctx, "executor.round")
	span.SetAttributes(attribute.Int("tool.requests", len(reqs)))
	defer span.End()

	calls := make([]call, len(reqs))
	for i, req := range reqs {
		calls[i] = e.prepare(ctx, req)
		c := &calls[i]
		if !c.settled() && c.skill.HasTag(skills.TagSearch) && !budget.claimSearch() {
			c.settle(SearchLimitResult, StatusRejected)
		}
	}

	results := make([]string, len(reqs))
	var g errgroup.Group
	if e.opts.MaxParallel > 0 {
		g.SetLimit(e.opts.MaxParallel)
	}
	for i := range calls {
		g.Go(func() error {
			results[i] = e.run(ctx, &calls[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// prepare resolves the skill, decodes the arguments and applies the policy
// and schema checks. It performs no effect.
func (e *Executor) prepare(ctx context.Context, req conversation.ToolRequest) call {
	c := call{req: req}
	skill, ok := e.registry.Resolve(req.Name)
	if !ok {
		c.settle(UnknownSkillResult(req.Name), StatusUnknown)
		return c
	}
	c.skill = skill

	log := observability.WithTrace(ctx).With("skill", req.Name, "request_id", req.ID)
	c.args = e.parseArgs(log, req.RawArguments)

	if e.opts.Policy != nil && !e.opts.Policy.Allowed(skill.Name) {
		c.settle(fmt.Sprintf(disabledFormat, skill.Name), StatusDenied)
		return c
	}
	if err := skill.Validate(c.args); err != nil {
		c.settle(fmt.Sprintf("Error: invalid arguments for '%s': %v", skill.Name, err), StatusInvalid)
	}
	return c
}

func (e *Executor) run(ctx context.Context, c *call) string {
	ctx, span := observability.Tracer().Start(ctx, "executor.skill")
	span.SetAttributes(attribute.String("skill.name", c.req.Name), attribute.String("tool.request_id", c.req.ID))
	defer span.End()

	log := observability.WithTrace(ctx).With("skill", c.req.Name, "request_id", c.req.ID)
	start := time.Now()
	rec := Record{RequestID: c.req.ID, Skill: c.req.Name, Arguments: "{}"}
	if c.args != nil {
		rec.Arguments = skills.Args(redact.Map(c.args)).Encode()
	}

	finish := func(result string, status Status) string {
		rec.Result = result
		rec.Status = status
		rec.Duration = time.Since(start)
		span.SetAttributes(attribute.String("skill.status", string(status)))
		if status != StatusOK {
			span.SetStatus(codes.Error, string(status))
		}
		e.opts.Metrics.ObserveToolCall(metricLabel(e.registry, c.req.Name), string(status), rec.Duration)
		if e.opts.Observer != nil {
			e.opts.Observer.ObserveToolCall(ctx, rec)
		}
		log.Info("skill executed",
			"status", status,
			"duration_ms", rec.Duration.Milliseconds(),
			"result", redact.Truncate(result, 120),
		)
		return result
	}

	if c.settled() {
		return finish(c.result, c.status)
	}

	out, err := e.invoke(ctx, c.skill, c.args)
	if err != nil {
		return finish("Error: "+err.Error(), StatusError)
	}
	if out == "" {
		out = EmptyResult
	}
	return finish(out, StatusOK)
}

// metricLabel keeps label cardinality bounded by collapsing unknown names.
func metricLabel(reg *skills.Registry, name string) string {
	if _, ok := reg.Resolve(name); ok {
		return name
	}
	return "<unknown>"
}

func (e *Executor) parseArgs(log *slog.Logger, raw string) skills.Args {
	args, err := skills.DecodeArgs(raw)
	if err == nil {
		return args
	}
	if e.opts.RepairArguments {
		if fixed, rerr := jsonrepair.JSONRepair(raw); rerr == nil {
			if repaired, derr := skills.DecodeArgs(fixed); derr == nil {
				log.Warn("repaired malformed tool arguments", "raw_bytes", len(raw))
				return repaired
			}
		}
	}
	log.Warn("malformed tool arguments; using empty mapping", "err", err, "raw_bytes", len(raw))
	return skills.Args{}
}

func (e *Executor) invoke(ctx context.Context, s *skills.Skill, args skills.Args) (out string, err error) {
	if e.opts.SkillTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.SkillTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("skill %s crashed: %v", s.Name, r)
		}
	}()
	return s.Invoke(ctx, args)
}
