// Copyright 2026 © The Ploinky Authors
// SPDX-License-Identifier: Apache-2.0

// Package runtime composes the provider, agent, skill, operator and review
// layers behind a single caller-facing surface.
package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/skutner/ploinky-sub003/pkg/agent"
	"github.com/skutner/ploinky-sub003/pkg/errors"
	"github.com/skutner/ploinky-sub003/pkg/governance"
	"github.com/skutner/ploinky-sub003/pkg/llm"
	"github.com/skutner/ploinky-sub003/pkg/mcp"
	"github.com/skutner/ploinky-sub003/pkg/operators"
	"github.com/skutner/ploinky-sub003/pkg/prompt"
	"github.com/skutner/ploinky-sub003/pkg/resilience"
	"github.com/skutner/ploinky-sub003/pkg/review"
	"github.com/skutner/ploinky-sub003/pkg/skills"
	"github.com/skutner/ploinky-sub003/pkg/taskqueue"
	"github.com/skutner/ploinky-sub003/pkg/telemetry"
	"github.com/skutner/ploinky-sub003/providers"
)

// Settings are the tunables that may change while the runtime is live.
type Settings struct {
	OperatorThreshold float64
	ReviewMode        agent.Mode
	MaxIterations     int
	QueueTimeout      time.Duration
}

// Runtime owns the registries and engines of one process.
type Runtime struct {
	providers *llm.Registry
	client    *llm.Client
	agents    *agent.Directory
	skills    *skills.Registry
	engine    *skills.Engine
	operators *operators.Registry
	selector  *operators.Selector
	review    *review.Runner
	queue     *taskqueue.Queue
	closers   []io.Closer
	rules     governance.PolicyEngine
	approval  governance.ApprovalHook

	disableTokenAssignment bool

	mu       sync.RWMutex
	settings Settings

	workerCancel context.CancelFunc
	workerDone   chan struct{}

	logger *slog.Logger
	tracer trace.Tracer
}

type options struct {
	prompter        prompt.Prompter
	logger          *slog.Logger
	transport       llm.Transport
	policy          resilience.Policy
	rules           governance.PolicyEngine
	approval        governance.ApprovalHook
	audit           review.AuditStore
	queue           *taskqueue.Queue
	assistant       string
	optionThreshold float64
	disableTokens   bool
	skipDefaults    bool
	settings        Settings
	closers         []io.Closer
}

// Option configures a Runtime.
type Option func(*options)

// WithPrompter sets where interactive skill input comes from.
func WithPrompter(p prompt.Prompter) Option {
	return func(o *options) { o.prompter = p }
}

// WithLogger sets the runtime logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTransport sets the HTTP transport of the built-in providers.
func WithTransport(t llm.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithResilience retries and circuit-breaks the built-in providers' HTTP
// calls. Provider calls are not retried without it.
func WithResilience(p resilience.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithPolicy gates skills, operators and MCP publication through engine.
func WithPolicy(engine governance.PolicyEngine) Option {
	return func(o *options) { o.rules = engine }
}

// WithApprovalHook resolves pending policy decisions. It defaults to asking
// through the prompter when one is set.
func WithApprovalHook(hook governance.ApprovalHook) Option {
	return func(o *options) { o.approval = hook }
}

// WithoutDefaultProviders skips registering the built-in vendor adapters.
func WithoutDefaultProviders() Option {
	return func(o *options) { o.skipDefaults = true }
}

// WithAuditStore records review sessions.
func WithAuditStore(store review.AuditStore) Option {
	return func(o *options) { o.audit = store }
}

// WithQueue attaches a task queue used by manifest skills and the worker.
func WithQueue(q *taskqueue.Queue) Option {
	return func(o *options) { o.queue = q }
}

// WithModelAssistance lets the named agent extract arguments and classify
// confirmation replies.
func WithModelAssistance(agentName string) Option {
	return func(o *options) { o.assistant = agentName }
}

// WithOptionThreshold sets the fuzzy option matching threshold.
func WithOptionThreshold(t float64) Option {
	return func(o *options) { o.optionThreshold = t }
}

// WithDisableTokenAssignment turns off unlabeled token assignment for
// skills loaded from manifests.
func WithDisableTokenAssignment(disabled bool) Option {
	return func(o *options) { o.disableTokens = disabled }
}

// WithSettings sets the initial live settings. Zero fields keep their
// defaults.
func WithSettings(s Settings) Option {
	return func(o *options) { o.settings.merge(s) }
}

// New creates a runtime. The built-in providers are registered unless
// WithoutDefaultProviders is given.
func New(opts ...Option) (*Runtime, error) {
	o := options{
		logger: slog.Default(),
		settings: Settings{
			OperatorThreshold: operators.DefaultThreshold,
			ReviewMode:        agent.ModeFast,
			MaxIterations:     review.DefaultMaxIterations,
			QueueTimeout:      5 * time.Minute,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.approval == nil && o.prompter != nil {
		o.approval = governance.PromptApprovalHook{Prompter: o.prompter}
	}

	providerReg := llm.NewRegistry()
	if !o.skipDefaults {
		transport := o.transport
		if transport == nil {
			transport = llm.NewHTTPTransport(60 * time.Second)
		}
		if o.policy.Enabled() {
			transport = resilience.NewTransport(transport, o.policy, o.logger)
		}
		if err := providers.RegisterDefaults(providerReg, transport); err != nil {
			return nil, err
		}
	}
	skillReg, err := skills.NewRegistry()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		providers: providerReg,
		client:    llm.NewClient(providerReg, llm.WithLogger(o.logger)),
		agents:    agent.NewDirectory(),
		skills:    skillReg,
		operators: operators.NewRegistry(),
		queue:     o.queue,
		closers:   o.closers,
		rules:     o.rules,
		approval:  o.approval,
		settings:  o.settings,
		logger:    o.logger,
		tracer:    telemetry.Tracer(telemetry.ScopeRuntime),

		disableTokenAssignment: o.disableTokens,
	}
	rt.selector = operators.NewSelector(rt.operators, rt.client, operators.WithLogger(o.logger))

	reviewOpts := []review.RunnerOption{review.WithLogger(o.logger), review.WithMaxIterations(o.settings.MaxIterations)}
	if o.audit != nil {
		reviewOpts = append(reviewOpts, review.WithAuditStore(o.audit))
	}
	rt.review = review.NewRunner(rt.client, reviewOpts...)

	engineOpts := []skills.EngineOption{skills.WithLogger(o.logger), skills.WithThreshold(o.optionThreshold)}
	if o.prompter != nil {
		engineOpts = append(engineOpts, skills.WithPrompter(o.prompter))
	}
	if o.assistant != "" {
		a := &assistant{rt: rt, agentName: o.assistant}
		engineOpts = append(engineOpts, skills.WithArgumentExtractor(a), skills.WithReplyClassifier(a))
	}
	rt.engine = skills.NewEngine(skillReg, engineOpts...)
	return rt, nil
}

// Providers exposes the provider registry.
func (r *Runtime) Providers() *llm.Registry { return r.providers }

// Agents exposes the agent directory.
func (r *Runtime) Agents() *agent.Directory { return r.agents }

// Skills exposes the skill registry.
func (r *Runtime) Skills() *skills.Registry { return r.skills }

// Operators exposes the operator registry.
func (r *Runtime) Operators() *operators.Registry { return r.operators }

// Queue returns the attached task queue, if any.
func (r *Runtime) Queue() *taskqueue.Queue { return r.queue }

// Settings returns the live settings.
func (r *Runtime) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.settings
}

// UpdateSettings replaces the live settings. Zero fields keep their value.
func (r *Runtime) UpdateSettings(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings.merge(s)
}

func (s *Settings) merge(other Settings) {
	if other.OperatorThreshold > 0 {
		s.OperatorThreshold = other.OperatorThreshold
	}
	if other.ReviewMode != "" {
		s.ReviewMode = other.ReviewMode
	}
	if other.MaxIterations > 0 {
		s.MaxIterations = other.MaxIterations
	}
	if other.QueueTimeout > 0 {
		s.QueueTimeout = other.QueueTimeout
	}
}

// RegisterProvider adds a model provider.
func (r *Runtime) RegisterProvider(key string, handler llm.Handler, metadata map[string]any) error {
	return r.providers.Register(llm.Record{Key: key, Handler: handler, Metadata: metadata})
}

// RegisterAgent adds an agent record.
func (r *Runtime) RegisterAgent(rec *agent.Record) error {
	return r.agents.Register(rec)
}

// RegisterSkill adds a skill and returns its name.
func (r *Runtime) RegisterSkill(spec skills.Spec) (string, error) {
	return r.skills.Register(spec)
}

// RankSkill returns the skill names usable by role, best first.
func (r *Runtime) RankSkill(query, role string) ([]string, error) {
	return r.skills.Rank(query, role)
}

// RankSkillScored is RankSkill with scores.
func (r *Runtime) RankSkillScored(query, role string) ([]skills.Scored, error) {
	return r.skills.RankScored(query, role)
}

// UseSkill resolves the arguments of a skill and runs it.
func (r *Runtime) UseSkill(ctx context.Context, name string, partial map[string]any, opts skills.UseOptions) (any, error) {
	return r.useSkill(ctx, "", name, partial, opts)
}

// UseSkillAs is UseSkill on behalf of agentName, whose role governance
// rules may match.
func (r *Runtime) UseSkillAs(ctx context.Context, agentName, name string, partial map[string]any, opts skills.UseOptions) (any, error) {
	rec, err := r.agents.Get(agentName)
	if err != nil {
		return nil, err
	}
	return r.useSkill(ctx, rec.Role, name, partial, opts)
}

func (r *Runtime) useSkill(ctx context.Context, role, name string, partial map[string]any, opts skills.UseOptions) (any, error) {
	action := governance.Action{Type: governance.ActionSkill, Name: name, Role: role}
	if err := governance.Enforce(ctx, r.rules, r.approval, action); err != nil {
		return nil, err
	}
	return r.engine.Use(ctx, name, partial, opts)
}

// RegisterOperator adds an operator.
func (r *Runtime) RegisterOperator(name, description string, fn operators.Func) error {
	return r.operators.Register(name, description, fn)
}

// CallOperator runs an operator.
func (r *Runtime) CallOperator(ctx context.Context, name string, params map[string]any) (any, error) {
	action := governance.Action{Type: governance.ActionOperator, Name: name}
	if err := governance.Enforce(ctx, r.rules, r.approval, action); err != nil {
		return nil, err
	}
	return r.operators.Call(ctx, name, params)
}

// ChooseOperator asks agentName's model which operators fit description.
// A threshold of zero or less uses the configured one.
func (r *Runtime) ChooseOperator(ctx context.Context, agentName, description, mode string, threshold float64) (operators.Result, error) {
	rec, err := r.agents.Get(agentName)
	if err != nil {
		return operators.Result{}, err
	}
	if threshold <= 0 {
		threshold = r.Settings().OperatorThreshold
	}
	return r.selector.Choose(ctx, rec, description, mode, threshold)
}

// DoTask runs description on agentName's model. Deep mode goes through the
// review loop with the configured iteration budget.
func (r *Runtime) DoTask(ctx context.Context, agentName string, history []llm.Message, description string, schema *jsonschema.Schema, mode string) (review.Result, error) {
	rec, err := r.agents.Get(agentName)
	if err != nil {
		return review.Result{}, err
	}
	settings := r.Settings()
	m := agent.NormalizeTaskMode(mode, "", rec, settings.ReviewMode)

	ctx, span := r.tracer.Start(ctx, "runtime.DoTask", trace.WithAttributes(
		attribute.String("agent.name", rec.Name),
		attribute.String("task.mode", string(m)),
	))
	defer span.End()

	task := review.Task{
		Provider:    rec.Provider,
		History:     history,
		Description: description,
		Schema:      schema,
		Mode:        m,
		Options:     rec.CallOptions(m),
	}
	if m == agent.ModeDeep {
		return r.review.DoTaskWithReview(ctx, task, settings.MaxIterations)
	}
	return r.review.DoTask(ctx, task)
}

// DoTaskWithReview runs the plan, iterate and review loop. Only an explicit
// fast mode skips the loop; the model follows the agent's deep model when
// it has one.
func (r *Runtime) DoTaskWithReview(ctx context.Context, agentName string, history []llm.Message, description string, schema *jsonschema.Schema, mode string, maxIterations int) (review.Result, error) {
	rec, err := r.agents.Get(agentName)
	if err != nil {
		return review.Result{}, err
	}
	loop := agent.ModeDeep
	if m, ok := agent.ParseMode(mode); ok && m == agent.ModeFast {
		loop = agent.ModeFast
	}
	if maxIterations <= 0 {
		maxIterations = r.Settings().MaxIterations
	}
	model := agent.NormalizeTaskMode(string(loop), "", rec, agent.ModeDeep)

	ctx, span := r.tracer.Start(ctx, "runtime.DoTaskWithReview", trace.WithAttributes(
		attribute.String("agent.name", rec.Name),
		attribute.String("task.mode", string(loop)),
		attribute.Int("review.max_iterations", maxIterations),
	))
	defer span.End()

	return r.review.DoTaskWithReview(ctx, review.Task{
		Provider:    rec.Provider,
		History:     history,
		Description: description,
		Schema:      schema,
		Mode:        loop,
		Options:     rec.CallOptions(model),
	}, maxIterations)
}

// MCPServer publishes the operators, operator selection for agentName and
// skill ranking as MCP tools. Operators a governance rule does not plainly
// allow for MCP are left out.
func (r *Runtime) MCPServer(name, version, agentName string) (*mcp.Server, error) {
	opts := []mcp.ServerOption{mcp.WithSkills(r.skills), mcp.WithLogger(r.logger)}
	role := ""
	if agentName != "" {
		rec, err := r.agents.Get(agentName)
		if err != nil {
			return nil, err
		}
		role = rec.Role
		opts = append(opts, mcp.WithSelector(r.selector, rec, r.Settings().OperatorThreshold))
	}
	if r.rules != nil {
		opts = append(opts, mcp.WithFilter(func(ctx context.Context, op string) bool {
			action := governance.Action{Type: governance.ActionMCP, Name: op, Role: role}
			return governance.Enforce(ctx, r.rules, nil, action) == nil
		}))
	}
	return mcp.NewServer(name, version, r.operators, opts...), nil
}

// Close releases the skill index and any owned stores.
func (r *Runtime) Close() error {
	r.Stop()
	var first error
	if err := r.skills.Close(); err != nil {
		first = err
	}
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (r *Runtime) requireQueue() (*taskqueue.Queue, error) {
	if r.queue == nil {
		return nil, errors.New(errors.CodeConfiguration, "no task queue configured", nil)
	}
	return r.queue, nil
}
