package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/intent"
	"SecAssist/internal/modules/ai/domain/repository"
	"SecAssist/internal/modules/ai/infrastructure/executor"
	"SecAssist/internal/modules/ai/infrastructure/lock"
	"SecAssist/internal/modules/ai/infrastructure/memory"
	"SecAssist/internal/modules/ai/infrastructure/metrics"
	"SecAssist/internal/modules/ai/infrastructure/privacy"
	"SecAssist/internal/modules/ai/infrastructure/queue"
	"SecAssist/internal/modules/ai/infrastructure/routing"
	"SecAssist/internal/modules/ai/infrastructure/synthesis"

	"github.com/cloudwego/eino/compose"
)

// ProcessRequest one user turn
type ProcessRequest struct {
	Query     string
	SessionID string // empty: a new session is created
	UserID    string
}

// OutcomeSummary per-handler result exposed to callers; errors are flattened to text
type OutcomeSummary struct {
	Handler   string
	OK        bool
	Error     string
	LatencyMs int64
}

// ProcessResult reply of one turn. Err is set when the turn failed; Text may
// still carry the error notice persisted for the user.
type ProcessResult struct {
	Text                  string
	SessionID             string
	Intent                intent.Tag
	Confidence            float64
	Route                 intent.Route
	HandlersUsed          []string
	Sources               []string
	Outcomes              []OutcomeSummary
	TimingMs              int64
	Timing                map[string]int64
	Degraded              bool
	LowConfidence         bool
	ClarificationRequired bool
	SynthesisFallback     bool
	UserMessageID         int64
	AssistantMessageID    int64
	Err                   error
}

// OrchestratorOptions request-level knobs, all from orchestratorConfig/contextConfig
type OrchestratorOptions struct {
	TokenBudget         int
	RequestTimeout      time.Duration
	StoreTimeout        time.Duration // detached writes after the request context ended
	ClarificationPrompt string
	LowConfidenceNote   string
	ErrorNotice         string
}

// OrchestratorPipeline ProcessRequest as an eino graph:
// PersistUser -> BuildContext -> Classify -> (Select -> Execute -> Synthesize) -> Respond.
// Clarification and early failures branch straight to Respond.
type OrchestratorPipeline struct {
	sessions    repository.SessionRepository
	messages    repository.MessageRepository
	redactor    *privacy.Redactor
	locker      lock.SessionLocker
	window      *memory.ContextBuilder
	classifier  *routing.ClassifierGate
	registry    *routing.Registry
	coordinator *executor.Coordinator
	synthesizer *synthesis.Synthesizer
	enqueuer    queue.Enqueuer
	metrics     *metrics.Metrics
	opts        OrchestratorOptions

	r compose.Runnable[*ProcessRequest, *ProcessResult]
}

type OrchestratorDeps struct {
	Sessions    repository.SessionRepository
	Messages    repository.MessageRepository
	Redactor    *privacy.Redactor
	Locker      lock.SessionLocker
	Window      *memory.ContextBuilder
	Classifier  *routing.ClassifierGate
	Registry    *routing.Registry
	Coordinator *executor.Coordinator
	Synthesizer *synthesis.Synthesizer
	Enqueuer    queue.Enqueuer // optional: nil disables async indexing
	Metrics     *metrics.Metrics
}

func NewOrchestratorPipeline(deps OrchestratorDeps, opts OrchestratorOptions) (*OrchestratorPipeline, error) {
	if deps.Sessions == nil || deps.Messages == nil || deps.Redactor == nil || deps.Window == nil ||
		deps.Classifier == nil || deps.Registry == nil || deps.Coordinator == nil || deps.Synthesizer == nil {
		return nil, fmt.Errorf("required dependencies are nil")
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocal()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}

	p := &OrchestratorPipeline{
		sessions:    deps.Sessions,
		messages:    deps.Messages,
		redactor:    deps.Redactor,
		locker:      deps.Locker,
		window:      deps.Window,
		classifier:  deps.Classifier,
		registry:    deps.Registry,
		coordinator: deps.Coordinator,
		synthesizer: deps.Synthesizer,
		enqueuer:    deps.Enqueuer,
		metrics:     deps.Metrics,
		opts:        opts,
	}

	r, err := p.buildGraph(context.Background())
	if err != nil {
		return nil, err
	}
	p.r = r
	return p, nil
}

// Process runs one turn under the request timeout. The returned error mirrors result.Err.
func (p *OrchestratorPipeline) Process(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	if req == nil {
		return nil, fmt.Errorf("request is nil")
	}
	if p.r == nil {
		return nil, fmt.Errorf("pipeline runnable is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	res, err := p.r.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	return res, res.Err
}

func (p *OrchestratorPipeline) buildGraph(ctx context.Context) (compose.Runnable[*ProcessRequest, *ProcessResult], error) {
	const (
		PersistUser  = "PersistUser"
		BuildContext = "BuildContext"
		Classify     = "Classify"
		Select       = "Select"
		Execute      = "Execute"
		Synthesize   = "Synthesize"
		Respond      = "Respond"
	)

	g := compose.NewGraph[*ProcessRequest, *ProcessResult]()

	_ = g.AddLambdaNode(PersistUser, compose.InvokableLambdaWithOption(p.persistUserNode), compose.WithNodeName(PersistUser))
	_ = g.AddLambdaNode(BuildContext, compose.InvokableLambdaWithOption(p.buildContextNode), compose.WithNodeName(BuildContext))
	_ = g.AddLambdaNode(Classify, compose.InvokableLambdaWithOption(p.classifyNode), compose.WithNodeName(Classify))
	_ = g.AddLambdaNode(Select, compose.InvokableLambdaWithOption(p.selectNode), compose.WithNodeName(Select))
	_ = g.AddLambdaNode(Execute, compose.InvokableLambdaWithOption(p.executeNode), compose.WithNodeName(Execute))
	_ = g.AddLambdaNode(Synthesize, compose.InvokableLambdaWithOption(p.synthesizeNode), compose.WithNodeName(Synthesize))
	_ = g.AddLambdaNode(Respond, compose.InvokableLambdaWithOption(p.respondNode), compose.WithNodeName(Respond))

	_ = g.AddEdge(compose.START, PersistUser)
	_ = g.AddEdge(PersistUser, BuildContext)
	_ = g.AddEdge(BuildContext, Classify)

	needsHandlers := func(ctx context.Context, st *orchestratorState) (string, error) {
		if st.Err != nil || st.Decision.ClarificationRequired() {
			return Respond, nil
		}
		return Select, nil
	}
	_ = g.AddBranch(Classify, compose.NewGraphBranch(needsHandlers, map[string]bool{
		Select:  true,
		Respond: true,
	}))

	_ = g.AddEdge(Select, Execute)
	_ = g.AddEdge(Execute, Synthesize)
	_ = g.AddEdge(Synthesize, Respond)
	_ = g.AddEdge(Respond, compose.END)

	return g.Compile(ctx,
		compose.WithGraphName("OrchestratorPipeline"),
		compose.WithNodeTriggerMode(compose.AnyPredecessor))
}

func summarizeOutcomes(outcomes []intent.HandlerOutcome) []OutcomeSummary {
	out := make([]OutcomeSummary, 0, len(outcomes))
	for _, o := range outcomes {
		s := OutcomeSummary{Handler: o.Handler, OK: o.OK(), LatencyMs: o.LatencyMs}
		if o.Err != nil {
			s.Error = o.Err.Error()
		}
		out = append(out, s)
	}
	return out
}

// routeLabel metrics label; "none" when the turn failed before classification
func routeLabel(r intent.Route) string {
	if strings.TrimSpace(string(r)) == "" {
		return "none"
	}
	return string(r)
}

// categoryFor retention category of a classified turn
func categoryFor(tag intent.Tag) string {
	if tag == "" || tag == intent.TagGeneral {
		return conversation.DefaultCategory
	}
	return string(tag)
}
