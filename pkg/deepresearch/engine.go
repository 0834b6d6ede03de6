package deepresearch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ResearchEngine drives one research session end-to-end and emits an
// EventStream. It owns SessionState exclusively; SearchClient and
// LLMClient are stateless collaborators. Grounded on the teacher's
// pkg/research/engine.go Plan→Source→Filter→Acquire→Reflect loop,
// restructured into the spec's Plan→Search→Process→Report frontier.
type ResearchEngine struct {
	Search      SearchClient
	Planner     *QueryPlanner
	Processor   *ResultProcessor
	Report      *ReportWriter
	Logger      *slog.Logger
	CostTracker *CostTracker

	EventBufferSize int
	MaxDepthCap     int
	MaxBreadthCap   int
}

// NewResearchEngine wires an engine from its LLM-backed stages. Both
// Planner, Processor and Report typically share the same LLMClient/ModelID
// but may be configured independently (e.g. a cheaper model for planning).
func NewResearchEngine(search SearchClient, planner *QueryPlanner, processor *ResultProcessor, report *ReportWriter) *ResearchEngine {
	return &ResearchEngine{
		Search:          search,
		Planner:         planner,
		Processor:       processor,
		Report:          report,
		Logger:          slog.Default(),
		EventBufferSize: 64,
		MaxDepthCap:     5,
		MaxBreadthCap:   5,
	}
}

// Run validates opts, starts the session in a background goroutine, and
// returns the EventStream the caller should range over. Validation errors
// are returned directly and no start event is ever emitted, per spec §7's
// invalid_input handling ("reject before starting; error before any start
// event").
func (e *ResearchEngine) Run(ctx context.Context, userQuery string, opts ResearchOptions) (*EventStream, error) {
	if strings.TrimSpace(userQuery) == "" {
		return nil, WrapError(KindInvalidInput, fmt.Errorf("query must not be empty"))
	}
	maxDepth, maxBreadth := e.MaxDepthCap, e.MaxBreadthCap
	if maxDepth <= 0 {
		maxDepth = 5
	}
	if maxBreadth <= 0 {
		maxBreadth = 5
	}
	if err := opts.Validate(maxDepth, maxBreadth); err != nil {
		return nil, err
	}
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = 2
	}

	stream := NewEventStream(e.EventBufferSize)
	state := newSessionState(opts)

	go e.runSession(ctx, stream, state, userQuery, opts)

	return stream, nil
}

func (e *ResearchEngine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *ResearchEngine) runSession(ctx context.Context, stream *EventStream, state *sessionState, userQuery string, opts ResearchOptions) {
	defer stream.Close()

	startedAt := time.Now()

	if err := stream.Emit(ctx, newStartEvent(userQuery, opts, startedAt)); err != nil {
		return
	}

	var runErr error
	if opts.IsDeep {
		runErr = e.runDeep(ctx, stream, state, userQuery, opts, startedAt)
	} else {
		runErr = e.runShallow(ctx, stream, state, userQuery, opts, startedAt)
	}

	if runErr != nil {
		emitCtx := context.Background()
		if IsKind(runErr, KindCancelled) {
			e.logger().Warn("research session cancelled", "query", userQuery)
			_ = stream.Emit(emitCtx, newErrorEvent("research session cancelled", KindCancelled))
			return
		}
		e.logger().Error("research session failed", "query", userQuery, "error", runErr)
		_ = stream.Emit(emitCtx, newErrorEvent(runErr.Error(), KindFatal))
		return
	}
}

// runShallow implements the one-search, one-report mode from spec §4.7.
// It synthesizes the report directly from the single search's content
// rather than round-tripping through ResultProcessor, per the spec's
// "implementations MAY choose either" allowance — chosen so that shallow
// sessions never emit `learning` events, matching the acceptance scenario.
func (e *ResearchEngine) runShallow(ctx context.Context, stream *EventStream, state *sessionState, userQuery string, opts ResearchOptions, startedAt time.Time) error {
	state.addPlannedQueries(1)

	resp, err := e.Search.Search(ctx, userQuery)
	if err != nil {
		if IsKind(err, KindCancelled) {
			return err
		}
		e.logger().Warn("shallow search failed, continuing with empty results", "query", userQuery, "error", err)
		resp = SearchResponse{}
	}
	state.incrementCompleted()

	if err := stream.Emit(ctx, newSearchResultsEvent(formatSearchResultsMarkdown(userQuery, resp.Docs))); err != nil {
		return err
	}

	newSources := state.addSources(resp.Sources)
	if err := stream.Emit(ctx, newSourcesEvent(newSources)); err != nil {
		return err
	}

	report := e.Report.Write(ctx, userQuery, ephemeralLearningsFromDocs(resp.Docs), state.allSources())

	if err := stream.Emit(ctx, newContentEvent(report)); err != nil {
		return err
	}
	return e.emitComplete(ctx, stream, opts, startedAt)
}

// frontierNode is one entry in the deep-mode BFS queue.
type frontierNode struct {
	query string
	level int
}

// runDeep implements the depth×breadth iterative expansion from spec §4.7:
// a flat, level-by-level frontier (queue, never recursion), with bounded
// concurrency across the sub-queries planned at each node.
func (e *ResearchEngine) runDeep(ctx context.Context, stream *EventStream, state *sessionState, userQuery string, opts ResearchOptions, startedAt time.Time) error {
	D, B := opts.Depth, opts.Breadth

	frontier := []frontierNode{{query: userQuery, level: 1}}

	for len(frontier) > 0 {
		level := frontier[0].level
		var levelNodes, rest []frontierNode
		for _, n := range frontier {
			if n.level == level {
				levelNodes = append(levelNodes, n)
			} else {
				rest = append(rest, n)
			}
		}
		frontier = rest

		if level > D {
			continue
		}
		state.setCurrentLevel(level)

		nextLevel, err := e.processLevel(ctx, stream, state, levelNodes, level, D, B, opts.MaxConcurrency)
		if err != nil {
			return err
		}
		frontier = append(frontier, nextLevel...)
	}

	report := e.Report.Write(ctx, userQuery, state.allLearnings(), state.allSources())
	if err := stream.Emit(ctx, newContentEvent(report)); err != nil {
		return err
	}
	return e.emitComplete(ctx, stream, opts, startedAt)
}

// processLevel plans queries for each not-yet-visited node at level, then
// searches+processes every planned sub-query with bounded concurrency,
// collecting the follow-up nodes for level+1.
func (e *ResearchEngine) processLevel(ctx context.Context, stream *EventStream, state *sessionState, nodes []frontierNode, level, depth, breadth, maxConcurrency int) ([]frontierNode, error) {
	type work struct {
		sq SerpQuery
	}

	var items []work
	for _, n := range nodes {
		if !state.markVisited(normalizeQuery(n.query)) {
			continue
		}
		queries := e.Planner.Plan(ctx, n.query, breadth, state.learningsSnapshot())
		state.addPlannedQueries(len(queries))
		for _, sq := range queries {
			items = append(items, work{sq: sq})
		}
	}

	if len(items) == 0 {
		return nil, nil
	}

	var nextLevel []frontierNode
	var nextMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for _, item := range items {
		item := item
		g.Go(func() error {
			followUps, err := e.processSubQuery(gctx, stream, state, item.sq, level, depth)
			if err != nil {
				return err // only cancellation propagates as a group error
			}
			if len(followUps) > 0 {
				nextMu.Lock()
				for _, fu := range followUps {
					nextLevel = append(nextLevel, frontierNode{query: fu.Query, level: level + 1})
				}
				nextMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return nextLevel, nil
}

// processSubQuery runs one sub-query's search+process cycle. Its own
// failures are recoverable (logged, counted, session continues) except for
// cancellation, which propagates. Ordering within a sub-query — sources
// before learnings before the progress bump — is guaranteed by sequencing
// within this function per spec §5.
func (e *ResearchEngine) processSubQuery(ctx context.Context, stream *EventStream, state *sessionState, sq SerpQuery, level, depth int) ([]SerpQuery, error) {
	if err := stream.Emit(ctx, newProgressEvent(state.snapshot("searching", sq.Query))); err != nil {
		return nil, err
	}

	resp, err := e.Search.Search(ctx, sq.Query)
	if err != nil {
		if IsKind(err, KindCancelled) {
			return nil, err
		}
		e.logger().Warn("sub-query search failed, skipping", "query", sq.Query, "error", err)
		state.incrementCompleted()
		if emitErr := stream.Emit(ctx, newProgressEvent(state.snapshot("searching", ""))); emitErr != nil {
			return nil, emitErr
		}
		return nil, nil
	}

	newSources := state.addSources(resp.Sources)
	if len(newSources) > 0 {
		if err := stream.Emit(ctx, newSourcesEvent(newSources)); err != nil {
			return nil, err
		}
	}

	numLearnings := maxInt(2, 5/depth)
	numFollowUps := maxInt(1, 3/depth)
	result := e.Processor.Process(ctx, sq.Query, resp.Docs, numLearnings, numFollowUps)

	for _, l := range result.Learnings {
		state.addLearning(l)
		if err := stream.Emit(ctx, newLearningEvent(l)); err != nil {
			return nil, err
		}
	}

	state.incrementCompleted()
	if err := stream.Emit(ctx, newProgressEvent(state.snapshot("searching", ""))); err != nil {
		return nil, err
	}

	if level >= depth {
		return nil, nil
	}
	return result.FollowUpQuestions, nil
}

func (e *ResearchEngine) emitComplete(ctx context.Context, stream *EventStream, opts ResearchOptions, startedAt time.Time) error {
	metrics := &CompleteMetrics{ModelID: opts.ModelID}
	if !startedAt.IsZero() {
		metrics.TotalTimeSeconds = time.Since(startedAt).Seconds()
	}
	if e.CostTracker != nil {
		report := e.CostTracker.Report()
		metrics.TotalTokens = report.TotalTokens
		metrics.EstimatedCostUSD = report.TotalCostUSD
	}
	return stream.Emit(ctx, newCompleteEvent(metrics))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// formatSearchResultsMarkdown renders the shallow-mode search_results
// event body: a Markdown block summarizing the top results for a query.
func formatSearchResultsMarkdown(query string, docs []SearchDoc) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("### Search results for: %s\n\n", query))
	if len(docs) == 0 {
		b.WriteString("_No results found._\n")
		return b.String()
	}
	for _, d := range docs {
		b.WriteString(fmt.Sprintf("- [%s](%s)", d.Title, d.URL))
		if d.Snippet != "" {
			b.WriteString(" — " + d.Snippet)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ephemeralLearningsFromDocs builds a report-prompt-only Learning list
// directly from doc text, without touching session state or emitting
// `learning` events — the shallow-mode "synthesize directly" path.
func ephemeralLearningsFromDocs(docs []SearchDoc) []Learning {
	out := make([]Learning, 0, len(docs))
	for _, d := range docs {
		text := strings.TrimSpace(d.MainText)
		if text == "" {
			text = strings.TrimSpace(d.Snippet)
		}
		if text == "" {
			continue
		}
		if len(text) > learningMaxChars {
			text = text[:learningMaxChars-1] + "…"
		}
		out = append(out, Learning{Content: text})
	}
	return out
}
