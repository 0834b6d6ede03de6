package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/adrianhesketh/deepresearch/pkg/config"
	"github.com/adrianhesketh/deepresearch/pkg/deepresearch"
)

var (
	query          string
	isDeep         bool
	depth          int
	breadth        int
	modelID        string
	maxConcurrency int
	pretty         bool
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := godotenv.Load(); err != nil {
		// no .env file is fine as long as the environment is already set
	}
	cfg := config.Load()

	rootCmd := &cobra.Command{
		Use:   "research-helper",
		Short: "An iterative, depth x breadth research agent",
		Long:  `research-helper expands a query into a tree of search queries, gathers and synthesizes learnings, and streams a research report.`,
		Run: func(cmd *cobra.Command, args []string) {
			if query == "" {
				reader := bufio.NewReader(os.Stdin)
				fmt.Print("Enter research query: ")
				input, _ := reader.ReadString('\n')
				query = strings.TrimSpace(input)
				if query == "" {
					slog.Error("query cannot be empty")
					os.Exit(1)
				}
			}
			if modelID == "" {
				modelID = cfg.DefaultModelID
			}
			if maxConcurrency == 0 {
				maxConcurrency = cfg.EngineMaxConcurrency
			}

			engine, err := buildEngine(context.Background(), cfg)
			if err != nil {
				slog.Error("failed to initialize research engine", "error", err)
				os.Exit(1)
			}

			opts := deepresearch.ResearchOptions{
				IsDeep:         isDeep,
				Depth:          depth,
				Breadth:        breadth,
				ModelID:        modelID,
				MaxConcurrency: maxConcurrency,
			}

			stream, err := engine.Run(context.Background(), query, opts)
			if err != nil {
				slog.Error("failed to start research session", "error", err)
				os.Exit(1)
			}

			if pretty {
				runPretty(stream)
				return
			}
			if err := deepresearch.WriteNDJSON(os.Stdout, stream); err != nil {
				slog.Error("failed while streaming events", "error", err)
				os.Exit(1)
			}
		},
	}

	rootCmd.Flags().StringVarP(&query, "query", "q", "", "The research query")
	rootCmd.Flags().BoolVarP(&isDeep, "deep", "d", false, "Use the depth x breadth deep-research mode")
	rootCmd.Flags().IntVar(&depth, "depth", 2, "Deep-mode recursion depth")
	rootCmd.Flags().IntVar(&breadth, "breadth", 3, "Deep-mode queries planned per node")
	rootCmd.Flags().StringVarP(&modelID, "model", "m", "", "Model identifier to use")
	rootCmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "Parallel in-flight sub-queries")
	rootCmd.Flags().BoolVarP(&pretty, "pretty", "p", false, "Print a human-readable transcript instead of raw NDJSON")

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// runPretty renders the event stream as a readable transcript on stdout
// instead of raw NDJSON, for interactive terminal use.
func runPretty(stream *deepresearch.EventStream) {
	for event := range stream.Events() {
		switch event.Type {
		case deepresearch.EventStart:
			fmt.Printf("Starting research: %s\n", event.Query)
		case deepresearch.EventProgress:
			fmt.Printf("[%.0f%%] %s: %s\n", event.Progress, event.Status, event.Details.Queries.CurrentQuery)
		case deepresearch.EventSearchResults:
			fmt.Println(event.Content)
		case deepresearch.EventSources:
			for _, s := range event.Sources {
				fmt.Printf("  source: %s (%s)\n", s.Title, s.URL)
			}
		case deepresearch.EventLearning:
			fmt.Printf("  learning: %s\n", event.Content)
		case deepresearch.EventContent:
			fmt.Println("\n" + event.Content)
		case deepresearch.EventError:
			fmt.Printf("error (%s): %s\n", event.Kind, event.Content)
		case deepresearch.EventComplete:
			if event.Metrics != nil {
				fmt.Printf("\ndone in %.1fs\n", event.Metrics.TotalTimeSeconds)
			} else {
				fmt.Println("\ndone")
			}
		default:
			data, _ := json.Marshal(event)
			fmt.Println(string(data))
		}
	}
}

func buildEngine(ctx context.Context, cfg *config.Config) (*deepresearch.ResearchEngine, error) {
	limiter := deepresearch.NewRateLimiter(deepresearch.RateLimiterConfig{
		RPM:            cfg.RateLimitRPM,
		InitialBackoff: cfg.RateLimitInitialBackoff,
		MaxBackoff:     cfg.RateLimitMaxBackoff,
		Multiplier:     cfg.RateLimitMultiplier,
	})

	webSearch := deepresearch.NewHTTPSearchClient(cfg.SearchProviderBaseURL, cfg.SearchProviderAPIKey, limiter)
	webSearch.Timeout = cfg.SearchProviderTimeout

	var search deepresearch.SearchClient = webSearch
	if cfg.EnableArxivSource {
		search = deepresearch.NewCompositeSearchClient(webSearch, deepresearch.NewArxivSearchClient())
	}

	llmClient := deepresearch.NewLangchainClient(limiter)
	llmClient.Timeout = cfg.LLMProviderTimeout

	if cfg.LLMProvider == "openai" {
		backend, err := deepresearch.NewOpenAIBackend(cfg.LLMProviderAPIKey, cfg.DefaultModelID, cfg.LLMProviderBaseURL)
		if err != nil {
			return nil, err
		}
		llmClient.RegisterModel(cfg.DefaultModelID, backend)
	} else {
		backend, err := deepresearch.NewGoogleAIBackend(ctx, cfg.LLMProviderAPIKey, cfg.DefaultModelID)
		if err != nil {
			return nil, err
		}
		llmClient.RegisterModel(cfg.DefaultModelID, backend)
	}

	costTracker := deepresearch.NewCostTracker(llmClient)

	planner := deepresearch.NewQueryPlanner(costTracker, cfg.DefaultModelID)
	processor := deepresearch.NewResultProcessor(costTracker, cfg.DefaultModelID)
	report := deepresearch.NewReportWriter(costTracker, cfg.DefaultModelID)

	engine := deepresearch.NewResearchEngine(search, planner, processor, report)
	engine.MaxDepthCap = cfg.EngineMaxDepth
	engine.MaxBreadthCap = cfg.EngineMaxBreadth
	engine.EventBufferSize = cfg.EngineEventBuffer
	engine.CostTracker = costTracker

	return engine, nil
}
