// Command watchtower runs a single incident-investigation agent run to
// completion or to its first approval pause, printing the resulting
// AgentState (or, when paused, the pending ApprovalRequest) as JSON. A
// separate invocation with -resume feeds an approve/reject decision back
// into a previously paused run (spec §4.7).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/config"
	"github.com/watchtower-ai/watchtower/internal/guardrail"
	"github.com/watchtower-ai/watchtower/internal/guardrail/redisbudget"
	"github.com/watchtower-ai/watchtower/internal/integration"
	"github.com/watchtower-ai/watchtower/internal/loop"
	"github.com/watchtower-ai/watchtower/internal/prengine"
	"github.com/watchtower-ai/watchtower/internal/provider"
	storemongo "github.com/watchtower-ai/watchtower/internal/store/mongo"
	storeredis "github.com/watchtower-ai/watchtower/internal/store/redis"
	"github.com/watchtower-ai/watchtower/internal/toolregistry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "watchtower:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		integrationsFile = flag.String("integrations", os.Getenv("INTEGRATIONS_CONFIG_PATH"), "path to the YAML integration manifest")
		workspaceID      = flag.String("workspace", "default", "workspace identifier attached to this run")
		prompt           = flag.String("prompt", "", "initial user message describing the incident to investigate")
		resumeRunID      = flag.String("resume", "", "run id of a paused run to resume (requires -approve or -reject)")
		approve          = flag.Bool("approve", false, "approve the pending tool call when resuming")
		reject           = flag.Bool("reject", false, "reject the pending tool call when resuming")
	)
	flag.Parse()

	ctx := context.Background()

	manifest, err := config.LoadIntegrations(*integrationsFile)
	if err != nil {
		return fmt.Errorf("loading integrations: %w", err)
	}

	registry := toolregistry.New()
	router, err := integration.NewRouter(manifest.Integrations)
	if err != nil {
		return fmt.Errorf("validating integrations: %w", err)
	}
	if err := router.Load(ctx, registry); err != nil {
		return fmt.Errorf("loading integrations: %w", err)
	}
	if err := registry.Register(prengine.New().Tool()); err != nil {
		return fmt.Errorf("registering PR engine: %w", err)
	}

	agentCfg, err := config.AgentConfigFromEnv()
	if err != nil {
		return fmt.Errorf("loading agent config: %w", err)
	}

	tc := agent.ToolContext{
		RunID:       uuid.NewString(),
		WorkspaceID: *workspaceID,
		Credentials: credentialsFromEnv(),
	}

	llmProvider, err := provider.FromEnv(ctx)
	if err != nil {
		return fmt.Errorf("selecting LLM provider: %w", err)
	}

	if *resumeRunID != "" {
		l, err := newLoopFromEnv(ctx, llmProvider, registry)
		if err != nil {
			return fmt.Errorf("building loop: %w", err)
		}
		approved, err := decideApproval(*approve, *reject)
		if err != nil {
			return err
		}
		tc.RunID = *resumeRunID
		state, err := l.ResumeByRunID(ctx, *resumeRunID, agentCfg, tc, approved)
		if err != nil {
			return fmt.Errorf("resuming run: %w", err)
		}
		return printResult(state)
	}

	l, err := newLoopFromEnv(ctx, llmProvider, registry)
	if err != nil {
		return fmt.Errorf("building loop: %w", err)
	}

	if *prompt != "" {
		agentCfg.SystemPrompt += "\n\nIncident report:\n" + *prompt
	}

	state, err := l.Start(ctx, agentCfg, tc)
	if err != nil {
		return fmt.Errorf("running agent: %w", err)
	}

	return printResult(state)
}

// decideApproval requires exactly one of -approve/-reject when resuming.
func decideApproval(approve, reject bool) (bool, error) {
	if approve == reject {
		return false, errors.New("resuming a run requires exactly one of -approve or -reject")
	}
	return approve, nil
}

// newLoopFromEnv builds a Loop with its Guardrail/Budget wired and its
// Store/Approvals/Runs backed by Mongo/Redis when the corresponding env
// vars are set, falling back to loop.New's in-memory defaults otherwise
// (spec §2: "in-memory by default"). p is required on both paths: a
// resumed run re-enters the loop and makes further LLM calls through it.
func newLoopFromEnv(ctx context.Context, p provider.Provider, registry *toolregistry.Registry) (*loop.Loop, error) {
	l := loop.New(p, registry)
	l.Guardrail = guardrail.NewScanner(nil)

	budgetStore, err := redisBudgetStoreFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	l.Budget = guardrail.NewBucket(guardrail.DefaultBudgetConfig(), budgetStore)

	if uri := os.Getenv("WATCHTOWER_MONGO_URI"); uri != "" {
		database := os.Getenv("WATCHTOWER_MONGO_DATABASE")
		if database == "" {
			return nil, errors.New("WATCHTOWER_MONGO_DATABASE is required when WATCHTOWER_MONGO_URI is set")
		}
		client, err := mongodriver.Connect(options.Client().ApplyURI(uri))
		if err != nil {
			return nil, fmt.Errorf("connecting to mongo: %w", err)
		}
		stateStore, err := storemongo.NewStateStore(storemongo.StateOptions{Client: client, Database: database})
		if err != nil {
			return nil, fmt.Errorf("building mongo state store: %w", err)
		}
		runStore, err := storemongo.NewRunRecordStore(storemongo.RunRecordOptions{Client: client, Database: database})
		if err != nil {
			return nil, fmt.Errorf("building mongo run record store: %w", err)
		}
		auditSink, err := storemongo.NewAuditSink(storemongo.AuditOptions{Client: client, Database: database})
		if err != nil {
			return nil, fmt.Errorf("building mongo audit sink: %w", err)
		}
		l.Store = stateStore
		l.Runs = runStore
		l.Audit = guardrail.NewAuditLog(nil, auditSink)
	}

	if addr := os.Getenv("WATCHTOWER_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("WATCHTOWER_REDIS_PASSWORD")})
		approvals, err := storeredis.New(client)
		if err != nil {
			return nil, fmt.Errorf("building redis approval store: %w", err)
		}
		l.Approvals = approvals
	}

	return l, nil
}

// redisBudgetStoreFromEnv builds the optional shared Bucket store; a nil
// return keeps the bucket process-local, which is loop.New's default.
func redisBudgetStoreFromEnv(ctx context.Context) (guardrail.Store, error) {
	addr := os.Getenv("WATCHTOWER_REDIS_ADDR")
	if addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("WATCHTOWER_REDIS_PASSWORD")})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return redisbudget.New(client, "watchtower:budget:shared"), nil
}

func credentialsFromEnv() map[string]string {
	creds := map[string]string{}
	if tok := os.Getenv("GITHUB_TOKEN"); tok != "" {
		creds["github"] = tok
	}
	return creds
}

func printResult(state *agent.AgentState) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if state.Status == agent.StatusPaused && state.PendingApproval != nil {
		if req, ok := loop.PendingApprovalRequest(state); ok {
			return enc.Encode(req)
		}
	}
	return enc.Encode(state)
}
