package app

import (
	"context"
	"fmt"

	"github.com/webintel/webintel/internal/taskqueue"
	"github.com/webintel/webintel/pkg/store"
)

// handleExploreTask runs one Explorer pass for a seed profile looked up by
// its "profile_id" param, persisting every page it finds through a.store.
func (a *App) handleExploreTask(ctx context.Context, task store.Task, reporter *taskqueue.Reporter) (map[string]any, error) {
	profileID, _ := task.Params["profile_id"].(string)
	if profileID == "" {
		return nil, fmt.Errorf("explore task: missing profile_id param")
	}

	profile, err := a.seeds.Get(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("explore task: load profile %q: %w", profileID, err)
	}

	cfg := profile.ToConfig()
	if over := task.Params["max_total_pages"]; over != nil {
		if n, ok := over.(float64); ok && n > 0 {
			cfg.MaxTotalPages = int(n)
		}
	}

	results, err := a.explorer.Explore(ctx, profile.ToProfile(), profile.SeedURLs, cfg)
	if err != nil {
		return nil, fmt.Errorf("explore task: %w", err)
	}

	totalFindings := 0
	for _, r := range results {
		totalFindings += r.Findings
	}
	if err := reporter.UpdateProgress(ctx, 1, fmt.Sprintf("explored %d pages", len(results))); err != nil {
		return nil, fmt.Errorf("explore task: update progress: %w", err)
	}

	return map[string]any{
		"pages_explored": len(results),
		"findings":       totalFindings,
	}, nil
}

// handleAnswerTask runs the RAG Answerer for a question looked up by its
// "question" and optional "entity_scope" params.
func (a *App) handleAnswerTask(ctx context.Context, task store.Task, reporter *taskqueue.Reporter) (map[string]any, error) {
	question, _ := task.Params["question"].(string)
	if question == "" {
		return nil, fmt.Errorf("answer task: missing question param")
	}
	entityScope, _ := task.Params["entity_scope"].(string)

	answer, err := a.answerer.Ask(ctx, question, entityScope)
	if err != nil {
		return nil, fmt.Errorf("answer task: %w", err)
	}
	if err := reporter.UpdateProgress(ctx, 1, "answer synthesized"); err != nil {
		return nil, fmt.Errorf("answer task: update progress: %w", err)
	}

	snippets := make([]map[string]any, 0, len(answer.Context))
	for _, s := range answer.Context {
		snippets = append(snippets, map[string]any{
			"url":    s.URL,
			"text":   s.Text,
			"source": s.Source,
			"score":  s.Score,
		})
	}

	return map[string]any{
		"text":                    answer.Text,
		"context":                 snippets,
		"online_search_triggered": answer.OnlineSearchTriggered,
		"rag_hit_count":           answer.RAGHitCount,
		"sql_hit_count":           answer.SQLHitCount,
	}, nil
}
