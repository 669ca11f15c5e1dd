package tasks

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/maxsanz/keyword-universe/app/cfg"
	"github.com/maxsanz/keyword-universe/app/config"
	"github.com/maxsanz/keyword-universe/app/database"
	"github.com/maxsanz/keyword-universe/app/ingest"
	"github.com/maxsanz/keyword-universe/app/keyword"
	"github.com/maxsanz/keyword-universe/app/llm"
	"github.com/maxsanz/keyword-universe/app/universe"
)

type AnalyzeRunTask struct {
	Task
	Profile      *config.Profile
	runRepo      database.RunRepository
	universeRepo database.UniverseRepository
	clients      []llm.Client
	semrush      *ingest.Semrush
	analyzer     *ingest.URLAnalyzer
	reader       *ingest.Reader
	parallelism  int
	batchTimeout time.Duration
	cacheTTL     time.Duration
	semrushLimit int
}

func NewAnalyzeRunTask(runID string, profile *config.Profile, runRepo database.RunRepository,
	universeRepo database.UniverseRepository, clients []llm.Client, semrush *ingest.Semrush,
	analyzer *ingest.URLAnalyzer) *AnalyzeRunTask {
	c := cfg.Get()

	parallelism := c.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	return &AnalyzeRunTask{
		Task:         NewTask(TaskTypeAnalyzeRun, runID),
		Profile:      profile,
		runRepo:      runRepo,
		universeRepo: universeRepo,
		clients:      clients,
		semrush:      semrush,
		analyzer:     analyzer,
		reader:       ingest.NewReader(),
		parallelism:  parallelism,
		batchTimeout: time.Duration(c.BatchTimeout) * time.Second,
		cacheTTL:     time.Duration(c.CacheTTL) * time.Second,
		semrushLimit: 5000,
	}
}

func (t *AnalyzeRunTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	run, err := t.runRepo.GetRun(t.RunID)
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", t.RunID)
	}

	if err := t.runRepo.UpdateRunStatus(t.RunID, database.RunStatusRunning, ""); err != nil {
		return fmt.Errorf("failed to mark run as running: %w", err)
	}

	result, err := t.analyze(ctx, run)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			t.runRepo.UpdateRunStatus(t.RunID, database.RunStatusCancelled, err.Error())
			return nil
		}
		if statusErr := t.runRepo.UpdateRunStatus(t.RunID, database.RunStatusFailed, err.Error()); statusErr != nil {
			slog.Error("Failed to mark run as failed", "run", t.RunID, "error", statusErr)
		}
		return err
	}

	stats, err := json.Marshal(result.stats)
	if err != nil {
		return fmt.Errorf("failed to encode run stats: %w", err)
	}
	if err := t.runRepo.UpdateRunStats(t.RunID, string(stats)); err != nil {
		return fmt.Errorf("failed to store run stats: %w", err)
	}
	if err := t.runRepo.UpdateRunStatus(t.RunID, database.RunStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to mark run as completed: %w", err)
	}

	slog.Info("Task completed",
		"type", "AnalyzeRun",
		"run", t.RunID,
		"duration", t.GetDuration(),
		"keywords", result.stats.TotalKeywords,
		"sources", result.stats.TotalSources,
		"providers", result.providers,
		"cached", result.cacheHits)

	return nil
}

type analyzeResult struct {
	stats     universe.SourceStats
	providers int
	cacheHits int
}

func (t *AnalyzeRunTask) analyze(ctx context.Context, run *database.Run) (*analyzeResult, error) {
	analysisCfg := universe.Config{
		GroupingMode:       universe.GroupingMode(run.GroupingMode),
		TierCount:          run.TierCount,
		BatchSize:          t.Profile.Analysis.BatchSize,
		CustomInstructions: t.Profile.Analysis.CustomInstructions,
		IncludeGaps:        t.Profile.Analysis.IncludeGaps,
		GapVolumeFloor:     t.Profile.Analysis.GapVolumeFloor,
	}
	if err := analysisCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis configuration: %w", err)
	}

	sources, err := t.collectSources(ctx, run)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no usable keyword sources")
	}

	merger := keyword.NewMerger(t.Profile.MergePolicy(), t.Profile.Merge.MaxKeywords)
	table := merger.Run(sources)
	if len(table.Keywords) == 0 {
		return nil, fmt.Errorf("no keywords left after merging")
	}

	if len(t.Profile.Brand.Terms) > 0 {
		removed := keyword.NewBrandFilter(t.Profile.Brand.Terms).Run(table)
		slog.Debug("Brand filter applied", "run", t.RunID, "removed", removed)
	}

	if run.SiteURL != "" && t.analyzer != nil {
		siteContext, err := t.analyzer.Run(ctx, run.SiteURL)
		if err != nil {
			slog.Warn("Site context analysis failed, continuing without it", "run", t.RunID, "url", run.SiteURL, "error", err)
		} else {
			analysisCfg.SiteContext = siteContext
		}
	}

	contentHash := t.contentHash(table, analysisCfg)

	result := &analyzeResult{providers: len(t.clients)}
	var firstErr error
	succeeded := 0

	for _, client := range t.clients {
		cached, hit, err := t.fromCache(contentHash, client.Name())
		if err != nil {
			slog.Warn("Cache lookup failed", "run", t.RunID, "provider", client.Name(), "error", err)
		}

		var payload string
		if hit {
			payload = cached
			result.cacheHits++
			slog.Info("Reusing cached universe", "run", t.RunID, "provider", client.Name(), "content_hash", contentHash)
		} else {
			u, err := t.generate(ctx, client, table, analysisCfg)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil, err
				}
				slog.Error("Universe generation failed", "run", t.RunID, "provider", client.Name(), "error", err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			u.Provider = client.Name()
			u.Stats.TotalSources = len(sources)
			result.stats = u.Stats

			encoded, err := json.Marshal(u)
			if err != nil {
				return nil, fmt.Errorf("failed to encode universe: %w", err)
			}
			payload = string(encoded)
		}

		record := &database.Universe{
			ID:          ulid.Make().String(),
			RunID:       t.RunID,
			Provider:    client.Name(),
			ContentHash: contentHash,
			Payload:     payload,
		}
		if err := t.universeRepo.StoreUniverse(record); err != nil {
			return nil, fmt.Errorf("failed to store universe: %w", err)
		}
		succeeded++
	}

	if succeeded == 0 {
		return nil, fmt.Errorf("all providers failed: %w", firstErr)
	}

	if result.stats.TotalKeywords == 0 {
		result.stats = universe.SourceStats{
			TotalKeywords:   len(table.Keywords),
			TotalSources:    len(sources),
			DedupRate:       table.DedupRate,
			DroppedByCap:    table.DroppedByCap,
			BrandedFiltered: table.BrandedFiltered,
			CoercedCells:    table.CoercedCells,
		}
	}

	return result, nil
}

// collectSources normalizes every uploaded file and configured Semrush
// domain. Per-source failures are recorded on the run file and skipped; the
// run only fails when nothing survives.
func (t *AnalyzeRunTask) collectSources(ctx context.Context, run *database.Run) ([][]keyword.Record, error) {
	normalizer := keyword.NewNormalizer(t.Profile.Synonyms)

	files, err := t.runRepo.GetRunFiles(t.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run files: %w", err)
	}

	var sources [][]keyword.Record

	for _, file := range files {
		records, err := t.normalizeFile(normalizer, file)
		if err != nil {
			slog.Warn("Source file skipped", "run", t.RunID, "file", file.Filename, "error", err)
			if updateErr := t.runRepo.UpdateRunFile(file.ID, 0, err.Error()); updateErr != nil {
				slog.Error("Failed to record file error", "run", t.RunID, "file", file.Filename, "error", updateErr)
			}
			continue
		}
		if updateErr := t.runRepo.UpdateRunFile(file.ID, len(records), ""); updateErr != nil {
			slog.Error("Failed to record file row count", "run", t.RunID, "file", file.Filename, "error", updateErr)
		}
		sources = append(sources, records)
	}

	for _, domain := range run.SemrushDomains {
		if t.semrush == nil {
			slog.Warn("Semrush domain requested but no API key configured", "run", t.RunID, "domain", domain)
			continue
		}
		rows, err := t.semrush.DomainOrganic(ctx, domain, t.semrushLimit)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			slog.Warn("Semrush source skipped", "run", t.RunID, "domain", domain, "error", err)
			continue
		}
		if len(rows) == 0 {
			slog.Debug("Semrush returned no keywords", "run", t.RunID, "domain", domain)
			continue
		}
		records, _, err := normalizer.Run(rows, domain, "semrush:"+domain)
		if err != nil {
			slog.Warn("Semrush source skipped", "run", t.RunID, "domain", domain, "error", err)
			continue
		}
		sources = append(sources, records)
	}

	return sources, nil
}

func (t *AnalyzeRunTask) normalizeFile(normalizer *keyword.Normalizer, file database.RunFile) ([]keyword.Record, error) {
	f, err := os.Open(file.StoredPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer f.Close()

	rows, err := t.reader.Run(f, file.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	records, _, err := normalizer.Run(rows, file.SourceDomain, file.Filename)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// generate runs the full prompt/complete/parse/assemble pipeline for a
// single provider.
func (t *AnalyzeRunTask) generate(ctx context.Context, client llm.Client, table *keyword.Table, analysisCfg universe.Config) (*universe.Universe, error) {
	builder := universe.NewBuilder()
	parser := universe.NewParser()

	batches, err := builder.Run(table, analysisCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt batches: %w", err)
	}

	results, failures := t.dispatch(ctx, client, parser, batches, analysisCfg)
	if len(results) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("all %d batches failed", len(batches))
	}

	var gaps []universe.ContentGap
	if analysisCfg.IncludeGaps {
		gaps = t.detectGaps(ctx, client, parser, results, table, analysisCfg)
	}

	u := universe.NewAssembler().Run(results, failures, gaps, table, analysisCfg)
	return u, nil
}

// dispatch runs batch completions with bounded concurrency. Each batch gets
// its own timeout; a batch failure degrades its keywords to unassigned
// rather than aborting the run.
func (t *AnalyzeRunTask) dispatch(ctx context.Context, client llm.Client, parser *universe.Parser,
	batches []universe.Batch, analysisCfg universe.Config) ([]*universe.ParsedBatch, []universe.BatchFailure) {

	var mu sync.Mutex
	var wg sync.WaitGroup
	var results []*universe.ParsedBatch
	var failures []universe.BatchFailure

	sem := make(chan struct{}, t.parallelism)

	for i := range batches {
		select {
		case <-ctx.Done():
			mu.Lock()
			failures = append(failures, universe.BatchFailure{BatchIndex: batches[i].Index, Reason: "run cancelled"})
			mu.Unlock()
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(batch *universe.Batch) {
			defer wg.Done()
			defer func() { <-sem }()

			parsed, err := t.completeBatch(ctx, client, parser, batch, analysisCfg)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, universe.BatchFailure{BatchIndex: batch.Index, Reason: err.Error()})
				slog.Warn("Batch failed", "run", t.RunID, "provider", client.Name(), "batch", batch.Index, "error", err)
				return
			}
			results = append(results, parsed)
		}(&batches[i])
	}

	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].BatchIndex < results[j].BatchIndex })
	sort.Slice(failures, func(i, j int) bool { return failures[i].BatchIndex < failures[j].BatchIndex })

	return results, failures
}

func (t *AnalyzeRunTask) completeBatch(ctx context.Context, client llm.Client, parser *universe.Parser,
	batch *universe.Batch, analysisCfg universe.Config) (*universe.ParsedBatch, error) {

	batchCtx, cancel := context.WithTimeout(ctx, t.batchTimeout)
	defer cancel()

	raw, err := client.Complete(batchCtx, batch.System, batch.Prompt)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	parsed, err := parser.Run(raw, batch, analysisCfg)
	if err != nil {
		return nil, fmt.Errorf("response parsing failed: %w", err)
	}
	return parsed, nil
}

// detectGaps issues one trailing completion over the already-identified
// topics. Gap detection is best effort: any failure is logged and the run
// continues without gaps.
func (t *AnalyzeRunTask) detectGaps(ctx context.Context, client llm.Client, parser *universe.Parser,
	results []*universe.ParsedBatch, table *keyword.Table, analysisCfg universe.Config) []universe.ContentGap {

	var topics []universe.Topic
	seen := make(map[string]struct{})
	for _, r := range results {
		for _, assignment := range r.Topics {
			key := keyword.NormalizeText(assignment.Topic)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			topics = append(topics, universe.Topic{Topic: assignment.Topic, Tier: assignment.Tier})
		}
	}
	if len(topics) == 0 {
		return nil
	}

	gapCtx, cancel := context.WithTimeout(ctx, t.batchTimeout)
	defer cancel()

	raw, err := client.Complete(gapCtx, "", universe.GapPrompt(table, topics, analysisCfg))
	if err != nil {
		slog.Warn("Gap detection failed", "run", t.RunID, "provider", client.Name(), "error", err)
		return nil
	}

	gaps, err := parser.ParseGaps(raw)
	if err != nil {
		slog.Warn("Gap response parsing failed", "run", t.RunID, "provider", client.Name(), "error", err)
		return nil
	}
	return gaps
}

// contentHash fingerprints the merged table plus every prompt-affecting
// configuration field. Identical inputs under identical settings produce
// identical prompts, so a matching hash within the cache TTL is safe to
// reuse.
func (t *AnalyzeRunTask) contentHash(table *keyword.Table, analysisCfg universe.Config) string {
	h := sha256.New()

	fmt.Fprintf(h, "mode=%s;tiers=%d;batch=%d;gaps=%t;floor=%d\n",
		analysisCfg.GroupingMode, analysisCfg.TierCount, analysisCfg.BatchSize,
		analysisCfg.IncludeGaps, analysisCfg.GapVolumeFloor)
	fmt.Fprintf(h, "instructions=%s\n", analysisCfg.CustomInstructions)
	fmt.Fprintf(h, "context=%s\n", analysisCfg.SiteContext)

	for _, m := range keyword.RankedKeywords(table) {
		fmt.Fprintf(h, "%s|%d", m.Keyword, m.Volume)
		if m.Difficulty != nil {
			fmt.Fprintf(h, "|%.2f", *m.Difficulty)
		}
		fmt.Fprintln(h)
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}

func (t *AnalyzeRunTask) fromCache(contentHash, provider string) (string, bool, error) {
	if t.cacheTTL <= 0 {
		return "", false, nil
	}

	notBefore := time.Now().UTC().Add(-t.cacheTTL)
	cached, err := t.universeRepo.FindCached(contentHash, provider, notBefore)
	if err != nil || cached == nil {
		return "", false, err
	}
	return cached.Payload, true, nil
}
