package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/maxsanz/keyword-universe/app/config"
	"github.com/maxsanz/keyword-universe/app/database"
	"github.com/maxsanz/keyword-universe/app/ingest"
	"github.com/maxsanz/keyword-universe/app/llm"
	"github.com/maxsanz/keyword-universe/app/tasks"
	"github.com/maxsanz/keyword-universe/app/universe"
)

func NewHandler(db *database.DB, runRepo database.RunRepository, universeRepo database.UniverseRepository,
	profiles map[string]*config.Profile, clients []llm.Client, semrush *ingest.Semrush,
	analyzer *ingest.URLAnalyzer, scheduler tasks.TaskSchedulerInterface, uploadsDir string) *Handler {
	return &Handler{
		db:           db,
		runRepo:      runRepo,
		universeRepo: universeRepo,
		profiles:     profiles,
		clients:      clients,
		semrush:      semrush,
		analyzer:     analyzer,
		scheduler:    scheduler,
		uploadsDir:   uploadsDir,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if err := h.db.Ping(); err != nil {
		health["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	health["database"] = "ok"

	if runCount, err := h.runRepo.GetRunCount(); err == nil {
		health["runs"] = runCount
	}

	health["loaded_profiles"] = len(h.profiles)

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"profiles":  len(h.profiles),
		"providers": len(h.clients),
	}

	providers := make([]string, 0, len(h.clients))
	for _, client := range h.clients {
		providers = append(providers, client.Name())
	}
	stats["provider_names"] = providers

	if runCount, err := h.runRepo.GetRunCount(); err == nil {
		stats["runs"] = runCount
	}
	if universeCount, err := h.universeRepo.GetUniverseCount(); err == nil {
		stats["universes"] = universeCount
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) APICreateRun(c *gin.Context) {
	req, err := parseCreateRunRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, ok := h.profiles[req.Profile]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found", "profile": req.Profile})
		return
	}

	if req.GroupingMode == "" {
		req.GroupingMode = profile.Analysis.GroupingMode
	}
	if req.TierCount == 0 {
		req.TierCount = profile.Analysis.TierCount
	}

	analysisCfg := universe.Config{
		GroupingMode:       universe.GroupingMode(req.GroupingMode),
		TierCount:          req.TierCount,
		BatchSize:          profile.Analysis.BatchSize,
		CustomInstructions: profile.Analysis.CustomInstructions,
		IncludeGaps:        profile.Analysis.IncludeGaps,
		GapVolumeFloor:     profile.Analysis.GapVolumeFloor,
	}
	if err := analysisCfg.Validate(); err != nil {
		var configErr *universe.ConfigError
		if errors.As(err, &configErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": configErr.Error(), "field": configErr.Field})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid multipart form", "details": err.Error()})
		return
	}

	files := form.File["files"]
	if len(files) == 0 && len(req.SemrushDomains) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No keyword sources: upload at least one CSV file or specify semrush_domains"})
		return
	}
	if len(req.SemrushDomains) > 0 && h.semrush == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Semrush domains requested but no Semrush API key is configured"})
		return
	}

	providers := make([]string, 0, len(h.clients))
	for _, client := range h.clients {
		providers = append(providers, client.Name())
	}

	run := &database.Run{
		ID:             ulid.Make().String(),
		Profile:        profile.Name,
		GroupingMode:   string(analysisCfg.GroupingMode),
		TierCount:      analysisCfg.TierCount,
		Providers:      providers,
		SiteURL:        req.SiteURL,
		SemrushDomains: req.SemrushDomains,
	}

	if err := h.runRepo.CreateRun(run); err != nil {
		slog.Error("Database error", "operation", "create_run", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create run"})
		return
	}

	runDir := filepath.Join(h.uploadsDir, run.ID)
	for _, file := range files {
		filename := filepath.Base(file.Filename)
		storedPath := filepath.Join(runDir, filename)

		if err := c.SaveUploadedFile(file, storedPath); err != nil {
			slog.Error("Failed to save uploaded file", "run", run.ID, "file", filename, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store uploaded file", "file": filename})
			return
		}

		runFile := &database.RunFile{
			RunID:        run.ID,
			Filename:     filename,
			StoredPath:   storedPath,
			SourceDomain: sourceDomainFromFilename(filename),
		}
		if err := h.runRepo.AddRunFile(runFile); err != nil {
			slog.Error("Database error", "operation", "add_run_file", "run", run.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register uploaded file"})
			return
		}
	}

	analyzeTask := tasks.NewAnalyzeRunTask(run.ID, profile, h.runRepo, h.universeRepo, h.clients, h.semrush, h.analyzer)
	if err := h.scheduler.EnqueueTask(analyzeTask); err != nil {
		slog.Error("Error enqueueing analyze task", "run", run.ID, "error", err)
		h.runRepo.UpdateRunStatus(run.ID, database.RunStatusFailed, "failed to enqueue analysis task")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to enqueue analysis task", "details": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"run_id":        run.ID,
		"status":        database.RunStatusPending,
		"profile":       profile.Name,
		"grouping_mode": run.GroupingMode,
		"tier_count":    run.TierCount,
		"providers":     providers,
		"files":         len(files),
		"task": gin.H{
			"id":   analyzeTask.ID,
			"type": analyzeTask.Type,
		},
	})
}

func (h *Handler) APIListRuns(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.runRepo.ListRuns(limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	items := make([]map[string]interface{}, 0, len(runs))
	for _, run := range runs {
		items = append(items, runSummary(&run))
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  items,
		"total": len(items),
	})
}

func (h *Handler) APIGetRun(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}

	details := runSummary(run)

	if files, err := h.runRepo.GetRunFiles(run.ID); err == nil {
		fileInfos := make([]map[string]interface{}, 0, len(files))
		for _, file := range files {
			info := map[string]interface{}{
				"filename":      file.Filename,
				"source_domain": file.SourceDomain,
				"row_count":     file.RowCount,
			}
			if file.Error != "" {
				info["error"] = file.Error
			}
			fileInfos = append(fileInfos, info)
		}
		details["files"] = fileInfos
	}

	if universes, err := h.universeRepo.GetUniverses(run.ID); err == nil && len(universes) > 0 {
		available := make([]string, 0, len(universes))
		for _, u := range universes {
			available = append(available, u.Provider)
		}
		details["universes"] = available
	}

	c.JSON(http.StatusOK, details)
}

func (h *Handler) APIGetUniverse(c *gin.Context) {
	run, ok := h.loadRun(c)
	if !ok {
		return
	}

	provider := c.Query("provider")
	var record *database.Universe
	var err error
	if provider != "" {
		record, err = h.universeRepo.GetUniverse(run.ID, provider)
	} else {
		var universes []database.Universe
		universes, err = h.universeRepo.GetUniverses(run.ID)
		if err == nil && len(universes) > 0 {
			record = &universes[0]
		}
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_universe", "run", run.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No universe available for this run", "status": run.Status})
		return
	}

	if c.Query("format") == "csv" {
		h.writeUniverseCSV(c, run, record)
		return
	}

	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Header("X-Run-ID", run.ID)
	c.Header("X-Provider", record.Provider)
	c.String(http.StatusOK, record.Payload)
}

func (h *Handler) writeUniverseCSV(c *gin.Context, run *database.Run, record *database.Universe) {
	var u universe.Universe
	if err := json.Unmarshal([]byte(record.Payload), &u); err != nil {
		slog.Error("Failed to decode stored universe", "run", run.ID, "provider", record.Provider, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Stored universe is corrupted"})
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="universe-`+run.ID+`.csv"`)

	w := csv.NewWriter(c.Writer)
	w.Write([]string{"topic", "tier", "priority", "intent", "keyword_count", "volume", "traffic", "avg_difficulty", "description", "keywords"})

	for _, topic := range u.Topics {
		difficulty := ""
		if topic.AvgDifficulty != nil {
			difficulty = strconv.FormatFloat(*topic.AvgDifficulty, 'f', 1, 64)
		}
		w.Write([]string{
			topic.Topic,
			strconv.Itoa(topic.Tier),
			string(topic.Priority),
			topic.Intent,
			strconv.Itoa(topic.KeywordCount),
			strconv.Itoa(topic.Volume),
			strconv.FormatFloat(topic.Traffic, 'f', 1, 64),
			difficulty,
			topic.Description,
			strings.Join(topic.Keywords, "; "),
		})
	}

	for _, kw := range u.Unassigned {
		w.Write([]string{"(unassigned)", "", "", "", "", "", "", "", "", kw})
	}

	w.Flush()
	if err := w.Error(); err != nil {
		slog.Error("Failed to write CSV response", "run", run.ID, "error", err)
	}
}

func (h *Handler) loadRun(c *gin.Context) (*database.Run, bool) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing run id parameter"})
		return nil, false
	}

	run, err := h.runRepo.GetRun(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_run", "run", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, false
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return nil, false
	}
	return run, true
}

func parseCreateRunRequest(c *gin.Context) (*createRunRequest, error) {
	req := &createRunRequest{
		Profile:      c.DefaultPostForm("profile", "default"),
		GroupingMode: c.PostForm("grouping_mode"),
		SiteURL:      c.PostForm("site_url"),
	}

	if raw := c.PostForm("tier_count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.New("tier_count must be an integer")
		}
		req.TierCount = parsed
	}

	if raw := c.PostForm("semrush_domains"); raw != "" {
		for _, domain := range strings.Split(raw, ",") {
			domain = strings.TrimSpace(domain)
			if domain != "" {
				req.SemrushDomains = append(req.SemrushDomains, domain)
			}
		}
	}

	return req, nil
}

func runSummary(run *database.Run) map[string]interface{} {
	summary := map[string]interface{}{
		"run_id":        run.ID,
		"profile":       run.Profile,
		"status":        run.Status,
		"grouping_mode": run.GroupingMode,
		"tier_count":    run.TierCount,
		"providers":     run.Providers,
		"created_at":    run.CreatedAt,
	}
	if run.SiteURL != "" {
		summary["site_url"] = run.SiteURL
	}
	if len(run.SemrushDomains) > 0 {
		summary["semrush_domains"] = run.SemrushDomains
	}
	if run.Error != "" {
		summary["error"] = run.Error
	}
	if run.Stats != "" {
		var stats universe.SourceStats
		if err := json.Unmarshal([]byte(run.Stats), &stats); err == nil {
			summary["stats"] = stats
		}
	}
	if run.StartedAt != nil {
		summary["started_at"] = run.StartedAt
	}
	if run.CompletedAt != nil {
		summary["completed_at"] = run.CompletedAt
	}
	return summary
}

func sourceDomainFromFilename(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	// Semrush exports look like "example.com-organic.Positions-us-...". Keep
	// the leading domain when one is present.
	if idx := strings.Index(base, "-organic"); idx > 0 {
		return base[:idx]
	}
	return base
}
