package api

import (
	"github.com/maxsanz/keyword-universe/app/config"
	"github.com/maxsanz/keyword-universe/app/database"
	"github.com/maxsanz/keyword-universe/app/ingest"
	"github.com/maxsanz/keyword-universe/app/llm"
	"github.com/maxsanz/keyword-universe/app/tasks"
)

type Handler struct {
	db           *database.DB
	runRepo      database.RunRepository
	universeRepo database.UniverseRepository
	profiles     map[string]*config.Profile
	clients      []llm.Client
	semrush      *ingest.Semrush
	analyzer     *ingest.URLAnalyzer
	scheduler    tasks.TaskSchedulerInterface
	uploadsDir   string
}

// createRunRequest is the non-file part of the POST /api/runs form.
type createRunRequest struct {
	Profile        string
	GroupingMode   string
	TierCount      int
	SiteURL        string
	SemrushDomains []string
}
