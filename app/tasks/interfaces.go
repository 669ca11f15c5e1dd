package tasks

// TaskSchedulerInterface defines the interface for background task
// scheduling. Used by the API layer to hand off analysis runs without
// blocking the request.
// Example usage:
//
//	scheduler := NewScheduler(runRepo, universeRepo, clients, semrush, analyzer)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewAnalyzeRunTask(...))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
