// Package coordinator serializes catalog sync jobs and schedules the
// periodic background refresh.
//
// The Coordinator owns a single sync slot. Jobs submitted through Submit run
// one at a time in submission order on a dedicated worker goroutine. A job
// that has not started can be cancelled; a running job always runs to
// completion. Callers observe a job through its Handle (Done, Result,
// OnComplete, Progress), and Latest and Lookup expose snapshots of jobs that
// are still in flight. Completed jobs leave the registry, so their ids no
// longer resolve.
//
// On every successful job the coordinator stamps the last sync time in the
// settings store. The first successful job also applies the locale language
// as the default language filter when the user has not chosen one.
//
// # Status Persistence
//
// The outcome of every job is written to a status.StatusPersistence. The
// status is set to "Failed" before the sync starts and only replaced once the
// manager returns, so a panicking job still leaves a failed status behind.
//
// # Scheduler
//
// The Scheduler polls every two minutes (with up to thirty seconds of jitter)
// and submits a job that preserves existing packages once the configured
// interval has elapsed since the last successful sync.
//
//	coord := coordinator.New(manager, settingsStore,
//	    coordinator.WithStatusPersistence(status.NewFileStatusPersistence(path)))
//	sched := coordinator.NewScheduler(coord, settingsStore, 24*time.Hour)
//	go sched.Start(ctx)
//
//	handle, err := coord.Submit(false)
//	handle.OnComplete(func(r coordinator.Result) { ... })
//
//	_ = sched.Stop()
//	_ = coord.Stop(ctx)
package coordinator
