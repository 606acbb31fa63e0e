package types

import (
	"time"
)

type CronManager interface {
	LifecycleManager
	Add(jobName, spec string, job func()) error
	Remove(jobName string) error
	Jobs() []JobInfo
}

type JobInfo struct {
	Name     string    `json:"name"`
	Spec     string    `json:"spec"`
	LastRun  time.Time `json:"last_run"`
	NextRun  time.Time `json:"next_run"`
	RunCount uint64    `json:"run_count"`
}
