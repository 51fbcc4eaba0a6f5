package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// jobFile is the on-disk format: the full job list plus a write timestamp.
type jobFile struct {
	Jobs      []Job  `json:"jobs"`
	UpdatedAt string `json:"updated_at"`
}

// saveJobs writes the full job list atomically (temp file, fsync, rename).
func saveJobs(path string, jobs map[string]*Job) error {
	list := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		list = append(list, j.clone())
	}
	sort.Slice(list, func(i, k int) bool { return list[i].CreatedAtMs < list[k].CreatedAtMs })

	data, err := json.MarshalIndent(jobFile{
		Jobs:      list,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cron jobs: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cron state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "cron-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// loadJobs reads the job file; a missing file is an empty job list.
func loadJobs(path string) (map[string]*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Job{}, nil
		}
		return nil, fmt.Errorf("read cron state: %w", err)
	}

	var f jobFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cron state: %w", err)
	}

	jobs := make(map[string]*Job, len(f.Jobs))
	for i := range f.Jobs {
		j := f.Jobs[i]
		jobs[j.ID] = &j
	}
	return jobs, nil
}
