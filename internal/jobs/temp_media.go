package jobs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// TempMediaJob empties the upload staging directory on a cron schedule.
// Files still referenced by unpublished drafts are lost; publishing moves
// what it needs out of the directory first.
type TempMediaJob struct {
	dir      string
	schedule string
	cron     *cron.Cron
}

func NewTempMediaJob(dir, schedule string) *TempMediaJob {
	return &TempMediaJob{
		dir:      dir,
		schedule: schedule,
		cron:     cron.New(),
	}
}

func (j *TempMediaJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() {
		if _, err := j.Run(); err != nil {
			log.Error().Err(err).Str("dir", j.dir).Msg("temp media cleanup failed")
		}
	}); err != nil {
		return fmt.Errorf("schedule temp media cleanup: %w", err)
	}
	j.cron.Start()
	log.Info().Str("schedule", j.schedule).Str("dir", j.dir).Msg("temp media job started")
	return nil
}

func (j *TempMediaJob) Stop() {
	<-j.cron.Stop().Done()
	log.Info().Msg("temp media job stopped")
}

// Run deletes every entry under the directory and returns how many went.
func (j *TempMediaJob) Run() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(j.dir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info().Int("count", removed).Str("dir", j.dir).Msg("cleaned up temp media")
	}
	return removed, errors.Join(errs...)
}
