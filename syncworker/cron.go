package syncworker

import (
	"context"

	"encore.dev/cron"
)

// DailyHygiene runs a calendar-scheduled hygiene sweep in addition to the
// ticker-driven one in loops.go, for deployments that only want the
// defensive cleanup at a predictable off-peak hour rather than every
// HygieneInterval. Grounded on the teacher's own daily-warmup cron job.
var _ = cron.NewJob("syncworker-daily-hygiene", cron.JobConfig{
	Title:    "Daily Search Cache Hygiene",
	Schedule: "0 3 * * *",
	Endpoint: DailyHygiene,
})

//encore:api private
func DailyHygiene(ctx context.Context) error {
	s, err := currentService()
	if err != nil {
		return nil
	}
	_, err = s.Hygiene(ctx)
	return err
}
