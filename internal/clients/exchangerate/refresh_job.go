package exchangerate

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RefreshJob keeps the native-to-USD rate warm in the cache so filter
// requests that need conversion rarely block on the rate API.
type RefreshJob struct {
	client *Client
	from   string
	to     string
	log    zerolog.Logger
}

// NewRefreshJob creates a rate refresh job for one currency pair.
func NewRefreshJob(client *Client, from, to string, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		client: client,
		from:   from,
		to:     to,
		log:    log.With().Str("job", "exchange_rate_refresh").Logger(),
	}
}

// Run fetches the pair, refreshing the cached entry as a side effect.
func (j *RefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	rate, err := j.client.Rate(ctx, j.from, j.to)
	if err != nil {
		j.log.Warn().Err(err).
			Str("from", j.from).
			Str("to", j.to).
			Msg("Rate refresh failed")
		return err
	}

	j.log.Debug().
		Str("from", j.from).
		Str("to", j.to).
		Float64("rate", rate).
		Msg("Rate refreshed")
	return nil
}

// Name returns the job name for scheduling and logging.
func (j *RefreshJob) Name() string {
	return "exchange_rate_refresh"
}
