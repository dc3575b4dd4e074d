package scheduler

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs int
	err  error
}

func (j *countingJob) Run() error {
	j.runs++
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())

	err := s.AddJob("not a cron expression", &countingJob{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "counting")
}

func TestAddJobAcceptsSecondsField(t *testing.T) {
	s := New(zerolog.Nop())

	assert.NoError(t, s.AddJob("0 0 3 * * *", &countingJob{}))
	assert.NoError(t, s.AddJob("@every 30m", &countingJob{}))
}

func TestRunNowExecutesAndPropagatesErrors(t *testing.T) {
	s := New(zerolog.Nop())

	job := &countingJob{}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, 1, job.runs)

	job.err = fmt.Errorf("upstream down")
	err := s.RunNow(job)
	require.Error(t, err)
	assert.Equal(t, 2, job.runs)
}
