package coalescer

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitaliisemenov/adblock-compiler/internal/model"
)

func TestCoalescer_ConcurrentCallsShareOneExecution(t *testing.T) {
	c := New()
	var executions int32
	start := make(chan struct{})

	const callers = 10
	results := make([]*model.Result, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(idx int) {
			defer wg.Done()
			<-start
			results[idx], _, errs[idx] = c.Do("fp-1", func() (*model.Result, error) {
				atomic.AddInt32(&executions, 1)
				return &model.Result{RuleCount: 42}, nil
			})
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&executions))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 42, results[i].RuleCount)
	}
}

func TestCoalescer_SequentialCallsEachExecute(t *testing.T) {
	c := New()
	var executions int32

	for i := 0; i < 3; i++ {
		_, _, err := c.Do("fp-1", func() (*model.Result, error) {
			atomic.AddInt32(&executions, 1)
			return &model.Result{RuleCount: 1}, nil
		})
		require.NoError(t, err)
	}

	assert.Equal(t, int32(3), atomic.LoadInt32(&executions))
}

func TestCoalescer_DifferentFingerprintsExecuteSeparately(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	var executions int32

	for _, fp := range []string{"fp-1", "fp-2"} {
		wg.Add(1)
		go func(fp string) {
			defer wg.Done()
			c.Do(fp, func() (*model.Result, error) {
				atomic.AddInt32(&executions, 1)
				return &model.Result{}, nil
			})
		}(fp)
	}
	wg.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&executions))
}
