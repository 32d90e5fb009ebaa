package graceful

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/global-credit/credit_core/pkg/logger"
)

func newTestDrainer(grace time.Duration) *Drainer {
	return NewDrainer(grace, logger.NewLogger(zap.NewNop()))
}

func TestDrainRunsStagesInRegistrationOrder(t *testing.T) {
	d := newTestDrainer(time.Second)

	var order []string
	d.Add("http intake", func(time.Duration) error {
		order = append(order, "http intake")
		return nil
	})
	d.Add("queue bridge", func(time.Duration) error {
		order = append(order, "queue bridge")
		return nil
	})
	d.Add("worker pool", func(time.Duration) error {
		order = append(order, "worker pool")
		return nil
	})
	d.AddCloser("database", func() error {
		order = append(order, "database")
		return nil
	})

	d.Drain()
	assert.Equal(t, []string{"http intake", "queue bridge", "worker pool", "database"}, order)
}

func TestDrainContinuesPastFailedStage(t *testing.T) {
	d := newTestDrainer(time.Second)

	var ran []string
	d.Add("worker pool", func(time.Duration) error {
		ran = append(ran, "worker pool")
		return errors.New("shutdown timeout exceeded")
	})
	d.AddCloser("database", func() error {
		ran = append(ran, "database")
		return nil
	})

	d.Drain()
	assert.Equal(t, []string{"worker pool", "database"},
		ran, "a stuck stage must not keep later stages from closing")
}

func TestDrainBudgetShrinksForLaterStages(t *testing.T) {
	d := newTestDrainer(200 * time.Millisecond)

	var budgets []time.Duration
	slow := func(timeout time.Duration) error {
		budgets = append(budgets, timeout)
		time.Sleep(120 * time.Millisecond)
		return nil
	}
	d.Add("first", slow)
	d.Add("second", slow)

	d.Drain()
	assert.Len(t, budgets, 2)
	assert.Greater(t, budgets[0], budgets[1],
		"an overrunning early stage must eat into later budgets")
}

func TestDrainExhaustedWindowStillRunsEverything(t *testing.T) {
	d := newTestDrainer(50 * time.Millisecond)

	var ran int
	d.Add("slow", func(time.Duration) error {
		time.Sleep(80 * time.Millisecond)
		ran++
		return nil
	})
	d.AddCloser("redis", func() error { ran++; return nil })
	d.AddCloser("database", func() error { ran++; return nil })

	d.Drain()
	assert.Equal(t, 3, ran)
}
