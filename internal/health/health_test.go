package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverallStatus(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("keyboard", true, Static(StatusHealthy, "2 devices"))
	c.RegisterFunc("notifier", false, ErrorCheck("session bus", func(context.Context) error {
		return errors.New("no session bus")
	}))

	assert.Equal(t, StatusUnknown, c.OverallStatus(), "critical component not checked yet")

	report := c.Report(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	require.Contains(t, report.Components, "notifier")
	assert.Equal(t, "no session bus", report.Components["notifier"].Error)
	assert.Equal(t, "session bus failed", report.Components["notifier"].Message)

	c.RegisterFunc("keyboard", true, Static(StatusUnhealthy, "no devices"))
	assert.Equal(t, StatusUnhealthy, c.Report(context.Background()).Status)
}

func TestUnknownCritical(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("keyboard", true, Static(StatusHealthy, ""))
	assert.Equal(t, StatusUnknown, c.OverallStatus())
	c.Check(context.Background())
	assert.Equal(t, StatusHealthy, c.OverallStatus())
	assert.Equal(t, StatusHealthy, c.Results()["keyboard"].Status)
}

func TestCheckTimeoutAndPanic(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		},
	})
	c.RegisterFunc("broken", false, func(context.Context) CheckResult { panic("boom") })

	results := c.Check(context.Background())
	assert.Equal(t, "check timed out", results["slow"].Message)
	assert.Equal(t, StatusUnhealthy, results["broken"].Status)
	assert.Equal(t, "boom", results["broken"].Error)
}
