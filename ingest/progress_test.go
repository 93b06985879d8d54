package ingest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_ReportsAtInterval(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 100, 10)
	p.Start()

	p.Increment(5)
	assert.Empty(t, buf.String(), "below the interval nothing is reported")

	p.Increment(5)
	assert.Contains(t, buf.String(), "10/100")

	p.Finish()
	assert.Contains(t, buf.String(), "100/100")
}

func TestProgressTracker_IgnoresUpdatesBeforeStart(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 10, 1)

	p.Increment(5)
	p.Finish()
	assert.Empty(t, buf.String())
}

func TestProgressTracker_CapsAtTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 3, 1)
	p.Start()

	p.Increment(10)
	assert.Contains(t, buf.String(), "3/3")
}
