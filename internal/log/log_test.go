// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package log_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/probechain/tinyjs/internal/log"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := log.New(&buf, log.LevelWarn)

	l.Debug("should not appear")
	l.Info("should not appear either")
	assert.Empty(t, buf.String())

	l.Warn("now it logs")
	assert.Contains(t, buf.String(), "now it logs")
}

func TestFieldsAreRendered(t *testing.T) {
	var buf bytes.Buffer
	l := log.New(&buf, log.LevelDebug)

	l.Info("gc", log.F("freed", 128), log.F("dur", time.Millisecond))
	out := buf.String()
	assert.True(t, strings.Contains(out, "freed=128"))
}

func TestGCCycleLogsCounts(t *testing.T) {
	var buf bytes.Buffer
	l := log.New(&buf, log.LevelDebug)

	l.GCCycle(10, 3, 256, time.Millisecond)
	out := buf.String()
	assert.Contains(t, out, "blocks_before=10")
	assert.Contains(t, out, "blocks_after=3")
	assert.Contains(t, out, "words_freed=256")
}

func TestInternalErrorAttachesCallerFrame(t *testing.T) {
	var buf bytes.Buffer
	l := log.New(&buf, log.LevelDebug)

	l.InternalError("invariant broken")
	assert.Contains(t, buf.String(), "at=")
}
