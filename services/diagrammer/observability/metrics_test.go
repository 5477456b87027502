// Copyright (C) 2025 Flowsmith Labs (dev@flowsmith.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetrics_Idempotent(t *testing.T) {
	first := InitMetrics()
	second := InitMetrics()

	require.NotNil(t, first)
	assert.Same(t, first, second, "repeated init must return the same instance")
}

func TestRecordBatch(t *testing.T) {
	m := InitMetrics()
	before := testutil.ToFloat64(m.BatchesTotal.WithLabelValues("partial_failure"))

	RecordBatch("partial_failure")

	after := testutil.ToFloat64(m.BatchesTotal.WithLabelValues("partial_failure"))
	assert.Equal(t, before+1, after)
}

func TestRecordVariant(t *testing.T) {
	m := InitMetrics()
	okBefore := testutil.ToFloat64(m.VariantsTotal.WithLabelValues("success"))
	errBefore := testutil.ToFloat64(m.VariantsTotal.WithLabelValues("error"))

	RecordVariant(false)
	RecordVariant(true)
	RecordVariant(true)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(m.VariantsTotal.WithLabelValues("success")))
	assert.Equal(t, errBefore+2, testutil.ToFloat64(m.VariantsTotal.WithLabelValues("error")))
}

func TestObserveRender_DoesNotPanic(t *testing.T) {
	InitMetrics()
	assert.NotPanics(t, func() {
		ObserveRender("svg", 0.42)
		ObserveGeneration(1.5)
	})
}
