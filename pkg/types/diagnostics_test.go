package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticsAppendPreservesExistingKeys(t *testing.T) {
	base := Diagnostics{"editor": "cms", "publishErrors": []any{
		map[string]any{"step": "stage_read", "message": "first"},
	}}

	next := base.AppendPublishError(PublishError{
		At:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Step:      "config_write",
		Subsystem: "feature-config",
		Kind:      "remote_mutation",
		Message:   "US: write rejected",
	})

	assert.Equal(t, "cms", next["editor"])
	errs := next.PublishErrors()
	require.Len(t, errs, 2)
	assert.Equal(t, "first", errs[0].Message)
	assert.Equal(t, "US: write rejected", errs[1].Message)
	assert.Len(t, base.PublishErrors(), 1, "original map must not be mutated")
}

func TestDiagnosticsValueScanRoundTrip(t *testing.T) {
	d := Diagnostics{}.AppendPublishError(PublishError{Step: "edge_validate", Message: "coupon mismatch"})

	raw, err := d.Value()
	require.NoError(t, err)

	var scanned Diagnostics
	require.NoError(t, scanned.Scan([]byte(raw.(string))))
	errs := scanned.PublishErrors()
	require.Len(t, errs, 1)
	assert.Equal(t, "edge_validate", errs[0].Step)
}

func TestDiagnosticsScanNilAndEmpty(t *testing.T) {
	var d Diagnostics
	require.NoError(t, d.Scan(nil))
	assert.NotNil(t, d)
	require.NoError(t, d.Scan(""))
	assert.Empty(t, d.PublishErrors())
	assert.Error(t, d.Scan(42))
}
