package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horssit/pesitd/internal/logger"
)

func TestRecordEmitsStructuredEvent(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "info", "json", false)

	sink := New()
	sink.Record(context.Background(), Event{
		Category:  CategoryAuthentication,
		EventType: "connect_accepted",
		Outcome:   OutcomeSuccess,
		PartnerID: "PART01",
		ClientIP:  "10.0.0.5",
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "AUTHENTICATION", entry["audit_category"])
	assert.Equal(t, "PART01", entry["audit_partner_id"])
	assert.Equal(t, "success", entry["audit_outcome"])
}

func TestRecordUsesWarnLevelForFailureOutcomes(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "warn", "json", false)

	sink := New()
	sink.Record(context.Background(), Event{
		Category:  CategoryAuthentication,
		EventType: "connect_rejected",
		Outcome:   OutcomeDenied,
		ErrorCode: "D3_304",
	})

	assert.True(t, strings.Contains(buf.String(), "D3_304"))
}
