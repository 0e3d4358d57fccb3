package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/pcr-tracker-go/internal/models"
)

type fakeSender struct {
	sent  []*bot.SendMessageParams
	fails int
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error) {
	if f.fails > 0 {
		f.fails--
		return nil, errors.New("telegram: too many requests")
	}
	f.sent = append(f.sent, params)
	return &tgmodels.Message{ID: len(f.sent)}, nil
}

func sampleRow() models.ReconciledRow {
	return models.ReconciledRow{
		ExtractedRecord: models.ExtractedRecord{
			IntradayPutOIChange:  12345,
			IntradayCallOIChange: -6789,
			IntradayPCR:          decimal.RequireFromString("1.35"),
			UnderlyingPrice:      5812,
			PriceChangePercent:   decimal.RequireFromString("0.78"),
		},
		Timestamp:   time.Date(2025, 3, 14, 10, 31, 0, 0, ist),
		Trend:       models.TrendBullish,
		Observation: "Intraday PCR 1.35 indicates bullish trend.",
	}
}

func TestFormatTrendChange(t *testing.T) {
	text := formatTrendChange("CRUDEOILM", models.TrendBearish, sampleRow())
	assert.Contains(t, text, "*PCR trend change - CRUDEOILM*")
	assert.Contains(t, text, "Bearish Trend -> *Bullish Trend*")
	assert.Contains(t, text, "Put Change OI: 12,345")
	assert.Contains(t, text, "Call Change OI: -6,789")
	assert.Contains(t, text, "Price: 5,812 (0.78%)")
	assert.Contains(t, text, "2025-03-14 10:31 IST")

	row := sampleRow()
	row.UnderlyingPrice = 0
	assert.NotContains(t, formatTrendChange("", models.TrendNeutral, row), "Price:")
}

func TestTelegramNotifier_Sends(t *testing.T) {
	sender := &fakeSender{fails: 1}
	recovery := NewErrorRecoveryManager(quietLogger())
	recovery.sleep = func(context.Context, time.Duration) error { return nil }
	n := newTelegramNotifier(sender, 42, "CRUDEOILM", recovery)

	require.NoError(t, n.NotifyTrendChange(context.Background(), models.TrendBearish, sampleRow()))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
	assert.Equal(t, tgmodels.ParseModeMarkdown, sender.sent[0].ParseMode)
}

func TestTelegramNotifier_GivesUp(t *testing.T) {
	sender := &fakeSender{fails: 5}
	recovery := NewErrorRecoveryManager(quietLogger())
	recovery.sleep = func(context.Context, time.Duration) error { return nil }
	n := newTelegramNotifier(sender, 42, "", recovery)

	assert.Error(t, n.NotifyTrendChange(context.Background(), models.TrendBearish, sampleRow()))
	assert.Empty(t, sender.sent)
}

func TestTelegramNotifier_SendTest(t *testing.T) {
	sender := &fakeSender{}
	n := newTelegramNotifier(sender, 42, "CRUDEOILM", nil)

	require.NoError(t, n.SendTest(context.Background()))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "PCR tracker alerts are configured for CRUDEOILM", sender.sent[0].Text)

	sender.fails = 1
	assert.Error(t, n.SendTest(context.Background()))
}

func TestNewTelegramNotifier_Validation(t *testing.T) {
	_, err := NewTelegramNotifier("", 1, "", nil)
	assert.Error(t, err)
	_, err = NewTelegramNotifier("123:abc", 0, "", nil)
	assert.Error(t, err)
}
