package app

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/pcr-tracker-go/internal/config"
	"github.com/irfndi/pcr-tracker-go/internal/models"
	"github.com/irfndi/pcr-tracker-go/internal/services"
	"github.com/irfndi/pcr-tracker-go/internal/sheet"
)

type page string

func (p page) Fetch(context.Context) (string, error) { return string(p), nil }

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Source:      config.SourceConfig{URL: "http://127.0.0.1:1/pcr", Symbol: "CRUDEOILM", Timeout: "1s"},
		Extractor:   config.ExtractorConfig{PriceMin: 5000, PriceMax: 7000},
		Reconciler: config.ReconcilerConfig{
			TrendBasis: "intraday",
			BearishAt:  "0.8",
			BullishAt:  "1.2",
		},
		Sheet: config.SheetConfig{
			Backend:      config.BackendMemory,
			Worksheet:    "PCR_Data_Live",
			HeaderRow:    1,
			DataStartRow: 18,
			DataEndRow:   2000,
			Timezone:     "Asia/Kolkata",
		},
		Schedule: config.ScheduleConfig{
			Cron:         "5 * * * * *",
			WindowStart:  "09:00",
			WindowEnd:    "23:30",
			WeekdaysOnly: true,
			Backoff:      "30s",
		},
	}
}

func quietLoggers() (*slog.Logger, *logrus.Logger) {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return slog.New(slog.NewTextHandler(io.Discard, nil)), l
}

func TestBuild_MemoryBackend(t *testing.T) {
	logger, svc := quietLoggers()
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	a, err := Build(context.Background(), testConfig(), logger, svc, Options{
		Fetcher: page("Put OI Chg 1,234\nCall OI Chg -567\nIntraday PCR 0.65"),
		Now:     func() time.Time { return time.Date(2025, 3, 14, 10, 31, 5, 0, ist) },
	})
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &sheet.MemoryStore{}, a.Store)
	assert.Equal(t, "http://127.0.0.1:1/pcr", a.Source.URL())
	assert.Equal(t, 18, a.Controller.Region().FirstRow)
	assert.Contains(t, a.HealthChecks(), "store")
	assert.Nil(t, a.HealthChecks()["redis"])

	// Friday 10:31 IST is inside the window, Saturday is not.
	assert.True(t, a.Window.Allows(time.Date(2025, 3, 14, 10, 31, 0, 0, ist)))
	assert.False(t, a.Window.Allows(time.Date(2025, 3, 15, 10, 31, 0, 0, ist)))

	res := a.Controller.RunManual(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, services.OutcomeWritten, res.Outcome)
	assert.Equal(t, 18, res.Row)
}

func TestBuild_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Redis = config.RedisConfig{Enabled: true, Host: mr.Host(), Port: port}
	logger, svc := quietLoggers()

	a, err := Build(context.Background(), cfg, logger, svc, Options{
		Store:   sheet.NewMemoryStore(),
		Fetcher: page("Put OI Chg 1,234\nCall OI Chg -567\nIntraday PCR 0.65"),
	})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.HealthChecks()["redis"])
	assert.NoError(t, a.HealthChecks()["redis"].HealthCheck(context.Background()))

	res := a.Controller.RunManual(context.Background())
	require.Equal(t, services.OutcomeWritten, res.Outcome)
	assert.True(t, mr.Exists("pcr:latest"))
}

func TestBuild_Errors(t *testing.T) {
	logger, svc := quietLoggers()

	t.Run("unreachable redis", func(t *testing.T) {
		cfg := testConfig()
		cfg.Redis = config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}
		_, err := Build(context.Background(), cfg, logger, svc, Options{})
		assert.Error(t, err)
	})

	t.Run("bad extra pattern", func(t *testing.T) {
		cfg := testConfig()
		cfg.Extractor.ExtraPatterns = map[string][]string{"intraday_pcr": {"("}}
		_, err := Build(context.Background(), cfg, logger, svc, Options{})
		assert.Error(t, err)
	})

	t.Run("bad window", func(t *testing.T) {
		cfg := testConfig()
		cfg.Schedule.WindowStart = "9am"
		_, err := Build(context.Background(), cfg, logger, svc, Options{})
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig()
		cfg.Sheet.Backend = "excel"
		_, err := Build(context.Background(), cfg, logger, svc, Options{})
		assert.Error(t, err)
	})
}

func TestNewReconciler_Labels(t *testing.T) {
	r, err := NewReconciler(config.ReconcilerConfig{
		TrendBasis:  "overall",
		BearishAt:   "0.7",
		BullishAt:   "1.3",
		BasisLabels: map[string]string{"overall": "OI PCR"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.TrendBasisOverall, r.Basis())

	_, err = NewReconciler(config.ReconcilerConfig{TrendBasis: "intraday", BearishAt: "x", BullishAt: "1.2"})
	assert.Error(t, err)
}

func TestNewExtractor_Band(t *testing.T) {
	e, err := NewExtractor(config.ExtractorConfig{PriceMin: 4000, PriceMax: 9000})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), e.Band().Min)
	assert.Equal(t, int64(9000), e.Band().Max)
}
