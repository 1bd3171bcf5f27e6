package main

import (
	"fmt"
	"os"
	"time"

	"github.com/scullers68/sprint-reports/internal/analytics"
	"github.com/scullers68/sprint-reports/internal/audit"
	"github.com/scullers68/sprint-reports/internal/fieldmap"
	"github.com/scullers68/sprint-reports/internal/portfolio"
	"github.com/scullers68/sprint-reports/internal/syncengine"
	"github.com/scullers68/sprint-reports/internal/tracker"
)

// newTrackerClient builds the tracker client from the loaded config.
func newTrackerClient() *tracker.Client {
	return tracker.NewClient(tracker.Config{
		BaseURL:          cfg.TrackerBaseURL,
		AuthMethod:       tracker.AuthMethod(cfg.TrackerAuthMethod),
		Email:            cfg.TrackerEmail,
		APIToken:         cfg.TrackerAPIToken,
		Username:         cfg.TrackerUsername,
		Password:         cfg.TrackerPassword,
		OAuth:            cfg.OAuth,
		RateLimit:        cfg.RateLimit,
		RateWindow:       cfg.RateWindow,
		MaxRetries:       cfg.MaxRetries,
		Timeout:          cfg.RequestTimeout,
		StoryPointsField: cfg.StoryPointsField,
	})
}

// newAuditLog builds the audit chain writer. Disabled logs still verify
// and report; they just stop recording.
func newAuditLog() *audit.Log {
	if !cfg.AuditEnabled {
		return audit.Disabled(store)
	}
	return audit.New(store,
		audit.WithRetentionDays(cfg.RetentionDays),
		audit.WithWarningHandler(func(msg string) {
			fmt.Fprintf(os.Stderr, "Warning: audit: %s\n", msg)
		}),
	)
}

// newSyncEngine wires the sync engine to the tracker client and audit log.
func newSyncEngine(client *tracker.Client, log *audit.Log) *syncengine.Engine {
	return syncengine.New(store, client,
		syncengine.WithEventSink(log),
		syncengine.WithMessageHandler(func(msg string) {
			fmt.Fprintln(os.Stderr, msg)
		}),
	)
}

// newAnalytics builds the analytics engine over live tracker issues.
func newAnalytics(client *tracker.Client) *analytics.Engine {
	return analytics.New(store, client)
}

// newPortfolio builds the portfolio aggregator.
func newPortfolio(client *tracker.Client) *portfolio.Aggregator {
	return portfolio.New(store, newAnalytics(client))
}

// newMapper builds the field mapper.
func newMapper() *fieldmap.Mapper {
	return fieldmap.NewMapper(store)
}

// parseTimeFlag parses an RFC3339 or date-only flag value.
func parseTimeFlag(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want RFC3339 or YYYY-MM-DD)", value)
	}
	return t, nil
}
