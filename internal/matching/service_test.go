package matching

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia/backoffice/internal/audit"
	"github.com/custodia/backoffice/internal/domain"
	"github.com/custodia/backoffice/internal/feed"
	"github.com/custodia/backoffice/internal/repository"
	"github.com/custodia/backoffice/internal/schedule"
)

func newTestService(t *testing.T, fixtureDir string) (*Service, *repository.BreakRepo) {
	t.Helper()

	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	posRepo := repository.NewPositionRepo(db)
	brkRepo := repository.NewBreakRepo(db)
	trail := audit.NewTrail(repository.NewAuditRepo(db))

	svc := NewService(
		feed.NewFixtureSource(fixtureDir),
		posRepo, brkRepo, trail,
		DefaultTolerances(), "CSCS", "NGX",
	)
	return svc, brkRepo
}

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRunPersistsBreaksAndKeepsAges(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "CSCS.json",
		`[{"isin":"NG000001","instrument":"ZENITHBANK","owner_id":"CLT-1","quantity":500000,"notional_value":10000000}]`)
	writeFixture(t, dir, "NGX.json",
		`[{"isin":"NG000001","instrument":"ZENITHBANK","owner_id":"CLT-1","quantity":510000,"notional_value":10200000}]`)

	svc, _ := newTestService(t, dir)

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewBreaks)
	require.Len(t, result.Breaks, 1)
	first := result.Breaks[0]
	assert.Equal(t, domain.BreakSeverityMedium, first.Severity)
	assert.NotEmpty(t, first.ID)

	// A second run must not duplicate the open break; the original row and
	// its detection time survive.
	result, err = svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewBreaks)
	require.Len(t, result.Breaks, 1)
	assert.Equal(t, first.ID, result.Breaks[0].ID)
}

func TestRunFeedUnavailable(t *testing.T) {
	svc, _ := newTestService(t, t.TempDir()) // no fixtures on disk

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsUnavailable(err), "missing feed must surface as unavailable, got %v", err)
}

func TestResolveBreak(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "CSCS.json",
		`[{"isin":"NG000001","instrument":"ZENITHBANK","owner_id":"CLT-1","quantity":500000,"notional_value":10000000}]`)
	writeFixture(t, dir, "NGX.json", `[]`)

	svc, _ := newTestService(t, dir)
	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Breaks, 1)
	id := result.Breaks[0].ID

	b, err := svc.ResolveBreak(id, "ops1")
	require.NoError(t, err)
	assert.Equal(t, domain.BreakStatusResolved, b.Status)
	require.NotNil(t, b.ResolvedAt)

	// Resolving again is a no-op success.
	b, err = svc.ResolveBreak(id, "ops1")
	require.NoError(t, err)
	assert.Equal(t, domain.BreakStatusResolved, b.Status)

	// Unknown break is not found.
	_, err = svc.ResolveBreak("BRK-missing", "ops1")
	assert.True(t, domain.IsNotFound(err))
}

func TestListBreaksComputesAge(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "CSCS.json",
		`[{"isin":"NG000001","instrument":"ZENITHBANK","owner_id":"CLT-1","quantity":500000,"notional_value":10000000}]`)
	writeFixture(t, dir, "NGX.json", `[]`)

	svc, _ := newTestService(t, dir)
	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	// Read the book as if eight hours passed.
	svc.now = func() time.Time { return time.Now().Add(8 * time.Hour) }

	breaks, err := svc.ListBreaks(repository.BreakFilter{Status: string(domain.BreakStatusOpen)})
	require.NoError(t, err)
	require.Len(t, breaks, 1)
	assert.InDelta(t, 8.0, breaks[0].AgeHours, 0.1)
}

func TestPeriodicRefreshKeepsBookCurrent(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "CSCS.json",
		`[{"isin":"NG000001","instrument":"ZENITHBANK","owner_id":"CLT-1","quantity":500000,"notional_value":10000000}]`)
	writeFixture(t, dir, "NGX.json",
		`[{"isin":"NG000001","instrument":"ZENITHBANK","owner_id":"CLT-1","quantity":510000,"notional_value":10200000}]`)

	svc, brkRepo := newTestService(t, dir)

	// The background refresh runs the full reconciliation on its interval,
	// so breaks appear without any operator-triggered run.
	task := schedule.NewTask("feed-refresh", 10*time.Millisecond, func(ctx context.Context) error {
		_, err := svc.Run(ctx)
		return err
	})
	task.Start(context.Background())
	defer task.Stop()

	require.Eventually(t, func() bool {
		breaks, err := brkRepo.List(repository.BreakFilter{Status: "open"})
		return err == nil && len(breaks) == 1
	}, time.Second, 10*time.Millisecond)
}
