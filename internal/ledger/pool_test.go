package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ledgerd/internal/models"
	"ledgerd/internal/store"
)

func TestHelpPoolEqualSplit(t *testing.T) {
	t.Parallel()
	e, st, _ := newTestEngine(t)

	register(t, e, "0xroot", "", 2)
	register(t, e, "0xa", "0xroot", 2)
	register(t, e, "0xb", "0xroot", 2)

	balance := poolBalance(e, models.PoolHelp)
	require.Positive(t, balance)
	per := balance / 3

	before := map[string]int64{}
	for _, addr := range []string{"0xroot", "0xa", "0xb"} {
		u, err := e.UserInfo(addr)
		require.NoError(t, err)
		before[addr] = u.Balance
	}

	report, err := e.DistributePool(context.Background(), models.PoolHelp)
	require.NoError(t, err)
	require.Equal(t, 3, report.Recipients)
	require.Equal(t, per*3, report.Distributed)
	require.Equal(t, balance-per*3, report.Remainder, "sub-cent remainder stays pooled")

	for _, addr := range []string{"0xroot", "0xa", "0xb"} {
		u, err := e.UserInfo(addr)
		require.NoError(t, err)
		require.Equal(t, before[addr]+per, u.Balance, "equal share for %s", addr)
	}

	requireConserved(t, e, st, 3*5000)
}

func TestPoolDistributionCadence(t *testing.T) {
	t.Parallel()
	e, _, clock := newTestEngine(t)

	register(t, e, "0xroot", "", 1)
	register(t, e, "0xa", "0xroot", 1)

	_, err := e.DistributePool(context.Background(), models.PoolHelp)
	require.NoError(t, err)

	// A second run inside the weekly window is rejected even though new
	// accruals have arrived.
	register(t, e, "0xb", "0xroot", 1)
	_, err = e.DistributePool(context.Background(), models.PoolHelp)
	require.ErrorIs(t, err, ErrDistributionAlreadyRun)

	clock.Advance(6 * 24 * time.Hour)
	_, err = e.DistributePool(context.Background(), models.PoolHelp)
	require.ErrorIs(t, err, ErrDistributionAlreadyRun)

	clock.Advance(24 * time.Hour)
	report, err := e.DistributePool(context.Background(), models.PoolHelp)
	require.NoError(t, err)
	require.Equal(t, 3, report.Recipients)
}

func TestPoolDistributionRejections(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	t.Run("club pool never distributes", func(t *testing.T) {
		_, err := e.DistributePool(ctx, models.PoolClub)
		require.ErrorIs(t, err, ErrPoolNotDistributable)
	})

	t.Run("unknown pool", func(t *testing.T) {
		_, err := e.DistributePool(ctx, "bonus")
		require.ErrorIs(t, err, ErrUnknownPool)
	})

	t.Run("empty pool", func(t *testing.T) {
		_, err := e.DistributePool(ctx, models.PoolHelp)
		require.ErrorIs(t, err, ErrNothingToDistribute)
	})
}

func TestHelpPoolNoEligibleRecipients(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	register(t, e, "0xroot", "", 1)
	register(t, e, "0xa", "0xroot", 1)
	require.NoError(t, e.SetBlacklisted(ctx, "0xroot", true))
	require.NoError(t, e.SetBlacklisted(ctx, "0xa", true))

	balance := poolBalance(e, models.PoolHelp)
	_, err := e.DistributePool(ctx, models.PoolHelp)
	require.ErrorIs(t, err, ErrNoEligibleRecipients)
	require.Equal(t, balance, poolBalance(e, models.PoolHelp), "rejection leaves the pool intact")
}

func TestLeaderPoolSplitsBetweenRankSets(t *testing.T) {
	t.Parallel()
	e, st, _ := newTestEngine(t)

	register(t, e, "0xroot", "", 4)
	register(t, e, "0xa", "0xroot", 4)
	register(t, e, "0xb", "0xroot", 4)
	e.st.users["0xroot"].Rank = models.RankSilverStar
	e.st.users["0xa"].Rank = models.RankShiningStar

	balance := poolBalance(e, models.PoolLeader)
	require.Positive(t, balance)
	shiningShare := balance * 5000 / 10000
	silverShare := balance - shiningShare

	report, err := e.DistributePool(context.Background(), models.PoolLeader)
	require.NoError(t, err)
	require.Equal(t, 2, report.Recipients)
	require.Equal(t, balance, report.Distributed)

	payouts := receiptsByReason(batchReceipts(t, st, report.BatchID), models.ReasonPoolPayout)
	byRecipient := map[string]int64{}
	for _, r := range payouts {
		if r.Amount > 0 {
			byRecipient[r.Recipient] += r.Amount
		}
	}
	require.Equal(t, shiningShare, byRecipient["0xa"])
	require.Equal(t, silverShare, byRecipient["0xroot"])
	require.Zero(t, byRecipient["0xb"], "unranked users take nothing from the leader pool")

	requireConserved(t, e, st, 3*20000)
}

func TestLeaderPoolEmptyRankSetKeepsItsHalf(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t)

	register(t, e, "0xroot", "", 4)
	register(t, e, "0xa", "0xroot", 4)
	e.st.users["0xa"].Rank = models.RankShiningStar

	balance := poolBalance(e, models.PoolLeader)
	shiningShare := balance * 5000 / 10000

	report, err := e.DistributePool(context.Background(), models.PoolLeader)
	require.NoError(t, err)
	require.Equal(t, 1, report.Recipients)
	require.Equal(t, shiningShare, report.Distributed)
	require.Equal(t, balance-shiningShare, poolBalance(e, models.PoolLeader),
		"the silver half waits for a qualifier")
}

func TestDistributeDuePools(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t)

	register(t, e, "0xroot", "", 1)
	register(t, e, "0xa", "0xroot", 1)
	e.st.users["0xa"].Rank = models.RankShiningStar

	reports := e.DistributeDuePools(context.Background())
	require.Len(t, reports, 2)
	require.Equal(t, models.PoolHelp, reports[0].Pool)
	require.Equal(t, models.PoolLeader, reports[1].Pool)

	// Both windows are now closed.
	require.Empty(t, e.DistributeDuePools(context.Background()))
}

// batchReceipts pulls one committed batch back out of the store.
func batchReceipts(t *testing.T, st *store.MemoryStore, batchID string) []models.Receipt {
	t.Helper()
	var out []models.Receipt
	for _, rec := range st.Receipts() {
		if rec.BatchID == batchID {
			out = append(out, rec)
		}
	}
	if len(out) == 0 {
		t.Fatalf("no receipts recorded for batch %s", batchID)
	}
	return out
}
