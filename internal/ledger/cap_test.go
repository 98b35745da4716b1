package ledger

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"ledgerd/internal/models"
)

func TestCreditWithCapClampsAtHeadroom(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t)
	register(t, e, "0xroot", "", 1)

	// A user at 395 earned against a 400 cap has 5 of headroom left.
	e.st.users["0xroot"].TotalEarnings = 395
	e.st.users["0xroot"].EarningsCap = 400
	e.st.users["0xroot"].Balance = 395

	tx := e.newTxn()
	u := tx.user("0xroot")
	credited, overflow := tx.creditWithCap(u, 20, models.ReasonDirectBonus, 0)

	require.Equal(t, int64(5), credited)
	require.Equal(t, int64(15), overflow)
	require.Equal(t, int64(400), u.TotalEarnings)
	require.Equal(t, int64(400), u.Balance)

	overflowReceipts := receiptsByReason(tx.receipts, models.ReasonCapOverflow)
	require.Len(t, overflowReceipts, 1)
	require.Equal(t, "pool:"+models.PoolHelp, overflowReceipts[0].Recipient)
	require.Equal(t, int64(15), overflowReceipts[0].Amount)
}

func TestCreditWithCapAtZeroHeadroom(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t)
	register(t, e, "0xroot", "", 1)

	e.st.users["0xroot"].TotalEarnings = 12000 // equal to the 4x cap on 3000

	tx := e.newTxn()
	u := tx.user("0xroot")
	credited, overflow := tx.creditWithCap(u, 100, models.ReasonDirectBonus, 0)

	require.Zero(t, credited)
	require.Equal(t, int64(100), overflow)
	require.Empty(t, receiptsByReason(tx.receipts, models.ReasonDirectBonus),
		"no credit receipt when nothing was credited")
}

func TestEarningsNeverExceedCap(t *testing.T) {
	t.Parallel()
	e, st, _ := newTestEngine(t)

	// Root buys the smallest package (cap 12000) and then earns from a long
	// run of direct referrals. Every credit past the cap must be redirected,
	// never applied.
	register(t, e, "0xroot", "", 1)
	totalIn := int64(3000)
	for i := 0; i < 15; i++ {
		register(t, e, fmt.Sprintf("0xd%d", i), "0xroot", 1)
		totalIn += 3000

		root, err := e.UserInfo("0xroot")
		require.NoError(t, err)
		require.LessOrEqual(t, root.TotalEarnings, root.EarningsCap)
	}

	root, err := e.UserInfo("0xroot")
	require.NoError(t, err)
	require.Equal(t, root.EarningsCap, root.TotalEarnings, "15 directs must saturate a 12000 cap")
	require.Zero(t, root.RemainingCap())

	var overflow int64
	for _, r := range st.Receipts() {
		if r.Reason == models.ReasonCapOverflow {
			overflow += r.Amount
		}
	}
	require.Positive(t, overflow, "saturated cap must have redirected something")

	requireConserved(t, e, st, totalIn)
}

func TestUpgradeRaisesCap(t *testing.T) {
	t.Parallel()
	e, _, _ := newTestEngine(t)

	register(t, e, "0xroot", "", 1)
	register(t, e, "0xb", "0xroot", 1)

	// Saturate root's cap, then let an upgrade reopen headroom.
	e.st.users["0xroot"].TotalEarnings = 12000

	root, err := e.UserInfo("0xroot")
	require.NoError(t, err)
	require.Zero(t, root.RemainingCap())

	register(t, e, "0xc", "0xroot", 1) // all credits overflow
	root, err = e.UserInfo("0xroot")
	require.NoError(t, err)
	require.Equal(t, int64(12000), root.TotalEarnings)

	e.st.users["0xroot"].TotalInvestment = 5000
	e.st.users["0xroot"].EarningsCap = 20000

	register(t, e, "0xd", "0xroot", 1)
	root, err = e.UserInfo("0xroot")
	require.NoError(t, err)
	require.Greater(t, root.TotalEarnings, int64(12000), "new headroom accepts credits again")
}
