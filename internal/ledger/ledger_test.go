package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"ledgerd/internal/models"
	"ledgerd/internal/plan"
	"ledgerd/internal/store"
)

const testFeeRecipient = "treasury"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	return newTestEngineWithPlan(t, plan.Default())
}

func newTestEngineWithPlan(t *testing.T, p *plan.Plan) (*Engine, *store.MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	st := store.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	e, err := New(context.Background(), Config{
		Logger:       testLogger(),
		Plan:         p,
		Store:        st,
		Clock:        clock,
		FeeRecipient: testFeeRecipient,
	})
	require.NoError(t, err)
	return e, st, clock
}

// register purchases the given package for addr, sponsored by sponsorRef
// (empty for the root user).
func register(t *testing.T, e *Engine, addr, sponsorRef string, level int) *PaymentResult {
	t.Helper()
	price, ok := e.plan.PackagePrice(level)
	require.True(t, ok)
	res, err := e.ProcessPayment(context.Background(), PaymentEvent{
		ExternalID:   fmt.Sprintf("reg-%s-%d", addr, level),
		Payer:        addr,
		Amount:       price,
		PackageLevel: level,
		SponsorRef:   sponsorRef,
	})
	require.NoError(t, err)
	return res
}

func sumReceipts(receipts []models.Receipt) int64 {
	var sum int64
	for _, r := range receipts {
		sum += r.Amount
	}
	return sum
}

func receiptsByReason(receipts []models.Receipt, reason string) []models.Receipt {
	var out []models.Receipt
	for _, r := range receipts {
		if r.Reason == reason {
			out = append(out, r)
		}
	}
	return out
}

func poolBalance(e *Engine, id string) int64 {
	for _, p := range e.PoolBalances() {
		if p.ID == id {
			return p.Balance
		}
	}
	return 0
}

// requireConserved checks the system-wide ledger identity: everything paid
// in equals user balances plus pool balances plus admin fees plus money paid
// out through withdrawals.
func requireConserved(t *testing.T, e *Engine, st *store.MemoryStore, totalIn int64) {
	t.Helper()

	var balances int64
	for id := uint64(1); ; id++ {
		addr, ok := e.st.byID[id]
		if !ok {
			break
		}
		balances += e.st.users[addr].Balance
	}
	var pools int64
	for _, p := range e.PoolBalances() {
		pools += p.Balance
	}
	var fees, paidOut int64
	for _, r := range st.Receipts() {
		switch r.Reason {
		case models.ReasonAdminFee:
			fees += r.Amount
		case models.ReasonWithdrawal:
			paidOut += r.Amount
		}
	}
	require.Equal(t, totalIn, balances+pools+fees+paidOut,
		"payments in must equal balances + pools + fees + payouts")
}
