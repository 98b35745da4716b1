package ledger

import (
	"ledgerd/internal/models"
	"ledgerd/internal/plan"
)

// placeUser assigns the new user a forced-matrix slot: breadth-first from
// the sponsor's node, first available slot wins, spilling over beneath the
// sponsor when the direct slots are full. Children were appended in
// registration order, so placement is fully determined by the registration
// sequence.
func (t *txn) placeUser(u *models.User) ([]string, error) {
	p := t.e.plan

	if u.Sponsor == "" {
		// Root of the matrix.
		u.MatrixParent = ""
		u.MatrixLevel = 0
		u.MatrixPosition = 0
		return nil, nil
	}

	queue := []string{u.Sponsor}
	for len(queue) > 0 {
		addr := queue[0]
		queue = queue[1:]

		node := t.user(addr)
		if node == nil {
			continue
		}
		if node.MatrixLevel+1 > p.MatrixDepthLimit {
			continue
		}
		kids := t.e.st.children[addr]
		if len(kids) < p.MatrixWidth {
			u.MatrixParent = addr
			u.MatrixLevel = node.MatrixLevel + 1
			u.MatrixPosition = node.MatrixPosition*int64(p.MatrixWidth) + int64(len(kids))
			t.placed = &placementRef{parent: addr, child: u.Address}
			return t.armCycles(addr), nil
		}
		queue = append(queue, kids...)
	}
	return nil, ErrMatrixFull
}

// armCycles counts the new placement into every matrix ancestor's subtree.
// Each time an ancestor's fill count reaches a multiple of the fan-out its
// cycle completes and re-arms, so a node can cycle repeatedly as the matrix
// grows beneath it.
func (t *txn) armCycles(parent string) []string {
	width := int64(t.e.plan.MatrixWidth)
	var owners []string
	addr := parent
	for addr != "" {
		u := t.user(addr)
		if u == nil {
			break
		}
		u.MatrixFills++
		u.UpdatedAt = t.now
		if u.MatrixFills%width == 0 {
			owners = append(owners, addr)
		}
		addr = u.MatrixParent
	}
	return owners
}

// processCycles pays the matrix cycle bonus for each completed cycle. The
// bonus is a fixed fraction of the owner's package price, funded by the club
// pool and clamped to its balance; the cycle counter advances either way.
func (t *txn) processCycles(owners []string) {
	p := t.e.plan
	for _, addr := range owners {
		owner := t.user(addr)
		if owner == nil {
			continue
		}
		owner.MatrixCycles++
		owner.UpdatedAt = t.now

		price, ok := p.PackagePrice(owner.PackageLevel)
		if !ok {
			continue
		}
		bonus := plan.Share(price, p.CycleBonusBps)
		if club := t.pool(models.PoolClub); bonus > club.Balance {
			bonus = club.Balance
		}
		if bonus <= 0 {
			continue
		}
		t.drainPool(models.PoolClub, bonus, models.ReasonMatrixCycle)
		t.creditWithCap(owner, bonus, models.ReasonMatrixCycle, 0)
	}
}
