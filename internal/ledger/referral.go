package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

const referralCodeLength = 8

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// looksLikeAddress distinguishes a literal address from a referral code.
// Addresses are hex-prefixed; codes are short alphanumeric strings.
func looksLikeAddress(ref string) bool {
	return strings.HasPrefix(strings.ToLower(ref), "0x") || len(ref) > 2*referralCodeLength
}

// ResolveSponsor accepts either a literal address or a referral code and
// returns the registered sponsor address.
func (e *Engine) ResolveSponsor(ref string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.resolveSponsorLocked(ref)
}

func (e *Engine) resolveSponsorLocked(ref string) (string, error) {
	if looksLikeAddress(ref) {
		addr := normalizeAddress(ref)
		if _, ok := e.st.users[addr]; !ok {
			return "", ErrNotRegistered
		}
		return addr, nil
	}
	addr, ok := e.st.codes[normalizeCode(ref)]
	if !ok {
		return "", ErrUnknownReferralCode
	}
	return addr, nil
}

// GenerateReferralCode assigns the user a permanent unique code. A code can
// be generated once; the mapping never changes afterwards.
func (e *Engine) GenerateReferralCode(ctx context.Context, address string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	addr := normalizeAddress(address)
	existing, ok := e.st.users[addr]
	if !ok {
		return "", ErrNotRegistered
	}
	if existing.ReferralCode != nil {
		return "", ErrAlreadyHasCode
	}

	code := e.newCodeLocked()
	t := e.newTxn()
	u := t.user(addr)
	u.ReferralCode = &code
	u.UpdatedAt = t.now
	t.code = &codeClaim{code: code, address: addr}

	if err := e.commit(ctx, t); err != nil {
		return "", err
	}
	e.log.Info("referral code generated", "address", addr, "code", code)
	return code, nil
}

func (e *Engine) newCodeLocked() string {
	for {
		raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
		code := raw[:referralCodeLength]
		if _, taken := e.st.codes[code]; !taken {
			return code
		}
	}
}
