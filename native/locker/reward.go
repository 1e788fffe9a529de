package locker

import "math/big"

// SecondsPerYear is the accrual year (365.25 days).
const SecondsPerYear = 31_557_600

// Staking rates are expressed in hundredths of a basis point: a rate of
// 365250 pays 36.525% of the principal per year.
const (
	rateBpsDivisor     = 10_000
	ratePercentDivisor = 100
)

// StakingReward computes the reward earned by principal over elapsed seconds
// at the given rate. The divisions run in a fixed order so results match the
// ledger bit for bit regardless of caller.
func StakingReward(principal *big.Int, rate uint64, elapsedSeconds int64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || rate == 0 || elapsedSeconds <= 0 {
		return big.NewInt(0)
	}
	reward := new(big.Int).Mul(principal, big.NewInt(elapsedSeconds))
	reward.Mul(reward, new(big.Int).SetUint64(rate))
	reward.Quo(reward, big.NewInt(rateBpsDivisor))
	reward.Quo(reward, big.NewInt(ratePercentDivisor))
	reward.Quo(reward, big.NewInt(SecondsPerYear))
	return reward
}
