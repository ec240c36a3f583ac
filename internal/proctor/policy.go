package proctor

// DefaultBanThreshold is the number of violations that ends a session.
const DefaultBanThreshold = 2

// BanPolicy decides whether a session must be terminated early.
type BanPolicy struct {
	Threshold int
}

// ShouldBan is monotonic in total.
func (p BanPolicy) ShouldBan(total int) bool {
	return total >= p.Threshold
}

// Remaining returns how many more violations are tolerated before the ban.
func (p BanPolicy) Remaining(total int) int {
	if r := p.Threshold - total; r > 0 {
		return r
	}
	return 0
}
