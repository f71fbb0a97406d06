package analyzer

import "math"

// popularity implements the ranking formula from spec §4.8 step g:
//
//	U = |unique participants|, M = message_count
//	H = (ln(1+U))^1.2 · (ln(1+M))^0.8 · (1 / (1 + max(0, M/U−6))^0.4)
//
// popularity is 0 when there are no participants (spec §8 invariant 8).
func popularity(participantCount, messageCount int) float64 {
	if participantCount == 0 {
		return 0
	}
	u := float64(participantCount)
	m := float64(messageCount)

	engagement := math.Pow(math.Log(1+u), 1.2)
	volume := math.Pow(math.Log(1+m), 0.8)

	ratio := m/u - 6
	if ratio < 0 {
		ratio = 0
	}
	damping := 1 / math.Pow(1+ratio, 0.4)

	return engagement * volume * damping
}
