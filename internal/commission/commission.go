// Package commission содержит расчёт комиссий в базисных пунктах.
package commission

// DefaultRateBps задаёт ставку комиссии по умолчанию на вклад и на выплату наград (6%).
const DefaultRateBps = 600

// Apply делит сумму на чистую часть и комиссию: fee = amount * rateBps / 10000.
// Деление усечённое, поэтому комиссия никогда не завышается.
func Apply(amount, rateBps int64) (net, fee int64) {
	if amount <= 0 || rateBps <= 0 {
		return amount, 0
	}
	fee = amount * rateBps / 10000
	return amount - fee, fee
}
