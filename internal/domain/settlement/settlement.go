// Package settlement содержит чистую арифметику расчётов в минимальных единицах валюты.
package settlement

import "time"

const (
	// PlatformFeePercent - комиссия площадки с каждой оплаченной консультации.
	PlatformFeePercent = 20

	// LateCancellationCutoff - окно перед началом звонка, внутри которого отмена считается поздней.
	LateCancellationCutoff = 6 * time.Hour

	// RequestTTL - сколько запрос на бронирование ждёт ответа профессионала.
	RequestTTL = 120 * time.Hour

	// RevisionTimeout - сколько профессионал может дорабатывать отчёт после revise.
	RevisionTimeout = 7 * 24 * time.Hour

	processorFeeBasisPoints = 290
	processorFeeFixedCents  = 30
)

// ReminderDelays - напоминания о доработке отчёта после revise.
var ReminderDelays = []time.Duration{24 * time.Hour, 48 * time.Hour}

// PlatformFee считает комиссию площадки с округлением половины вверх.
func PlatformFee(amountGross int64) int64 {
	if amountGross <= 0 {
		return 0
	}
	return (amountGross*PlatformFeePercent + 50) / 100
}

// NetPayout возвращает сумму к выплате профессионалу.
func NetPayout(amountGross, fee int64) int64 {
	return amountGross - fee
}

// IsLateCancellation истинно, если до начала осталось меньше cutoff (включая уже начавшийся звонок).
func IsLateCancellation(scheduledStart, now time.Time, cutoff time.Duration) bool {
	return scheduledStart.Sub(now) < cutoff
}

// EstimateProcessorFee оценивает комиссию эквайринга: ceil(gross * 2.9%) + 30.
func EstimateProcessorFee(amountGross int64) int64 {
	if amountGross <= 0 {
		return processorFeeFixedCents
	}
	return (amountGross*processorFeeBasisPoints+9999)/10000 + processorFeeFixedCents
}

// SplitShare делит остаток после комиссии эквайринга пополам между сторонами.
func SplitShare(amountGross, processorFee int64) (net, share int64) {
	net = amountGross - processorFee
	if net <= 0 {
		return net, 0
	}
	return net, net / 2
}
