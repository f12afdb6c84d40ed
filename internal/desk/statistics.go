package desk

import (
	"math"
	"time"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

// ComputeStatistics derives counts and revenue from orders. Day and month
// boundaries follow the calendar of now.Location(). Orders whose createdAt
// cannot be parsed still count toward totals but never toward a date bucket.
func ComputeStatistics(orders []dto.Order, now time.Time) dto.Statistics {
	loc := now.Location()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	stats := dto.Statistics{TotalOrders: len(orders)}
	for i := range orders {
		order := &orders[i]
		status := entity.Status(order.Status)

		switch status {
		case entity.StatusPending:
			stats.PendingOrders++
		case entity.StatusCompleted:
			stats.CompletedOrders++
		case entity.StatusCancelled:
			stats.CancelledOrders++
		}

		if !status.Paid() {
			continue
		}
		stats.PaidOrders++
		stats.TotalRevenue += order.TotalAmount

		created, ok := order.CreatedAt.In(loc)
		if !ok {
			continue
		}
		if !created.Before(startOfMonth) {
			stats.MonthlyRevenue += order.TotalAmount
		}
		if !created.Before(startOfToday) {
			stats.TodayRevenue += order.TotalAmount
		}
	}

	if stats.PaidOrders > 0 {
		stats.AverageOrderValue = int64(math.Round(float64(stats.TotalRevenue) / float64(stats.PaidOrders)))
	}
	stats.CompletionRate = percent(stats.CompletedOrders, stats.TotalOrders)
	stats.PaymentRate = percent(stats.PaidOrders, stats.TotalOrders)

	return stats
}

func percent(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(whole)))
}
