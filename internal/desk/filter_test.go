package desk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

func marketOrders() []dto.Order {
	a := order("a1b2c3d4-0001", "Pending", 120000, "2024-01-01T08:00:00")
	a.BuyerName = "Nguyễn Văn An"
	a.BuyerPhone = "0912345678"
	a.SellerName = "Trần Thị Bình"
	a.StoreName = "Rau Sạch Bình"
	a.Items = []dto.OrderItem{{ProductName: "Rau muống", Quantity: 2, PriceAtPurchase: 15000}}

	b := order("e5f6a7b8-0002", "Paid", 350000, "2024-01-01T23:59:00")
	b.BuyerName = "Lê Thị Hoa"
	b.BuyerPhone = "0987654321"
	b.SellerName = "Phạm Văn Cường"
	b.StoreName = "Cá Tươi Cường"
	b.Items = []dto.OrderItem{{ProductName: "Cá lóc", Quantity: 1, PriceAtPurchase: 350000}}

	c := order("c9d0e1f2-0003", "Completed", 90000, "2024-01-02T00:00:01")
	c.BuyerName = "Hoàng Minh"
	c.BuyerPhone = "0909333000"
	c.SellerName = "Trần Thị Bình"
	c.StoreName = "Rau Sạch Bình"
	c.Items = []dto.OrderItem{{ProductName: "Cà chua", Quantity: 3, PriceAtPurchase: 30000}}

	d := order("f3a4b5c6-0004", "Paid", 50000, "not a date")
	d.BuyerName = "Đỗ Quang"
	d.BuyerPhone = "0912000111"

	return []dto.Order{a, b, c, d}
}

func ids(orders []dto.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

func TestApplyFilters_EmptyCriteriaIsIdentity(t *testing.T) {
	orders := marketOrders()

	got := ApplyFilters(orders, Criteria{Search: "   "}, ict)
	require.Equal(t, orders, got)

	got[0].BuyerName = "changed"
	assert.Equal(t, "Nguyễn Văn An", orders[0].BuyerName, "result must not alias the input")

	assert.Empty(t, ApplyFilters(nil, Criteria{Status: "Paid"}, ict))
	assert.NotNil(t, ApplyFilters(nil, Criteria{}, ict))
}

func TestApplyFilters_SearchByPhone(t *testing.T) {
	got := ApplyFilters(marketOrders(), Criteria{Search: "0912"}, ict)

	assert.Equal(t, []string{"a1b2c3d4-0001", "f3a4b5c6-0004"}, ids(got))
}

func TestApplyFilters_SearchFields(t *testing.T) {
	tests := []struct {
		name   string
		search string
		want   []string
	}{
		{name: "order id prefix", search: "E5F6", want: []string{"e5f6a7b8-0002"}},
		{name: "buyer name case-insensitive", search: "NGUYỄN", want: []string{"a1b2c3d4-0001"}},
		{name: "seller name", search: "trần thị", want: []string{"a1b2c3d4-0001", "c9d0e1f2-0003"}},
		{name: "store name", search: "cá tươi", want: []string{"e5f6a7b8-0002"}},
		{name: "product name", search: "cà chua", want: []string{"c9d0e1f2-0003"}},
		{name: "no match", search: "bánh mì", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyFilters(marketOrders(), Criteria{Search: tt.search}, ict)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestApplyFilters_DigitsDoNotMatchNames(t *testing.T) {
	o := order("zz", "Pending", 1, "2024-01-01T00:00:00")
	o.BuyerName = "Bà Tư"
	o.BuyerPhone = "0311111111"

	assert.Empty(t, ApplyFilters([]dto.Order{o}, Criteria{Search: "0912"}, ict))

	o.BuyerPhone = "0912345678"
	assert.Len(t, ApplyFilters([]dto.Order{o}, Criteria{Search: "0912"}, ict), 1)
}

func TestApplyFilters_Status(t *testing.T) {
	got := ApplyFilters(marketOrders(), Criteria{Status: "Paid"}, ict)
	assert.Equal(t, []string{"e5f6a7b8-0002", "f3a4b5c6-0004"}, ids(got))

	got = ApplyFilters(marketOrders(), Criteria{Status: "Confirmed"}, ict)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestApplyFilters_SingleDayRange(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, ict)
	criteria := Criteria{DateRange: &DateRange{From: day, To: day}}

	got := ApplyFilters(marketOrders(), criteria, ict)

	assert.Equal(t, []string{"a1b2c3d4-0001", "e5f6a7b8-0002"}, ids(got))
}

func TestApplyFilters_RangeUsesCalendarDayOfBounds(t *testing.T) {
	// Bounds given as UTC midnight still mean the whole calendar day in the desk location.
	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	criteria := Criteria{DateRange: &DateRange{From: from, To: from}}

	got := ApplyFilters(marketOrders(), criteria, ict)

	assert.Equal(t, []string{"c9d0e1f2-0003"}, ids(got))
}

func TestApplyFilters_MalformedDateFailsClosed(t *testing.T) {
	from := time.Date(2000, 1, 1, 0, 0, 0, 0, ict)
	to := time.Date(2100, 1, 1, 0, 0, 0, 0, ict)

	got := ApplyFilters(marketOrders(), Criteria{DateRange: &DateRange{From: from, To: to}}, ict)
	assert.NotContains(t, ids(got), "f3a4b5c6-0004")
	assert.Len(t, got, 3)

	got = ApplyFilters(marketOrders(), Criteria{Search: "Đỗ"}, ict)
	assert.Equal(t, []string{"f3a4b5c6-0004"}, ids(got))
}

func TestApplyFilters_HalfOpenRangeIsIgnored(t *testing.T) {
	criteria := Criteria{DateRange: &DateRange{From: time.Date(2030, 1, 1, 0, 0, 0, 0, ict)}}

	assert.Len(t, ApplyFilters(marketOrders(), criteria, ict), 4)
	assert.True(t, criteria.Empty())
}

func TestApplyFilters_ClausesCombineWithAnd(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, ict)
	criteria := Criteria{
		Search:    "bình",
		Status:    "Pending",
		DateRange: &DateRange{From: day, To: day.AddDate(0, 0, 5)},
	}

	got := ApplyFilters(marketOrders(), criteria, ict)
	assert.Equal(t, []string{"a1b2c3d4-0001"}, ids(got))

	criteria.Status = "Completed"
	got = ApplyFilters(marketOrders(), criteria, ict)
	assert.Equal(t, []string{"c9d0e1f2-0003"}, ids(got))
}

func TestParseCriteria(t *testing.T) {
	c, err := ParseCriteria("  rau ", "Paid", "2024-01-01", "2024-01-31", ict)
	require.NoError(t, err)
	assert.Equal(t, "rau", c.Search)
	assert.Equal(t, "Paid", c.Status)
	require.NotNil(t, c.DateRange)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, ict), c.DateRange.From)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, ict), c.DateRange.To)

	c, err = ParseCriteria("", "", "2024-01-01", "", ict)
	require.NoError(t, err)
	assert.Nil(t, c.DateRange)
	assert.True(t, c.Empty())

	_, err = ParseCriteria("", "Shipped", "", "", ict)
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	_, err = ParseCriteria("", "", "2024-13-01", "2024-01-02", ict)
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
}
