package desk

import (
	"bufio"
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/Additional-Code/orderdesk/internal/dto"
	"github.com/Additional-Code/orderdesk/internal/entity"
)

const (
	exportIDLength   = 8
	exportDateLayout = "02/01/2006 15:04"
	currencySuffix   = "VND"
)

var exportHeader = []string{
	"Mã đơn",
	"Người mua",
	"Số điện thoại",
	"Người bán",
	"Tổng tiền",
	"Trạng thái",
	"Ngày tạo",
	"Địa chỉ giao hàng",
}

// WriteCSV writes orders as a header plus one row each. Every field is quoted
// and embedded quotes are doubled. It returns the number of order rows written.
func WriteCSV(w io.Writer, orders []dto.Order, loc *time.Location) (int, error) {
	if loc == nil {
		loc = time.Local
	}
	bw := bufio.NewWriter(w)
	printer := message.NewPrinter(language.Vietnamese)

	if err := writeQuoted(bw, exportHeader); err != nil {
		return 0, err
	}

	row := make([]string, len(exportHeader))
	for i := range orders {
		o := &orders[i]
		row[0] = ShortID(o.ID)
		row[1] = o.BuyerName
		row[2] = o.BuyerPhone
		row[3] = o.SellerName
		row[4] = FormatAmount(printer, o.TotalAmount)
		row[5] = entity.Status(o.Status).Label()
		row[6] = FormatDate(o.CreatedAt, loc)
		row[7] = o.DeliveryAddress
		if err := writeQuoted(bw, row); err != nil {
			return i, err
		}
	}

	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return len(orders), nil
}

// FormatAmount renders a VND amount with Vietnamese digit grouping, e.g. "1.234.567 VND".
func FormatAmount(p *message.Printer, amount int64) string {
	if p == nil {
		p = message.NewPrinter(language.Vietnamese)
	}
	return p.Sprintf("%d %s", amount, currencySuffix)
}

// FormatDate renders ts as "02/01/2006 15:04" in loc, or "" when ts is invalid.
func FormatDate(ts dto.Timestamp, loc *time.Location) string {
	created, ok := ts.In(loc)
	if !ok {
		return ""
	}
	return created.Format(exportDateLayout)
}

// ShortID is the display form of an order id: its first characters, upper-cased.
// Characters, not bytes: ids are not guaranteed to be ASCII.
func ShortID(id string) string {
	if r := []rune(id); len(r) > exportIDLength {
		id = string(r[:exportIDLength])
	}
	return strings.ToUpper(id)
}

func writeQuoted(w *bufio.Writer, fields []string) error {
	for i, field := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if err := w.WriteByte('"'); err != nil {
			return err
		}
		if _, err := w.WriteString(strings.ReplaceAll(field, `"`, `""`)); err != nil {
			return err
		}
		if err := w.WriteByte('"'); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}
