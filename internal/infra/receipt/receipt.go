// Package receipt は支払い済み注文の領収書PDFを作る。
package receipt

import (
	"bytes"
	"fmt"

	"storefront/internal/domain/model"

	"github.com/go-pdf/fpdf"
)

type Renderer struct {
	ShopName string
}

func NewRenderer(shopName string) *Renderer {
	return &Renderer{ShopName: shopName}
}

// Render は (注文, 明細) からPDFを返す。副作用なし。
func (r *Renderer) Render(o model.Order, items []model.OrderItem) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Receipt "+o.ID, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, r.ShopName, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, "Receipt for order "+o.ID, "", 1, "L", false, 0, "")
	if o.PaidAt != nil {
		pdf.CellFormat(0, 7, "Paid at: "+o.PaidAt.UTC().Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	}
	if o.PaymentMethod != nil {
		ref := ""
		if o.PaymentRef != nil {
			ref = *o.PaymentRef
		}
		pdf.CellFormat(0, 7, fmt.Sprintf("Payment: %s %s", *o.PaymentMethod, ref), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	pdf.CellFormat(0, 6, "Bill to: "+o.CustomerName+" <"+o.CustomerEmail+">", "", 1, "L", false, 0, "")
	s := o.Shipping
	pdf.MultiCell(0, 6, fmt.Sprintf("Ship to: %s, %s %s %s %s %s", s.Name, s.PostalCode, s.Prefecture, s.City, s.Line1, s.Line2), "", "L", false)
	pdf.Ln(4)

	// 明細
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(90, 8, "Item", "1", 0, "L", false, 0, "")
	pdf.CellFormat(30, 8, "Unit", "1", 0, "R", false, 0, "")
	pdf.CellFormat(20, 8, "Qty", "1", 0, "R", false, 0, "")
	pdf.CellFormat(40, 8, "Amount", "1", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	for _, it := range items {
		name := it.ProductNameSnapshot
		if v := variantLabel(it); v != "" {
			name += " (" + v + ")"
		}
		pdf.CellFormat(90, 8, name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 8, it.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 8, fmt.Sprintf("%d", it.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 8, it.LineTotal().StringFixed(2), "1", 1, "R", false, 0, "")
	}

	total := func(label, v string) {
		pdf.CellFormat(140, 8, label, "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 8, v, "", 1, "R", false, 0, "")
	}
	total("Subtotal", o.Subtotal.StringFixed(2))
	total("Shipping", o.ShippingFee.StringFixed(2))
	pdf.SetFont("Helvetica", "B", 12)
	total("Total ("+o.Currency+")", o.Total.StringFixed(2))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func variantLabel(it model.OrderItem) string {
	switch {
	case it.SelectedSize != "" && it.SelectedColor != "":
		return it.SelectedSize + " / " + it.SelectedColor
	case it.SelectedSize != "":
		return it.SelectedSize
	default:
		return it.SelectedColor
	}
}
