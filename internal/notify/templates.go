package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/jogardn/bakery-orders/pkg/models"
)

//go:embed templates
var templateFS embed.FS

type page struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

func loadPage(name string) (*page, error) {
	h, err := htmltemplate.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
	if err != nil {
		return nil, fmt.Errorf("parse %s html: %w", name, err)
	}
	t, err := texttemplate.ParseFS(templateFS, "templates/"+name+".txt")
	if err != nil {
		return nil, fmt.Errorf("parse %s text: %w", name, err)
	}
	return &page{html: h, text: t}, nil
}

func (p *page) render(data interface{}) (html, text string, err error) {
	var hb, tb bytes.Buffer
	if err := p.html.ExecuteTemplate(&hb, "layout", data); err != nil {
		return "", "", err
	}
	if err := p.text.Execute(&tb, data); err != nil {
		return "", "", err
	}
	return hb.String(), strings.TrimSpace(tb.String()) + "\n", nil
}

type itemView struct {
	Quantity int
	Name     string
}

type boxView struct {
	Index int
	Size  int
	Price string
	Items []itemView
}

type orderView struct {
	Shop         string
	Name         string
	Number       string
	Boxes        []boxView
	DeliveryFee  string
	Total        string
	Pickup       bool
	Location     string
	City         string
	Street       string
	PostalCode   string
	Instructions string
	Date         string
	Time         string
	ReviewURL    string
}

func newOrderView(shop, name string, o *models.Order) orderView {
	v := orderView{
		Shop:   shop,
		Name:   name,
		Number: o.Number(),
		Total:  FormatCents(o.TotalCents),
	}
	if o.DeliveryFeeCents > 0 {
		v.DeliveryFee = FormatCents(o.DeliveryFeeCents)
	}
	for i, b := range o.Boxes {
		bv := boxView{Index: i + 1, Size: int(b.Size), Price: FormatCents(b.PriceCents)}
		for _, it := range b.Items {
			label := it.ProductName
			if label == "" {
				label = "Biscuit"
			}
			bv.Items = append(bv.Items, itemView{Quantity: it.Quantity, Name: label})
		}
		v.Boxes = append(v.Boxes, bv)
	}

	switch r := o.Reception.Reception.(type) {
	case models.PickupReception:
		v.Pickup = true
		v.Location = capitalize(r.Location)
	case models.DeliveryReception:
		v.City = capitalize(r.City)
		v.Street = r.Street
		v.PostalCode = r.PostalCode
		v.Instructions = r.Instructions
	}
	if o.Reception.Reception != nil {
		date, clock := o.Reception.Slot()
		v.Date = FormatDateFR(date)
		v.Time = clock
	}
	return v
}

// FormatCents renders an amount the way Quebec receipts do: "35.00 $".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d $", sign, cents/100, cents%100)
}

var (
	frenchWeekdays = [...]string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"}
	frenchMonths   = [...]string{"janvier", "février", "mars", "avril", "mai", "juin", "juillet",
		"août", "septembre", "octobre", "novembre", "décembre"}
)

// FormatDateFR turns "2025-01-16" into "jeudi 16 janvier 2025". Unparseable
// input is returned unchanged.
func FormatDateFR(date string) string {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%s %d %s %d", frenchWeekdays[d.Weekday()], d.Day(), frenchMonths[d.Month()-1], d.Year())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
