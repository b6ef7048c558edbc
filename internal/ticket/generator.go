// Package ticket renders e-ticket artifacts for confirmed bookings.
package ticket

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/phpdave11/gofpdf"

	"github.com/vietbus/bus-ticket-reservation/internal/queue"
)

// Generator renders a PDF e-ticket into OutputDir and derives the QR
// check-in payload.  It is driven by the queue worker; the HTTP layer
// never waits on it.
type Generator struct {
	OutputDir string // directory for rendered PDFs, e.g. "tickets"
	BaseURL   string // public URL prefix the PDF is served from
}

// NewGenerator returns a Generator writing into outputDir and reporting
// ticket URLs under baseURL.
func NewGenerator(outputDir, baseURL string) *Generator {
	return &Generator{OutputDir: outputDir, BaseURL: strings.TrimRight(baseURL, "/")}
}

// Generate renders the ticket PDF for a confirmed booking and returns the
// ticket URL and QR payload to store on the booking row.
func (g *Generator) Generate(ev queue.TicketGenerateEvent) (ticketURL, qrCode string, err error) {
	if err := os.MkdirAll(g.OutputDir, 0o755); err != nil {
		return "", "", fmt.Errorf("mkdir %s: %w", g.OutputDir, err)
	}

	pdf := buildTicketPDF(ev)
	fname := ev.Reference + ".pdf"
	fpath := filepath.Join(g.OutputDir, fname)
	if err := pdf.OutputFileAndClose(fpath); err != nil {
		return "", "", fmt.Errorf("write ticket pdf: %w", err)
	}

	ticketURL = g.BaseURL + "/" + fname
	qrCode = qrPayload(ev)
	return ticketURL, qrCode, nil
}

// buildTicketPDF lays out a single-page A5 ticket: reference header,
// route and departure block, then one line per passenger.
func buildTicketPDF(ev queue.TicketGenerateEvent) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "BUS E-TICKET", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, "Booking "+ev.Reference, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(30, 6, "Route:", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("%s - %s", ev.RouteFrom, ev.RouteTo), "", 1, "L", false, 0, "")
	pdf.CellFormat(30, 6, "Departure:", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, ev.DepartureAt, "", 1, "L", false, 0, "")
	pdf.CellFormat(30, 6, "Total:", "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("%d VND", ev.TotalPrice), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(70, 6, "Passenger", "B", 0, "L", false, 0, "")
	pdf.CellFormat(0, 6, "Seat", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, p := range ev.Passengers {
		pdf.CellFormat(70, 6, p.FullName, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, p.SeatCode, "", 1, "L", false, 0, "")
	}
	return pdf
}

// qrPayload builds the check-in payload encoded into the ticket's QR
// code: reference, booking id and seats, base64 wrapped so gate scanners
// pass it through opaque.
func qrPayload(ev queue.TicketGenerateEvent) string {
	seats := make([]string, 0, len(ev.Passengers))
	for _, p := range ev.Passengers {
		seats = append(seats, p.SeatCode)
	}
	raw := fmt.Sprintf("%s|%s|%s", ev.Reference, ev.BookingID, strings.Join(seats, ","))
	return base64.StdEncoding.EncodeToString([]byte(raw))
}
