// Package receipt renders donation receipts as PDF documents.
package receipt

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"givetrack/internal/domain/donation"
	"givetrack/internal/domain/user"
)

const ContentType = "application/pdf"

// Filename is the suggested download name for a receipt.
func Filename(d donation.Donation) string {
	return fmt.Sprintf("receipt-%s.pdf", d.ID)
}

// Render writes a single-page A4 receipt for d, issued to u.
func Render(w io.Writer, d donation.Donation, u user.User) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Donation receipt "+d.ID, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 12, "Donation Receipt")
	pdf.Ln(16)

	pdf.SetFont("Helvetica", "", 11)
	rows := [][2]string{
		{"Receipt no.", d.ID},
		{"Date", d.CreatedAt.UTC().Format("January 2, 2006 15:04 MST")},
		{"Donor", tr(u.Name)},
		{"Email", u.Email},
		{"Amount", d.FormattedAmount()},
		{"Source", string(d.Source)},
		{"Status", string(d.Status)},
	}
	if d.ReferralCode != "" {
		rows = append(rows, [2]string{"Referral code", d.ReferralCode})
	}
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(45, 8, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, row[1], "", 1, "L", false, 0, "")
	}

	if notes := strings.TrimSpace(d.Notes); notes != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, "Notes")
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(notes), "", "L", false)
	}

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "Thank you for your generosity. Keep this receipt for your records.", "", "L", false)

	return pdf.Output(w)
}
