package reporting

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/lcalzada-xor/ridwatch/internal/core/domain"
)

const (
	maxDetectionRows = 40
	maxSightingRows  = 25
)

// IncidentReport is the input for the incident PDF.
type IncidentReport struct {
	ID          string
	Title       string
	Site        string
	GeneratedAt time.Time
	GeneratedBy string
	Defense     domain.DefenseSnapshot
	Detections  []domain.Detection
	Sightings   []domain.Sighting
}

// PDFExporter renders incident reports.
type PDFExporter struct{}

// NewPDFExporter creates a new PDF exporter instance
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ExportIncident renders the report as a PDF document.
func (e *PDFExporter) ExportIncident(report *IncidentReport) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("nil report")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	e.addHeader(pdf, report)
	e.addDefenseBanner(pdf, report)
	e.addDefenseLists(pdf, tr, report)
	e.addDetections(pdf, tr, report)
	e.addSightings(pdf, tr, report)
	e.addFooter(pdf, report)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, report *IncidentReport) {
	title := report.Title
	if title == "" {
		title = "Remote ID Incident Report"
	}
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 14, title, "", 1, "L", false, 0, "")

	if report.Site != "" {
		pdf.SetFont("Arial", "", 13)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 8, report.Site, "", 1, "L", false, 0, "")
	}

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, "Generated: "+report.GeneratedAt.Format("2006-01-02 15:04:05 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(6)
}

// addDefenseBanner shows the incident flag and block counts in a colored box.
func (e *PDFExporter) addDefenseBanner(pdf *gofpdf.Fpdf, report *IncidentReport) {
	d := report.Defense
	r, g, b := 52, 199, 89
	status := "No standing incident"
	switch {
	case d.Incident:
		r, g, b = 220, 53, 69
		status = "SECURITY INCIDENT ACTIVE"
	case len(d.BlockedAddresses)+len(d.BlockedNetworks)+len(d.Quarantined) > 0:
		r, g, b = 255, 149, 0
		status = "Defensive measures in place"
	}

	y := pdf.GetY()
	pdf.SetFillColor(r, g, b)
	pdf.Rect(10, y, 190, 24, "F")

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetXY(15, y+4)
	pdf.CellFormat(180, 8, status, "", 0, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.SetXY(15, y+13)
	pdf.CellFormat(180, 6, fmt.Sprintf("Blocked addresses: %d   Blocked networks: %d   Quarantined: %d   Watched: %d",
		len(d.BlockedAddresses), len(d.BlockedNetworks), len(d.Quarantined), len(d.Watched)), "", 0, "L", false, 0, "")

	pdf.SetY(y + 30)
}

func (e *PDFExporter) sectionTitle(pdf *gofpdf.Fpdf, title string) {
	if pdf.GetY() > 260 {
		pdf.AddPage()
	}
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, title, "", 1, "L", false, 0, "")
	pdf.Ln(1)
}

func (e *PDFExporter) addDefenseLists(pdf *gofpdf.Fpdf, tr func(string) string, report *IncidentReport) {
	lists := []struct {
		label string
		items []string
	}{
		{"Blocked addresses", report.Defense.BlockedAddresses},
		{"Blocked networks", report.Defense.BlockedNetworks},
		{"Quarantined", report.Defense.Quarantined},
		{"Watched", report.Defense.Watched},
	}

	e.sectionTitle(pdf, "Defensive State")
	for _, l := range lists {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetTextColor(80, 80, 80)
		pdf.CellFormat(45, 6, l.label+":", "", 0, "L", false, 0, "")

		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(60, 60, 60)
		text := "none"
		if len(l.items) > 0 {
			text = strings.Join(l.items, ", ")
		}
		pdf.MultiCell(0, 6, tr(text), "", "L", false)
	}
	pdf.Ln(4)
}

func (e *PDFExporter) addDetections(pdf *gofpdf.Fpdf, tr func(string) string, report *IncidentReport) {
	e.sectionTitle(pdf, fmt.Sprintf("Detections (%d)", len(report.Detections)))

	if len(report.Detections) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 7, "No detections recorded", "", 1, "L", false, 0, "")
		pdf.Ln(4)
		return
	}

	dets := append([]domain.Detection(nil), report.Detections...)
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Confidence > dets[j].Confidence })
	if len(dets) > maxDetectionRows {
		dets = dets[:maxDetectionRows]
	}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 9)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(32, 7, "Time", "1", 0, "C", true, 0, "")
	pdf.CellFormat(45, 7, "Threat", "1", 0, "L", true, 0, "")
	pdf.CellFormat(38, 7, "Subject", "1", 0, "L", true, 0, "")
	pdf.CellFormat(18, 7, "Conf.", "1", 0, "C", true, 0, "")
	pdf.CellFormat(57, 7, "Detail", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 8)
	for _, d := range dets {
		if pdf.GetY() > 275 {
			pdf.AddPage()
		}
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(32, 6, d.DetectedAt.Format("01-02 15:04:05"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, truncate(string(d.Type), 28), "1", 0, "L", false, 0, "")
		pdf.CellFormat(38, 6, tr(truncate(d.Subject, 22)), "1", 0, "L", false, 0, "")

		r, g, b := tierColor(domain.TierFor(d.Confidence))
		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(18, 6, fmt.Sprintf("%.2f", d.Confidence), "1", 0, "C", false, 0, "")

		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(57, 6, tr(truncate(d.Detail, 38)), "1", 1, "L", false, 0, "")
	}
	pdf.Ln(6)
}

func (e *PDFExporter) addSightings(pdf *gofpdf.Fpdf, tr func(string) string, report *IncidentReport) {
	e.sectionTitle(pdf, fmt.Sprintf("Tracked Aircraft (%d)", len(report.Sightings)))

	sightings := report.Sightings
	if len(sightings) > maxSightingRows {
		sightings = sightings[:maxSightingRows]
	}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 9)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(45, 7, "Identity", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 7, "Vendor", "1", 0, "L", true, 0, "")
	pdf.CellFormat(50, 7, "Position", "1", 0, "C", true, 0, "")
	pdf.CellFormat(15, 7, "RSSI", "1", 0, "C", true, 0, "")
	pdf.CellFormat(50, 7, "Operator", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 8)
	for _, s := range sightings {
		if pdf.GetY() > 275 {
			pdf.AddPage()
		}
		pdf.CellFormat(45, 6, tr(truncate(s.Identity, 26)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, tr(truncate(s.Vendor, 18)), "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, formatPosition(s.Position, s.Estimated), "1", 0, "C", false, 0, "")
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", s.RSSI), "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, formatPosition(s.Operator, false), "1", 1, "C", false, 0, "")
	}
}

func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, report *IncidentReport) {
	pdf.SetY(-20)
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(3)

	id := report.ID
	if len(id) > 8 {
		id = id[:8]
	}
	by := report.GeneratedBy
	if by == "" {
		by = "ridwatch"
	}
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 5, fmt.Sprintf("Generated by %s | Report ID: %s", by, id), "", 1, "C", false, 0, "")
}

func tierColor(t domain.Tier) (r, g, b int) {
	switch t {
	case domain.TierEmergency:
		return 220, 53, 69
	case domain.TierHigh:
		return 255, 149, 0
	case domain.TierModerate:
		return 200, 160, 0
	default:
		return 52, 199, 89
	}
}

func formatPosition(p *domain.Position, estimated bool) string {
	if p == nil {
		return "-"
	}
	s := fmt.Sprintf("%.5f, %.5f", p.Latitude, p.Longitude)
	if estimated {
		s += " (est.)"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
