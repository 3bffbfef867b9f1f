package pdf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"

	"taskmanager/internal/models"
)

// Generator builds documents for the agent API. Handy to mock in handler tests.
type Generator interface {
	LogReport(w io.Writer, data LogReportData) error
}

// ReportGenerator renders with a UTF-8 TTF when FontPath exists, else with core Helvetica.
type ReportGenerator struct {
	RootDir  string // where Save writes, e.g. "./data/reports"
	FontPath string // e.g. "assets/fonts/DejaVuSans.ttf"
	fontName string
}

type LogReportData struct {
	Entries     []models.LogEntry
	Pending     int // log entries still waiting for the server
	GeneratedAt time.Time
	Filename    string // file name for Save, generated when empty
}

func NewReportGenerator(rootDir, fontPath string) *ReportGenerator {
	return &ReportGenerator{
		RootDir:  filepath.Clean(rootDir),
		FontPath: fontPath,
	}
}

// LogReport writes the activity log as a PDF table to w, newest entry first.
func (g *ReportGenerator) LogReport(w io.Writer, data LogReportData) error {
	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now()
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Activity log", true)
	pdf.SetAuthor("taskmanager", true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	font := g.setupFont(pdf)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	if font != "Helvetica" {
		tr = func(s string) string { return s }
	}
	pdf.AddPage()

	// ===== Заголовок
	pdf.SetFont(font, "B", 18)
	pdf.CellFormat(0, 10, "Activity log", "", 1, "C", false, 0, "")
	pdf.SetFont(font, "", 11)
	sub := fmt.Sprintf("Generated %s, %d entries", data.GeneratedAt.Format("02.01.2006 15:04"), len(data.Entries))
	if data.Pending > 0 {
		sub += fmt.Sprintf(", %d not yet synced", data.Pending)
	}
	pdf.CellFormat(0, 7, sub, "", 1, "C", false, 0, "")
	g.hr(pdf)
	pdf.Ln(2)

	// ===== Таблица
	widths := []float64{40, 25, 105}
	pdf.SetFont(font, "B", 11)
	for i, h := range []string{"When", "Action", "Task"} {
		pdf.CellFormat(widths[i], 7, h, "B", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(font, "", 10)
	if len(data.Entries) == 0 {
		pdf.CellFormat(0, 7, "No activity yet.", "", 1, "L", false, 0, "")
	}
	for _, e := range data.Entries {
		when := e.Timestamp
		if t, err := models.ParseTimestamp(e.Timestamp); err == nil {
			when = t.Local().Format("02.01.2006 15:04")
		}
		pdf.CellFormat(widths[0], 6, when, "", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, string(e.Action), "", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, tr(e.TaskTitle), "", 1, "L", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render log report: %w", err)
	}
	return nil
}

// Save renders the report into RootDir and returns the absolute path.
func (g *ReportGenerator) Save(data LogReportData) (string, error) {
	filename := data.Filename
	if filename == "" {
		filename = fmt.Sprintf("activity_%s.pdf", time.Now().Format("20060102_150405"))
	}
	absPath, err := g.ensureTarget(filename)
	if err != nil {
		return "", err
	}
	f, err := os.Create(absPath)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	defer f.Close()
	if err := g.LogReport(f, data); err != nil {
		return "", err
	}
	return absPath, nil
}

func (g *ReportGenerator) ensureTarget(filename string) (string, error) {
	if err := os.MkdirAll(g.RootDir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	filename = filepath.Base(filename) // без путей
	return filepath.Join(g.RootDir, filename), nil
}

func (g *ReportGenerator) setupFont(pdf *gofpdf.Fpdf) string {
	if g.FontPath == "" {
		return "Helvetica"
	}
	if _, err := os.Stat(g.FontPath); err != nil {
		return "Helvetica"
	}
	if g.fontName == "" {
		g.fontName = "DejaVu"
	}
	pdf.AddUTF8Font(g.fontName, "", g.FontPath)
	pdf.AddUTF8Font(g.fontName, "B", g.FontPath)
	return g.fontName
}

func (g *ReportGenerator) hr(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 1.5
	pdf.SetLineWidth(0.2)
	pdf.Line(20, y, 190, y)
	pdf.SetY(y + 2)
}
