package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moncoffretelec/coffret/pkg/intake"
	"github.com/moncoffretelec/coffret/pkg/metrics"
)

// Assets that may be substituted during rendering.
const (
	AssetFont = "font"
	AssetLogo = "logo"
)

// Page geometry, in points on a Letter page.
const (
	margin       = 40.0
	logoX        = 40.0
	logoY        = 30.0
	logoWidth    = 60.0
	titleX       = 110.0
	titleY       = 40.0
	ruleY        = 100.0
	bodyY        = 120.0
	notesWidth   = 500.0
	footerY      = 755.0
	footerWidth  = 532.0
	bottomMargin = 60.0

	fontFamily     = "body"
	fallbackFamily = "Helvetica"
	logoImageName  = "brand-mark"
	missingLogo    = "Logo manquant"
	fontSample     = "Récapitulatif • Établi Pièces Œ ąčę 0123456789"
)

var (
	accent = [3]int{30, 58, 138}
	black  = [3]int{0, 0, 0}
	gray   = [3]int{128, 128, 128}
	red    = [3]int{220, 38, 38}
)

// RenderFailure reports that the document could not be produced or flushed
// to its output.
type RenderFailure struct {
	Op  string
	Err error
}

func (e *RenderFailure) Error() string {
	return fmt.Sprintf("render %s: %v", e.Op, e.Err)
}

func (e *RenderFailure) Unwrap() error { return e.Err }

// Options configures a Renderer.
type Options struct {
	FontPath string
	// BoldFontPath is used for section labels. Without it the body font is
	// registered for the bold style too.
	BoldFontPath string
	LogoPath     string
	OutputDir    string
	// Uncompressed disables stream compression, which keeps text searchable.
	Uncompressed bool
	// Now stamps document metadata. Defaults to time.Now.
	Now func() time.Time
}

// Renderer turns intake records into PDF summaries. Font and logo bytes are
// loaded once and only read afterwards, so a Renderer is safe for
// concurrent use.
type Renderer struct {
	font      []byte
	bold      []byte
	logo      []byte
	logoType  string
	outputDir string
	compress  bool
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewRenderer loads the optional assets. A missing or unusable asset is
// logged and replaced at render time; it never prevents construction.
func NewRenderer(opts Options, log *zap.SugaredLogger) *Renderer {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Renderer{
		outputDir: opts.OutputDir,
		compress:  !opts.Uncompressed,
		now:       opts.Now,
		log:       log,
	}
	if r.outputDir == "" {
		r.outputDir = os.TempDir()
	}
	if r.now == nil {
		r.now = time.Now
	}

	font, err := loadFont(opts.FontPath)
	if err == nil {
		err = trialFont(font, font)
	}
	if err != nil {
		log.Warnw("Body font unavailable, using built-in Helvetica", "path", opts.FontPath, "error", err)
	} else {
		r.font, r.bold = font, font
		log.Infow("Body font loaded", "path", opts.FontPath)
	}

	if r.font != nil && opts.BoldFontPath != "" {
		bold, err := loadFont(opts.BoldFontPath)
		if err == nil {
			err = trialFont(font, bold)
		}
		if err != nil {
			log.Warnw("Bold font unavailable, labels use the body font", "path", opts.BoldFontPath, "error", err)
		} else {
			r.bold = bold
			log.Infow("Bold font loaded", "path", opts.BoldFontPath)
		}
	}

	if logo, typ, err := loadLogo(opts.LogoPath); err != nil {
		log.Warnw("Logo unavailable, documents will show a placeholder", "path", opts.LogoPath, "error", err)
	} else {
		r.logo, r.logoType = logo, typ
		log.Infow("Logo loaded", "path", opts.LogoPath)
	}
	return r
}

// Render writes the summary of rec to a new file in the output directory.
// It returns once the file is fully written, synced and closed; on failure
// no file is left behind.
func (r *Renderer) Render(ctx context.Context, rec intake.Record) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, &RenderFailure{Op: "start", Err: err}
	}
	start := time.Now()
	defer func() { metrics.RenderDuration.Observe(time.Since(start).Seconds()) }()

	id := uuid.NewString()
	path := filepath.Join(r.outputDir, "recap-"+id+".pdf")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, &RenderFailure{Op: "open", Err: err}
	}

	fallbacks, werr := r.write(f, rec)
	if werr == nil {
		if err := f.Sync(); err != nil {
			werr = &RenderFailure{Op: "sync", Err: err}
		}
	}
	if err := f.Close(); err != nil && werr == nil {
		werr = &RenderFailure{Op: "close", Err: err}
	}
	if werr != nil {
		_ = os.Remove(path)
		return nil, werr
	}

	info, err := os.Stat(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, &RenderFailure{Op: "stat", Err: err}
	}

	return &Document{ID: id, Path: path, Size: info.Size(), Fallbacks: fallbacks}, nil
}

// RenderTo writes the summary of rec to w and returns the substituted assets.
func (r *Renderer) RenderTo(w io.Writer, rec intake.Record) ([]string, error) {
	return r.write(w, rec)
}

// write recovers from panics in the PDF engine so that Render still closes
// and removes its file.
func (r *Renderer) write(w io.Writer, rec intake.Record) (fallbacks []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorw("PDF engine panicked while drawing", "panic", p)
			err = &RenderFailure{Op: "draw", Err: fmt.Errorf("pdf engine panic: %v", p)}
		}
	}()

	layout := BuildLayout(rec)
	pdf, fallbacks := r.draw(layout)
	for _, asset := range fallbacks {
		metrics.RenderFallbacks.WithLabelValues(asset).Inc()
	}
	if err := pdf.Output(w); err != nil {
		return fallbacks, &RenderFailure{Op: "write", Err: err}
	}
	return fallbacks, nil
}

func (r *Renderer) draw(layout Layout) (*fpdf.Fpdf, []string) {
	var fallbacks []string
	now := r.now()

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, bottomMargin)
	pdf.SetCompression(r.compress)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(now)
	pdf.SetModificationDate(now)
	pdf.SetTitle(layout.Title, true)
	pdf.SetCreator("MonCoffretElec", true)

	family, tr := r.selectFont(pdf)
	if family == fallbackFamily {
		fallbacks = append(fallbacks, AssetFont)
	}

	pdf.SetFooterFunc(func() {
		pdf.SetFont(family, "", 10)
		setColor(pdf.SetTextColor, gray)
		for i, line := range layout.Footer {
			pdf.SetXY(margin, footerY+float64(i)*15)
			pdf.CellFormat(footerWidth, 12, tr(line), "", 0, "C", false, 0, "")
		}
	})

	pdf.AddPage()

	if !r.drawLogo(pdf) {
		fallbacks = append(fallbacks, AssetLogo)
		pdf.SetFont(family, "", 12)
		setColor(pdf.SetTextColor, red)
		pdf.SetXY(logoX, titleY)
		pdf.CellFormat(logoWidth+10, 14, tr(missingLogo), "", 0, "L", false, 0, "")
	}

	pdf.SetFont(family, "", 22)
	setColor(pdf.SetTextColor, accent)
	pdf.SetXY(titleX, titleY)
	pdf.CellFormat(0, 26, tr(layout.Title), "", 1, "L", false, 0, "")

	pageWidth, _ := pdf.GetPageSize()
	setColor(pdf.SetDrawColor, accent)
	pdf.SetLineWidth(1)
	pdf.Line(margin, ruleY, pageWidth-margin, ruleY)

	pdf.SetXY(margin, bodyY)
	for _, s := range layout.Sections {
		pdf.SetFont(family, "BU", 14)
		setColor(pdf.SetTextColor, accent)
		pdf.CellFormat(0, 18, tr(s.Label), "", 1, "L", false, 0, "")

		pdf.SetFont(family, "", 12)
		setColor(pdf.SetTextColor, black)
		width := 0.0
		if s.Wrap {
			width = notesWidth
		}
		for _, line := range s.Lines {
			pdf.MultiCell(width, 15, tr(line), "", "L", false)
		}
		pdf.Ln(10)
	}

	return pdf, fallbacks
}

// selectFont registers the UTF-8 body font when available and returns the
// family to use with its text translator. Built-in fonts only cover cp1252,
// so their text goes through fpdf's translator.
func (r *Renderer) selectFont(pdf *fpdf.Fpdf) (string, func(string) string) {
	if len(r.font) > 0 {
		pdf.AddUTF8FontFromBytes(fontFamily, "", r.font)
		pdf.AddUTF8FontFromBytes(fontFamily, "B", r.bold)
		pdf.SetFont(fontFamily, "", 12)
		if !pdf.Err() {
			return fontFamily, func(s string) string { return s }
		}
		r.log.Warnw("Body font rejected by PDF engine, using built-in Helvetica", "error", pdf.Error())
		pdf.ClearError()
	}
	return fallbackFamily, pdf.UnicodeTranslatorFromDescriptor("")
}

// drawLogo places the brand mark and reports whether it was drawn.
func (r *Renderer) drawLogo(pdf *fpdf.Fpdf) bool {
	if len(r.logo) == 0 {
		return false
	}
	opts := fpdf.ImageOptions{ImageType: r.logoType}
	info := pdf.RegisterImageOptionsReader(logoImageName, opts, bytes.NewReader(r.logo))
	if pdf.Err() || info == nil {
		r.log.Warnw("Logo rejected by PDF engine", "error", pdf.Error())
		pdf.ClearError()
		return false
	}
	pdf.ImageOptions(logoImageName, logoX, logoY, logoWidth, 0, false, opts, 0, "")
	return true
}

func setColor(set func(r, g, b int), c [3]int) {
	set(c[0], c[1], c[2])
}

func loadFont(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("no font path configured")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// fpdf parses TrueType outlines only; CFF-flavoured OpenType is rejected.
	if len(data) < 4 || !(bytes.Equal(data[:4], []byte{0, 1, 0, 0}) || bytes.Equal(data[:4], []byte("true"))) {
		return nil, errors.New("not a TrueType font")
	}
	return data, nil
}

// trialFont embeds regular and bold in a throwaway document. fpdf panics on
// some malformed TrueType tables instead of returning an error.
func trialFont(regular, bold []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("font rejected by PDF engine: %v", p)
		}
	}()

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.AddUTF8FontFromBytes(fontFamily, "", regular)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", bold)
	pdf.AddPage()
	pdf.SetFont(fontFamily, "B", 12)
	pdf.CellFormat(0, 14, fontSample, "", 1, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 12)
	pdf.CellFormat(0, 14, fontSample, "", 1, "L", false, 0, "")
	return pdf.Output(io.Discard)
}

func loadLogo(path string) ([]byte, string, error) {
	if path == "" {
		return nil, "", errors.New("no logo path configured")
	}
	typ := strings.ToUpper(strings.TrimPrefix(filepath.Ext(path), "."))
	switch typ {
	case "PNG", "JPG", "JPEG", "GIF":
	default:
		return nil, "", fmt.Errorf("unsupported image type %q", typ)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return data, typ, nil
}
