package document

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	dateLayout    = "January 02, 2006"
	guestsPerPage = 4

	pageMargin  = 15.0
	cardHeight  = 55.0
	cardTop     = 38.0
	pictureSize = 40.0
)

// PDFRendererOptions configures the keepsake layout
type PDFRendererOptions struct {
	Blobs    BlobStore // where portraits, covers and guest pictures are read from
	SiteName string
	PageSize string // fpdf page size name, Letter when empty
	Logger   *zap.Logger
}

// PDFRenderer lays out documents with fpdf
type PDFRenderer struct {
	PDFRendererOptions
}

var _ Renderer = &PDFRenderer{}

// NewPDFRenderer returns a PDFRenderer
func NewPDFRenderer(option PDFRendererOptions) (*PDFRenderer, error) {
	if option.Blobs == nil {
		return nil, fmt.Errorf("nil Blobs is invalid")
	}
	if option.PageSize == "" {
		option.PageSize = "Letter"
	}
	if option.Logger == nil {
		option.Logger = zap.NewNop()
	}
	return &PDFRenderer{
		PDFRendererOptions: option,
	}, nil
}

func (p *PDFRenderer) newDocument(title, textColor string) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", p.PageSize, "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, pageMargin)
	pdf.SetTitle(title, true)
	if p.SiteName != "" {
		pdf.SetCreator(p.SiteName, true)
	}
	r, g, b := parseColor(textColor)
	pdf.SetTextColor(r, g, b)
	return pdf
}

// RenderMain renders the cover, the visitor pages and the closing page
func (p *PDFRenderer) RenderMain(ctx context.Context, m MainModel) ([]byte, error) {
	pdf := p.newDocument(m.DeceasedName, m.TextColor)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 2*pageMargin

	pdf.AddPage()
	if m.Cover != "" {
		if err := p.placeImage(ctx, pdf, m.Cover, 0, 0, pageW, 0); err != nil {
			return nil, &RenderError{Kind: KindMain, Cause: extErrors.Wrap(err, "Cannot place cover image")}
		}
	}
	if m.Portrait != "" {
		size := 70.0
		if err := p.placeImage(ctx, pdf, m.Portrait, (pageW-size)/2, 40, size, size); err != nil {
			return nil, &RenderError{Kind: KindMain, Cause: extErrors.Wrap(err, "Cannot place portrait")}
		}
	}
	pdf.SetXY(pageMargin, 125)
	pdf.SetFont("Times", "B", 28)
	pdf.CellFormat(contentW, 14, tr(m.DeceasedName), "", 1, "C", false, 0, "")
	pdf.SetFont("Times", "", 14)
	if m.BornOn != nil {
		pdf.SetX(pageMargin)
		pdf.CellFormat(contentW, 8, "Born: "+m.BornOn.Format(dateLayout), "", 1, "C", false, 0, "")
	}
	if m.PassedOn != nil {
		pdf.SetX(pageMargin)
		pdf.CellFormat(contentW, 8, "Passed: "+m.PassedOn.Format(dateLayout), "", 1, "C", false, 0, "")
	}

	for i, guest := range m.Guests {
		slot := i % guestsPerPage
		if slot == 0 {
			pdf.AddPage()
			pdf.SetFont("Times", "B", 22)
			pdf.SetXY(pageMargin, pageMargin)
			pdf.CellFormat(contentW, 12, "Visitors", "", 1, "C", false, 0, "")
		}
		p.guestCard(ctx, pdf, tr, m.PurchaseID, guest, cardTop+float64(slot)*cardHeight, contentW)
	}

	pdf.AddPage()
	pdf.SetFont("Times", "I", 18)
	pdf.SetXY(pageMargin, 110)
	pdf.MultiCell(contentW, 10, tr("Thank you for visiting and honoring the memory of "+m.DeceasedName+"."), "", "C", false)

	return output(pdf, KindMain)
}

// guestCard lays out one visitor. A picture that cannot be placed is left out of the card.
func (p *PDFRenderer) guestCard(ctx context.Context, pdf *fpdf.Fpdf, tr func(string) string, purchaseID string, g Guest, top, width float64) {
	textX := pageMargin
	if g.Picture != "" {
		if err := p.placeImage(ctx, pdf, g.Picture, pageMargin, top, pictureSize, pictureSize); err != nil {
			pdf.ClearError()
			p.Logger.Warn("Guest picture left out of document",
				zap.String("PurchaseID", purchaseID),
				zap.String("Ref", g.Picture),
				zap.Error(err),
			)
		} else {
			textX += pictureSize + 5
		}
	}
	textW := width - (textX - pageMargin)

	pdf.SetXY(textX, top)
	pdf.SetFont("Times", "B", 14)
	name := g.Name
	if name == "" {
		name = DefaultGuestName
	}
	pdf.CellFormat(textW, 7, tr(name), "", 1, "L", false, 0, "")
	pdf.SetFont("Times", "", 11)
	for _, line := range []string{g.Address, g.Email} {
		if line == "" {
			continue
		}
		pdf.SetX(textX)
		pdf.CellFormat(textW, 6, tr(line), "", 1, "L", false, 0, "")
	}
	if g.Notes != "" {
		pdf.SetX(textX)
		pdf.SetFont("Times", "I", 11)
		pdf.MultiCell(textW, 5, tr(g.Notes), "", "L", false)
	}
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pageMargin, top+cardHeight-4, pageMargin+width, top+cardHeight-4)
}

// RenderNote renders a single page thank-you note
func (p *PDFRenderer) RenderNote(ctx context.Context, m NoteModel) ([]byte, error) {
	pdf := p.newDocument(m.Title, "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 2*pageMargin

	pdf.AddPage()
	pdf.SetXY(pageMargin, 30)
	pdf.SetFont("Times", "B", 20)
	pdf.MultiCell(contentW, 10, tr(m.Title), "", "C", false)
	pdf.Ln(10)
	pdf.SetFont("Times", "", 13)
	pdf.MultiCell(contentW, 7, tr(m.Body), "", "L", false)

	kind := KindNote
	if m.EntryID != "" {
		kind = KindThankYou
	}
	return output(pdf, kind)
}

func (p *PDFRenderer) placeImage(ctx context.Context, pdf *fpdf.Fpdf, ref string, x, y, w, h float64) error {
	data, err := ReadAll(ctx, p.Blobs, ref)
	if err != nil {
		return extErrors.Wrapf(err, "Cannot read image \"%s\"", ref)
	}
	opt := fpdf.ImageOptions{
		ImageType: imageType(ref),
	}
	pdf.RegisterImageOptionsReader(ref, opt, bytes.NewReader(data))
	if pdf.Err() {
		return pdf.Error()
	}
	pdf.ImageOptions(ref, x, y, w, h, false, opt, 0, "")
	return pdf.Error()
}

func output(pdf *fpdf.Fpdf, kind Kind) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &RenderError{Kind: kind, Cause: err}
	}
	return buf.Bytes(), nil
}

func imageType(ref string) string {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".jpg", ".jpeg":
		return "JPG"
	case ".png":
		return "PNG"
	case ".gif":
		return "GIF"
	}
	return ""
}

// parseColor reads #RRGGBB, falling back to black
func parseColor(hex string) (int, int, int) {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
