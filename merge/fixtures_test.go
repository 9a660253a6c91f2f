package merge

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"regexp"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfmerge/filters"
	"github.com/wudi/pdfmerge/ir/raw"
	"github.com/wudi/pdfmerge/parser"
)

// buildPDF lays out numbered objects with a classic xref table.
func buildPDF(trailer string, bodies ...string) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(bodies))
	for i, body := range bodies {
		offsets[i] = buf.Len()
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xrefOffset := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n0000000000 65535 f \n", len(bodies)+1)
	for _, off := range offsets {
		fmt.Fprintf(buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(buf, "trailer\n%s\nstartxref\n%d\n%%%%EOF\n", trailer, xrefOffset)
	return buf.Bytes()
}

// labeledPDF has one page per label; each page shows its label as text.
func labeledPDF(labels ...string) []byte {
	n := len(labels)
	kids := make([]string, n)
	bodies := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"", // page tree, filled below
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	}
	for i, label := range labels {
		pageNum := len(bodies) + 1
		content := fmt.Sprintf("BT /F1 24 Tf 72 720 Td (%s) Tj ET", label)
		bodies = append(bodies,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Contents %d 0 R >>", pageNum+1),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
		kids[i] = fmt.Sprintf("%d 0 R", pageNum)
	}
	bodies[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> >>",
		strings.Join(kids, " "), n)
	return buildPDF(fmt.Sprintf("<< /Size %d /Root 1 0 R >>", len(bodies)+1), bodies...)
}

// encryptedPDF carries a standard security handler dictionary.
func encryptedPDF() []byte {
	return buildPDF("<< /Size 5 /Root 1 0 R /Encrypt 4 0 R /ID [<00112233> <00112233>] >>",
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
		"<< /Filter /Standard /V 2 /R 3 /Length 128 /O <00> /U <00> /P -4 >>")
}

// pdfcpuEncrypted runs a plain document through pdfcpu's AES encryption.
func pdfcpuEncrypted(t *testing.T, plain []byte) []byte {
	t.Helper()
	api.DisableConfigDir()
	conf := model.NewAESConfiguration("user", "owner", 256)
	var out bytes.Buffer
	require.NoError(t, api.Encrypt(bytes.NewReader(plain), &out, conf))
	return out.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var textRe = regexp.MustCompile(`\(([^)]*)\) Tj`)

// pageLabels reparses a merged document and names every page: the text
// shown by an imported page, or "image WxH" for a raster page.
func pageLabels(t *testing.T, out []byte) []string {
	t.Helper()
	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), out)
	require.NoError(t, err)
	root, ok := doc.Root()
	require.True(t, ok, "no catalog")
	pagesObj, _ := root.Lookup("Pages")
	pages, ok := doc.Resolve(pagesObj).(*raw.DictObj)
	require.True(t, ok, "no page tree")
	kidsObj, _ := pages.Lookup("Kids")
	kids := doc.Resolve(kidsObj).(*raw.ArrayObj)

	pipeline := filters.NewDefaultPipeline(filters.Limits{})
	var labels []string
	for _, kid := range kids.Items {
		page := doc.Resolve(kid).(*raw.DictObj)
		resObj, _ := page.Lookup("Resources")
		res := doc.Resolve(resObj).(*raw.DictObj)
		xoObj, _ := res.Lookup("XObject")
		xobjects := doc.Resolve(xoObj).(*raw.DictObj)
		if fm, ok := xobjects.Lookup("Fm1"); ok {
			stm := doc.Resolve(fm).(*raw.StreamObj)
			names, params := filters.ExtractFilters(stm.Dict)
			data, err := pipeline.Decode(context.Background(), stm.Data, names, params)
			require.NoError(t, err)
			m := textRe.FindSubmatch(data)
			require.NotNil(t, m, "no text in form %q", data)
			labels = append(labels, string(m[1]))
			continue
		}
		im, ok := xobjects.Lookup("Im1")
		require.True(t, ok, "page without a known xobject")
		stm := doc.Resolve(im).(*raw.StreamObj)
		w, _ := raw.ToInt64(stm.Dict.KV["Width"])
		h, _ := raw.ToInt64(stm.Dict.KV["Height"])
		labels = append(labels, fmt.Sprintf("image %dx%d", w, h))
	}
	return labels
}
