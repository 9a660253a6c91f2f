package parser

import (
	"context"
	"testing"

	"github.com/wudi/pdfmerge/recovery"
)

func FuzzDocumentParser(f *testing.F) {
	f.Add(buildPDF("<< /Size 3 /Root 1 0 R >>",
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [] /Count 0 >>"))
	f.Add([]byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n..."))

	f.Fuzz(func(t *testing.T, data []byte) {
		for _, strategy := range []recovery.Strategy{recovery.NewStrictStrategy(), recovery.NewLenientStrategy()} {
			_, _ = NewDocumentParser(Config{Recovery: strategy}).Parse(context.Background(), data)
		}
	})
}
