package scanner

import (
	"testing"
)

func FuzzScanner(f *testing.F) {
	f.Add([]byte("<< /Type /Page /Parent 2 0 R >>"))
	f.Add([]byte("[ 1 2 3 ]"))
	f.Add([]byte("stream\n...data...\nendstream"))
	f.Add([]byte("(Hello (nested) \\101 World)"))
	f.Add([]byte("<AABBC>"))

	f.Fuzz(func(t *testing.T, data []byte) {
		s := New(data, Config{MaxStringLength: 1024})
		for i := 0; i <= len(data); i++ {
			tok, err := s.Next()
			if err != nil {
				break
			}
			if tok.IsKeyword("stream") {
				if _, err := s.ReadStream(-1); err != nil {
					break
				}
			}
		}
	})
}
