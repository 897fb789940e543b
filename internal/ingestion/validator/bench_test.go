package validator

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func exportJSON(conversations int) []byte {
	var b strings.Builder
	b.WriteString(`{"chatbotName":"bot","startDateStr":"2025-01-01","endDateStr":"2025-01-31","conversations":[`)
	for i := 0; i < conversations; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"id":"c%d","created_at":"2025-01-02T10:00:00Z","country":"VE","title":"t","messages":[`+
			`{"id":"m%d-1","role":"user","content":"hola","createdAt":"2025-01-02T10:00:00Z"},`+
			`{"id":"m%d-2","role":"assistant","content":"buenas","score":0.8,"createdAt":"2025-01-02T10:00:05Z"}]}`, i, i, i)
	}
	b.WriteString("]}")
	return []byte(b.String())
}

func BenchmarkDecodeExport(b *testing.B) {
	for _, n := range []int{10, 1000} {
		data := exportJSON(n)
		b.Run(fmt.Sprintf("conversations=%d", n), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			for i := 0; i < b.N; i++ {
				if _, err := DecodeExport(bytes.NewReader(data)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
