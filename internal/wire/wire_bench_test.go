package wire

import (
	"fmt"
	"testing"
)

func benchRecords(n int) []Record {
	recs := make([]Record, n)
	for i := range recs {
		recs[i] = Record{DocID: uint32(i), Text: fmt.Sprintf("Golden Sky Shining — DJ Vision (%d) genre:house:deep tags:club festival | drone-laden roller", 1960+i%60)}
	}
	return recs
}

func BenchmarkEncodeRecords(b *testing.B) {
	for _, size := range []int{100, 1000, 5000} {
		recs := benchRecords(size)
		b.Run(fmt.Sprintf("batch_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(EncodeRecords(recs))))
			for i := 0; i < b.N; i++ {
				_ = EncodeRecords(recs)
			}
		})
	}
}

func BenchmarkDecodeQueryResponse(b *testing.B) {
	hits := make([]Hit, 1000)
	for i := range hits {
		hits[i] = Hit{DocID: uint32(i), Score: float32(i) / 1000}
	}
	body := EncodeQueryResponse(hits, false)
	b.ReportAllocs()
	b.SetBytes(int64(len(body)))
	for i := 0; i < b.N; i++ {
		if _, err := DecodeQueryResponse(body, false); err != nil {
			b.Fatal(err)
		}
	}
}
