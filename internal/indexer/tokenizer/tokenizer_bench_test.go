package tokenizer

import (
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "Toyota Corolla 2020 automático flex",
	"medium": `Volkswagen Gol 1.0 MPI Trendline 2019 manual flex, 42.000 km rodados,
        cor prata, único dono, revisões na concessionária, IPVA pago. Preços
        disponíveis mediante consulta ao vendedor.`,
	"long": strings.Repeat(`Chevrolet Onix Plus Premier 1.0 Turbo automático 2021, sedã
        com central multimídia, câmera de ré, sensores de estacionamento, bancos
        em couro e rodas de liga leve. Consumo rodoviário excelente e manutenção
        barata nas concessionárias autorizadas. `, 20),
}

func BenchmarkNormalize(b *testing.B) {
	for _, stemmer := range []string{StemmerSuffix, StemmerSnowball} {
		n, err := New(Options{Stemmer: stemmer})
		if err != nil {
			b.Fatal(err)
		}
		for name, text := range sampleTexts {
			b.Run(stemmer+"/"+name, func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(text)))
				for i := 0; i < b.N; i++ {
					_ = n.Normalize(text)
				}
			})
		}
	}
}
