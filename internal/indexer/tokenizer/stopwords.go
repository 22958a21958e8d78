package tokenizer

// stopWords are Portuguese function words plus the boilerplate the listing
// scrapers repeat on every page ("preços disponíveis", "ano", "modelo").
var stopWords = map[string]struct{}{
	"de": {}, "a": {}, "o": {}, "que": {}, "e": {}, "do": {}, "da": {},
	"em": {}, "um": {}, "para": {}, "é": {}, "com": {}, "não": {},
	"uma": {}, "os": {}, "no": {}, "se": {}, "na": {}, "por": {},
	"mais": {}, "as": {}, "dos": {}, "como": {}, "mas": {}, "foi": {},
	"ao": {}, "ele": {}, "das": {}, "tem": {}, "à": {}, "seu": {},
	"sua": {}, "ou": {}, "ser": {}, "quando": {}, "muito": {}, "há": {},
	"nos": {}, "já": {}, "está": {}, "eu": {}, "também": {}, "só": {},
	"pelo": {}, "pela": {}, "até": {}, "isso": {}, "ela": {}, "entre": {},
	"era": {}, "depois": {}, "sem": {}, "mesmo": {}, "aos": {}, "ter": {},
	"seus": {}, "suas": {}, "quem": {}, "nas": {}, "esse": {}, "essa": {},
	"eles": {}, "estão": {}, "você": {}, "tinha": {}, "foram": {},
	"num": {}, "numa": {}, "pelos": {}, "pelas": {}, "este": {}, "esta": {},
	"isto": {}, "aquele": {}, "aquela": {}, "lhe": {}, "meu": {},
	"minha": {}, "nem": {}, "qual": {}, "são": {}, "sobre": {},
	"preços": {}, "disponíveis": {}, "ano": {}, "modelo": {},
}

// IsStopWord reports whether word, already lowercased, is discarded by the
// normalizer.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}
