package index

// Posting records how often a term occurs in one document.
type Posting struct {
	DocID     int
	Frequency int
}

// PostingList is sorted ascending by DocID with one entry per document.
type PostingList []Posting

// Term is the index entry for one normalized token. DocFreq always equals
// len(Postings).
type Term struct {
	DocFreq  int
	Postings PostingList
}

// TermEntry pairs a term surface with its entry, for ordered iteration.
type TermEntry struct {
	Surface string
	Term
}
