package annotation

// Set holds one list per annotation variant.
type Set struct {
	Comments               []Comment               `json:"comments"`
	Highlights             []Highlight             `json:"highlights"`
	WordLevelTrackChanges  []WordLevelTrackChange  `json:"wordLevelTrackChanges"`
	FullSentenceDeletions  []FullSentenceDeletion  `json:"fullSentenceDeletions"`
	FullSentenceInsertions []FullSentenceInsertion `json:"fullSentenceInsertions"`
	StructuralChanges      []StructuralChange      `json:"structuralChanges,omitempty"`
}

// Counts is a per-variant tally.
type Counts struct {
	Comments               int `json:"comments"`
	Highlights             int `json:"highlights"`
	WordLevelTrackChanges  int `json:"wordLevelTrackChanges"`
	FullSentenceDeletions  int `json:"fullSentenceDeletions"`
	FullSentenceInsertions int `json:"fullSentenceInsertions"`
	StructuralChanges      int `json:"structuralChanges"`
}

// TrackChanges is the number of records counted as track changes.
func (c Counts) TrackChanges() int {
	return c.WordLevelTrackChanges + c.FullSentenceDeletions + c.FullSentenceInsertions + c.StructuralChanges
}

// Total sums every variant.
func (c Counts) Total() int {
	return c.Comments + c.Highlights + c.TrackChanges()
}

// Add returns the element-wise sum.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Comments:               c.Comments + o.Comments,
		Highlights:             c.Highlights + o.Highlights,
		WordLevelTrackChanges:  c.WordLevelTrackChanges + o.WordLevelTrackChanges,
		FullSentenceDeletions:  c.FullSentenceDeletions + o.FullSentenceDeletions,
		FullSentenceInsertions: c.FullSentenceInsertions + o.FullSentenceInsertions,
		StructuralChanges:      c.StructuralChanges + o.StructuralChanges,
	}
}

// Counts tallies the set.
func (s Set) Counts() Counts {
	return Counts{
		Comments:               len(s.Comments),
		Highlights:             len(s.Highlights),
		WordLevelTrackChanges:  len(s.WordLevelTrackChanges),
		FullSentenceDeletions:  len(s.FullSentenceDeletions),
		FullSentenceInsertions: len(s.FullSentenceInsertions),
		StructuralChanges:      len(s.StructuralChanges),
	}
}

// Empty reports whether the set has no records of any variant.
func (s Set) Empty() bool {
	return s.Counts().Total() == 0
}

// All flattens the set into its variants, grouped by kind.
func (s Set) All() []Annotation {
	out := make([]Annotation, 0, s.Counts().Total())
	for _, a := range s.Comments {
		out = append(out, a)
	}
	for _, a := range s.Highlights {
		out = append(out, a)
	}
	for _, a := range s.WordLevelTrackChanges {
		out = append(out, a)
	}
	for _, a := range s.FullSentenceDeletions {
		out = append(out, a)
	}
	for _, a := range s.FullSentenceInsertions {
		out = append(out, a)
	}
	for _, a := range s.StructuralChanges {
		out = append(out, a)
	}
	return out
}

// Append adds a to the matching list.
func (s *Set) Append(a Annotation) {
	switch v := a.(type) {
	case Comment:
		s.Comments = append(s.Comments, v)
	case Highlight:
		s.Highlights = append(s.Highlights, v)
	case WordLevelTrackChange:
		s.WordLevelTrackChanges = append(s.WordLevelTrackChanges, v)
	case FullSentenceDeletion:
		s.FullSentenceDeletions = append(s.FullSentenceDeletions, v)
	case FullSentenceInsertion:
		s.FullSentenceInsertions = append(s.FullSentenceInsertions, v)
	case StructuralChange:
		s.StructuralChanges = append(s.StructuralChanges, v)
	}
}

// Clone deep-copies the set so the copy can be handed out without aliasing.
func (s Set) Clone() Set {
	out := Set{
		Comments:          append([]Comment(nil), s.Comments...),
		Highlights:        append([]Highlight(nil), s.Highlights...),
		StructuralChanges: append([]StructuralChange(nil), s.StructuralChanges...),
	}
	for _, w := range s.WordLevelTrackChanges {
		out.WordLevelTrackChanges = append(out.WordLevelTrackChanges, w.Clone())
	}
	for _, d := range s.FullSentenceDeletions {
		d.Span = cloneSpan(d.Span)
		out.FullSentenceDeletions = append(out.FullSentenceDeletions, d)
	}
	for _, i := range s.FullSentenceInsertions {
		i.Span = cloneSpan(i.Span)
		out.FullSentenceInsertions = append(out.FullSentenceInsertions, i)
	}
	return out
}

// Clone deep-copies the record.
func (w WordLevelTrackChange) Clone() WordLevelTrackChange {
	w.Deleted = cloneEdits(w.Deleted)
	w.Added = cloneEdits(w.Added)
	w.SentenceFragments = append([]SentenceFragment(nil), w.SentenceFragments...)
	w.Span = cloneSpan(w.Span)
	return w
}

func cloneEdits(in []Edit) []Edit {
	if in == nil {
		return nil
	}
	out := make([]Edit, len(in))
	for i, e := range in {
		out[i] = Edit{Text: e.Text}
		if e.StartOffset != nil {
			out[i].StartOffset = IntPtr(*e.StartOffset)
		}
		if e.EndOffset != nil {
			out[i].EndOffset = IntPtr(*e.EndOffset)
		}
	}
	return out
}

func cloneSpan(s *Span) *Span {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Lookups used by scope filtering and reconciliation.

// HasComment reports whether c is present by strict equality.
func (s Set) HasComment(c Comment) bool {
	for _, x := range s.Comments {
		if x == c {
			return true
		}
	}
	return false
}

// HasHighlight reports whether h is present by strict equality.
func (s Set) HasHighlight(h Highlight) bool {
	for _, x := range s.Highlights {
		if x == h {
			return true
		}
	}
	return false
}

// HasFullSentenceDeletion reports whether d is present by strict equality.
func (s Set) HasFullSentenceDeletion(d FullSentenceDeletion) bool {
	for _, x := range s.FullSentenceDeletions {
		if x.Equal(d) {
			return true
		}
	}
	return false
}

// HasFullSentenceInsertion reports whether i is present by strict equality.
func (s Set) HasFullSentenceInsertion(i FullSentenceInsertion) bool {
	for _, x := range s.FullSentenceInsertions {
		if x.Equal(i) {
			return true
		}
	}
	return false
}

// HasStructuralChange reports whether c is present by strict equality.
func (s Set) HasStructuralChange(c StructuralChange) bool {
	for _, x := range s.StructuralChanges {
		if x == c {
			return true
		}
	}
	return false
}

// Sentence finds the record for the same sentence slot as w.
func (s Set) Sentence(w WordLevelTrackChange) (WordLevelTrackChange, bool) {
	for _, x := range s.WordLevelTrackChanges {
		if x.SameSentence(w) {
			return x, true
		}
	}
	return WordLevelTrackChange{}, false
}
