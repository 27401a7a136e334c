package annotation

// Strict identity compares every field, offsets included. Comment, Highlight
// and StructuralChange are comparable structs, so == is already strict.

// Equal reports strict equality.
func (d FullSentenceDeletion) Equal(o FullSentenceDeletion) bool {
	return d.ID == o.ID && d.SectionNumber == o.SectionNumber &&
		d.DeletedText == o.DeletedText && spanEqual(d.Span, o.Span)
}

// Equal reports strict equality.
func (i FullSentenceInsertion) Equal(o FullSentenceInsertion) bool {
	return i.ID == o.ID && i.SectionNumber == o.SectionNumber &&
		i.InsertedText == o.InsertedText && spanEqual(i.Span, o.Span)
}

// SameSentence reports whether two records describe the same sentence slot.
func (w WordLevelTrackChange) SameSentence(o WordLevelTrackChange) bool {
	return w.SentenceID == o.SentenceID && w.SectionNumber == o.SectionNumber
}

// SubsetOf reports whether every deleted and added item of w is still
// present in o, matched by text and start offset. o may carry extra edits.
func (w WordLevelTrackChange) SubsetOf(o WordLevelTrackChange) bool {
	return editsSubset(w.Deleted, o.Deleted) && editsSubset(w.Added, o.Added)
}

// Missing returns the items of w that o no longer has.
func (w WordLevelTrackChange) Missing(o WordLevelTrackChange) (deleted, added []Edit) {
	for _, e := range w.Deleted {
		if !containsEdit(o.Deleted, e) {
			deleted = append(deleted, e)
		}
	}
	for _, e := range w.Added {
		if !containsEdit(o.Added, e) {
			added = append(added, e)
		}
	}
	return deleted, added
}

// Same reports whether two edits match by text and start offset.
func (e Edit) Same(o Edit) bool {
	return e.Text == o.Text && intPtrEqual(e.StartOffset, o.StartOffset)
}

func editsSubset(sub, super []Edit) bool {
	for _, e := range sub {
		if !containsEdit(super, e) {
			return false
		}
	}
	return true
}

func containsEdit(list []Edit, e Edit) bool {
	for _, c := range list {
		if c.Same(e) {
			return true
		}
	}
	return false
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func spanEqual(a, b *Span) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
