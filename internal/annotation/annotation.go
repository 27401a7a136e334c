// Package annotation defines the closed set of annotation records extracted
// from a reviewed contract and the identity rules used to re-find them after
// the document changes.
package annotation

import "fmt"

// Kind names an annotation variant.
type Kind string

const (
	KindComment               Kind = "comment"
	KindHighlight             Kind = "highlight"
	KindWordLevelTrackChange  Kind = "wordLevelTrackChange"
	KindFullSentenceDeletion  Kind = "fullSentenceDeletion"
	KindFullSentenceInsertion Kind = "fullSentenceInsertion"
	KindStructuralChange      Kind = "structuralChange"
)

// Annotation is implemented only by the record types in this package.
// Consumers switch on the concrete type.
type Annotation interface {
	Kind() Kind
	Section() string
	Ref() Ref
	sealed()
}

// Ref identifies an annotation within a single extraction pass.
type Ref struct {
	Kind          Kind   `json:"kind"`
	ID            string `json:"id"`
	SectionNumber string `json:"sectionNumber"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%s@%s", r.Kind, r.ID, r.SectionNumber)
}

// Span is a half-open range relative to a section's own text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Comment is a reviewer comment anchored to a text range.
type Comment struct {
	ID               string `json:"id"`
	SectionNumber    string `json:"sectionNumber"`
	SelectedText     string `json:"selectedText"`
	CommentContent   string `json:"commentContent"`
	Author           string `json:"author,omitempty"`
	StartOffset      int    `json:"startOffset"`
	EndOffset        int    `json:"endOffset"`
	AffectedSentence string `json:"affectedSentence,omitempty"`
}

// Highlight is a colored text range.
type Highlight struct {
	ID               string `json:"id"`
	SectionNumber    string `json:"sectionNumber"`
	SelectedText     string `json:"selectedText"`
	Color            string `json:"color,omitempty"`
	Author           string `json:"author,omitempty"`
	StartOffset      int    `json:"startOffset"`
	EndOffset        int    `json:"endOffset"`
	AffectedSentence string `json:"affectedSentence,omitempty"`
}

// Edit is a deleted or added run inside a sentence. Offsets are relative to
// the start of the sentence and may be absent.
type Edit struct {
	Text        string `json:"text"`
	StartOffset *int   `json:"startOffset,omitempty"`
	EndOffset   *int   `json:"endOffset,omitempty"`
}

// FragmentKind labels a piece of a redlined sentence.
type FragmentKind string

const (
	FragmentUnchanged FragmentKind = "unchanged"
	FragmentDeleted   FragmentKind = "deleted"
	FragmentAdded     FragmentKind = "added"
)

// SentenceFragment is one run of a redlined sentence, in reading order.
type SentenceFragment struct {
	Kind FragmentKind `json:"kind"`
	Text string       `json:"text"`
}

// WordLevelTrackChange groups every word-level edit of one sentence.
type WordLevelTrackChange struct {
	SentenceID        string             `json:"sentenceId"`
	SectionNumber     string             `json:"sectionNumber"`
	OriginalSentence  string             `json:"originalSentence"`
	AmendedSentence   string             `json:"amendedSentence"`
	Deleted           []Edit             `json:"deleted"`
	Added             []Edit             `json:"added"`
	SentenceFragments []SentenceFragment `json:"sentenceFragments,omitempty"`
	// Span of the sentence inside the section's own text, when the extractor knows it.
	Span *Span `json:"span,omitempty"`
}

// FullSentenceDeletion is a sentence removed in its entirety.
type FullSentenceDeletion struct {
	ID            string `json:"id"`
	SectionNumber string `json:"sectionNumber"`
	DeletedText   string `json:"deletedText"`
	Span          *Span  `json:"span,omitempty"`
}

// FullSentenceInsertion is a sentence added in its entirety.
type FullSentenceInsertion struct {
	ID            string `json:"id"`
	SectionNumber string `json:"sectionNumber"`
	InsertedText  string `json:"insertedText"`
	Span          *Span  `json:"span,omitempty"`
}

// StructuralChangeType describes a heading or numbering delta.
type StructuralChangeType string

const (
	StructuralHeadingChanged StructuralChangeType = "headingChanged"
	StructuralRenumbered     StructuralChangeType = "renumbered"
	StructuralSectionAdded   StructuralChangeType = "sectionAdded"
	StructuralSectionRemoved StructuralChangeType = "sectionRemoved"
)

// StructuralChange is a heading/renumbering delta attached to a section.
type StructuralChange struct {
	ID            string               `json:"id"`
	SectionNumber string               `json:"sectionNumber"`
	ChangeType    StructuralChangeType `json:"changeType"`
	OldText       string               `json:"oldText,omitempty"`
	NewText       string               `json:"newText,omitempty"`
	OldNumber     string               `json:"oldNumber,omitempty"`
	NewNumber     string               `json:"newNumber,omitempty"`
}

func (Comment) Kind() Kind               { return KindComment }
func (Highlight) Kind() Kind             { return KindHighlight }
func (WordLevelTrackChange) Kind() Kind  { return KindWordLevelTrackChange }
func (FullSentenceDeletion) Kind() Kind  { return KindFullSentenceDeletion }
func (FullSentenceInsertion) Kind() Kind { return KindFullSentenceInsertion }
func (StructuralChange) Kind() Kind      { return KindStructuralChange }

func (c Comment) Section() string               { return c.SectionNumber }
func (h Highlight) Section() string             { return h.SectionNumber }
func (w WordLevelTrackChange) Section() string  { return w.SectionNumber }
func (d FullSentenceDeletion) Section() string  { return d.SectionNumber }
func (i FullSentenceInsertion) Section() string { return i.SectionNumber }
func (s StructuralChange) Section() string      { return s.SectionNumber }

func (c Comment) Ref() Ref   { return Ref{KindComment, c.ID, c.SectionNumber} }
func (h Highlight) Ref() Ref { return Ref{KindHighlight, h.ID, h.SectionNumber} }
func (w WordLevelTrackChange) Ref() Ref {
	return Ref{KindWordLevelTrackChange, w.SentenceID, w.SectionNumber}
}
func (d FullSentenceDeletion) Ref() Ref {
	return Ref{KindFullSentenceDeletion, d.ID, d.SectionNumber}
}
func (i FullSentenceInsertion) Ref() Ref {
	return Ref{KindFullSentenceInsertion, i.ID, i.SectionNumber}
}
func (s StructuralChange) Ref() Ref {
	return Ref{KindStructuralChange, s.ID, s.SectionNumber}
}

func (Comment) sealed()               {}
func (Highlight) sealed()             {}
func (WordLevelTrackChange) sealed()  {}
func (FullSentenceDeletion) sealed()  {}
func (FullSentenceInsertion) sealed() {}
func (StructuralChange) sealed()      {}

// IntPtr is a convenience for building Edit offsets.
func IntPtr(v int) *int {
	return &v
}
