package classify

import (
	"testing"

	"github.com/hyperjump/umekomi/internal/docs"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		doc  *docs.Document
		want Modality
	}{
		{"text", &docs.Document{Text: "hello"}, ModalityText},
		{"uri", &docs.Document{URI: "img/cat.jpg"}, ModalityImage},
		{"blob", &docs.Document{Blob: []byte{0xff, 0xd8}}, ModalityImage},
		{"tensor", &docs.Document{Tensor: &docs.Tensor{Shape: []int{1, 1, 3}, DType: docs.DTypeUint8, U8: make([]uint8, 3)}}, ModalityImage},
		{"empty", &docs.Document{}, ModalityNone},
		{"nil", nil, ModalityNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.doc); got != tc.want {
				t.Errorf("Classify = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClassifyTensorPriority(t *testing.T) {
	// A tensor takes precedence even when text is also (incorrectly) set;
	// the document still lands in the image bucket.
	d := &docs.Document{
		Text:   "also has text",
		Tensor: &docs.Tensor{Shape: []int{1, 1, 3}, DType: docs.DTypeUint8, U8: make([]uint8, 3)},
	}
	if got := Classify(d); got != ModalityImage {
		t.Errorf("Classify = %v, want image", got)
	}
}

func TestSplitRootOnly(t *testing.T) {
	collection := []*docs.Document{
		{Text: "a"},
		{URI: "x.jpg", Matches: []*docs.Document{{Text: "nested"}}},
		{},
	}
	b := Split(collection, RootOnly)
	if len(b.Text) != 1 || len(b.Image) != 1 {
		t.Fatalf("got %d text, %d image", len(b.Text), len(b.Image))
	}
	if b.Text[0] != collection[0] {
		t.Error("bucket must hold the original pointer")
	}
}

func TestSplitRootAndMatches(t *testing.T) {
	collection := []*docs.Document{
		{Text: "anchor", Matches: []*docs.Document{{Text: "m1"}, {URI: "m2.png"}, {}}},
		{Text: "anchor2"},
	}
	b := Split(collection, RootAndMatches)
	if len(b.Text) != 3 {
		t.Errorf("want 3 text docs, got %d", len(b.Text))
	}
	if len(b.Image) != 1 {
		t.Errorf("want 1 image doc, got %d", len(b.Image))
	}
	// Roots come before matches.
	if b.Text[0].Text != "anchor" || b.Text[1].Text != "anchor2" || b.Text[2].Text != "m1" {
		t.Errorf("unexpected bucket order: %v", []string{b.Text[0].Text, b.Text[1].Text, b.Text[2].Text})
	}
}

func TestSplitDeduplicatesSharedPointers(t *testing.T) {
	shared := &docs.Document{Text: "candidate shared by both anchors"}
	collection := []*docs.Document{
		{Text: "anchor1", Matches: []*docs.Document{shared, {Text: "own"}}},
		{Text: "anchor2", Matches: []*docs.Document{shared}},
	}
	b := Split(collection, RootAndMatches)
	// anchor1, anchor2, shared, own: the shared match is bucketed once.
	if len(b.Text) != 4 {
		t.Fatalf("want 4 text docs, got %d", len(b.Text))
	}
	count := 0
	for _, d := range b.Text {
		if d == shared {
			count++
		}
	}
	if count != 1 {
		t.Errorf("shared match appears %d times, want 1", count)
	}

	// A root repeated in the collection is also bucketed once.
	root := &docs.Document{Text: "repeated root"}
	b = Split([]*docs.Document{root, root}, RootOnly)
	if len(b.Text) != 1 {
		t.Errorf("repeated root bucketed %d times, want 1", len(b.Text))
	}
}
