// Package classify assigns documents to modality buckets for the encode pipeline.
package classify

import (
	"fmt"

	"github.com/hyperjump/umekomi/internal/docs"
)

// Modality is the content type of a document.
type Modality int

const (
	// ModalityNone marks documents with no usable content; they pass
	// through the pipeline untouched.
	ModalityNone Modality = iota
	ModalityText
	ModalityImage
)

// String returns the modality name for logging and metrics labels.
func (m Modality) String() string {
	switch m {
	case ModalityText:
		return "text"
	case ModalityImage:
		return "image"
	default:
		return "none"
	}
}

// TraversalScope selects which nesting levels of the document tree an
// operation processes.
type TraversalScope int

const (
	// RootOnly processes the top-level documents.
	RootOnly TraversalScope = iota
	// RootAndMatches additionally processes one level of each document's matches.
	RootAndMatches
)

// String returns the scope's wire name.
func (s TraversalScope) String() string {
	if s == RootAndMatches {
		return "root_and_matches"
	}
	return "root"
}

// ParseScope converts the wire name of a traversal scope. The empty string
// means the caller took the default, RootOnly.
func ParseScope(s string) (TraversalScope, error) {
	switch s {
	case "", "root":
		return RootOnly, nil
	case "root_and_matches":
		return RootAndMatches, nil
	default:
		return RootOnly, fmt.Errorf("unknown traversal scope %q", s)
	}
}

// Classify returns the modality of a single document. Image content kinds
// are checked in tensor > blob > URI priority so a tensor wins if several
// fields are somehow populated.
func Classify(d *docs.Document) Modality {
	if d == nil {
		return ModalityNone
	}
	if d.Tensor != nil || len(d.Blob) > 0 || d.URI != "" {
		return ModalityImage
	}
	if d.Text != "" {
		return ModalityText
	}
	return ModalityNone
}

// Buckets holds the per-modality document buckets produced by Split.
// Buckets hold pointers into the caller's collection, never copies, so
// embedding writes land on the original documents.
type Buckets struct {
	Text  []*docs.Document
	Image []*docs.Document
}

// Split walks the collection at the given scope and buckets every document
// by modality. Documents with no usable content are skipped. Collection
// order within each bucket follows traversal order: roots first, then each
// root's matches in order. A document pointer reached more than once, such
// as a match shared by two anchors, is bucketed only on first sight so it
// runs through the pipeline once.
func Split(collection []*docs.Document, scope TraversalScope) Buckets {
	var b Buckets
	seen := make(map[*docs.Document]struct{})
	add := func(d *docs.Document) {
		if d == nil {
			return
		}
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		switch Classify(d) {
		case ModalityText:
			b.Text = append(b.Text, d)
		case ModalityImage:
			b.Image = append(b.Image, d)
		}
	}
	for _, d := range collection {
		add(d)
	}
	if scope == RootAndMatches {
		for _, d := range collection {
			if d == nil {
				continue
			}
			for _, m := range d.Matches {
				add(m)
			}
		}
	}
	return b
}
