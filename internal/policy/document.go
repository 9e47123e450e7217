// ABOUTME: PolicyDocument model and its JSON wire format
// ABOUTME: Handles default synthesis, field repair, and unknown-key passthrough

package policy

import (
	"encoding/json"
	"fmt"
)

// Known document keys in the persisted JSON object.
const (
	keyRecipients   = "recipients"
	keyKeywords     = "keywords"
	keyIgnoredUsers = "ignored_users"
	keyDeleteSource = "delete_source_message"
)

// Document is the single persisted policy aggregate: the recipient roster,
// the blocked-keyword set, the ignored-sender set, and the delete-after-relay
// flag. Sets preserve insertion order for listing; membership is checked
// before every insert so they never hold duplicates.
type Document struct {
	Recipients          []int64
	Keywords            []string
	IgnoredUsers        []int64
	DeleteSourceMessage bool

	// extra holds unknown keys found in the file so a save never discards
	// fields written by newer versions or by hand.
	extra map[string]json.RawMessage
}

// NewDocument returns a document with all sets empty and the flag false.
func NewDocument() *Document {
	return &Document{
		Recipients:   []int64{},
		Keywords:     []string{},
		IgnoredUsers: []int64{},
	}
}

// decodeDocument parses a persisted document. Missing keys are repaired with
// their defaults; present keys are decoded strictly and a type mismatch is an
// error (the file is then treated as corrupt by the store). Unknown keys are
// retained verbatim.
func decodeDocument(data []byte) (*Document, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing policy document: %w", err)
	}

	doc := NewDocument()
	if v, ok := raw[keyRecipients]; ok {
		if err := json.Unmarshal(v, &doc.Recipients); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", keyRecipients, err)
		}
		delete(raw, keyRecipients)
	}
	if v, ok := raw[keyKeywords]; ok {
		if err := json.Unmarshal(v, &doc.Keywords); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", keyKeywords, err)
		}
		delete(raw, keyKeywords)
	}
	if v, ok := raw[keyIgnoredUsers]; ok {
		if err := json.Unmarshal(v, &doc.IgnoredUsers); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", keyIgnoredUsers, err)
		}
		delete(raw, keyIgnoredUsers)
	}
	if v, ok := raw[keyDeleteSource]; ok {
		if err := json.Unmarshal(v, &doc.DeleteSourceMessage); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", keyDeleteSource, err)
		}
		delete(raw, keyDeleteSource)
	}
	if len(raw) > 0 {
		doc.extra = raw
	}

	// Repaired nil slices become empty so the encoded form always carries
	// all four keys.
	if doc.Recipients == nil {
		doc.Recipients = []int64{}
	}
	if doc.Keywords == nil {
		doc.Keywords = []string{}
	}
	if doc.IgnoredUsers == nil {
		doc.IgnoredUsers = []int64{}
	}

	return doc, nil
}

// encode renders the document as an indented JSON object, including any
// unknown keys carried over from load.
func (d *Document) encode() ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(d.extra)+4)
	for k, v := range d.extra {
		obj[k] = v
	}

	var err error
	if obj[keyRecipients], err = json.Marshal(d.Recipients); err != nil {
		return nil, err
	}
	if obj[keyKeywords], err = json.Marshal(d.Keywords); err != nil {
		return nil, err
	}
	if obj[keyIgnoredUsers], err = json.Marshal(d.IgnoredUsers); err != nil {
		return nil, err
	}
	if obj[keyDeleteSource], err = json.Marshal(d.DeleteSourceMessage); err != nil {
		return nil, err
	}

	return json.MarshalIndent(obj, "", "  ")
}

// Snapshot is an immutable copy of the document handed to readers. The
// filter and the fan-out work from a snapshot so a concurrent admin edit
// never changes a decision mid-message.
type Snapshot struct {
	Recipients          []int64
	Keywords            []string
	IgnoredUsers        []int64
	DeleteSourceMessage bool
}

// snapshot copies the document's visible state.
func (d *Document) snapshot() Snapshot {
	return Snapshot{
		Recipients:          append([]int64(nil), d.Recipients...),
		Keywords:            append([]string(nil), d.Keywords...),
		IgnoredUsers:        append([]int64(nil), d.IgnoredUsers...),
		DeleteSourceMessage: d.DeleteSourceMessage,
	}
}

func containsInt64(xs []int64, x int64) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsString(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func removeInt64(xs []int64, x int64) ([]int64, bool) {
	for i, v := range xs {
		if v == x {
			return append(xs[:i], xs[i+1:]...), true
		}
	}
	return xs, false
}

func removeString(xs []string, x string) ([]string, bool) {
	for i, v := range xs {
		if v == x {
			return append(xs[:i], xs[i+1:]...), true
		}
	}
	return xs, false
}
