package chunk

import (
	"testing"

	"wikistore/internal/model"
)

func TestEncodeDecodeRecordRoundTrip(t *testing.T) {
	text := "[[Category:Counting tools]] body"
	cases := []model.Page{
		{NsID: 0, ID: 42, Title: "Abacus", Revision: &model.Revision{ID: 100, Text: &text}},
		{NsID: 0, ID: 7, Title: "No body"},
		{NsID: -1, ID: 9, Title: "Talk page", Revision: &model.Revision{ID: 3}},
	}
	for _, p := range cases {
		buf, err := EncodeRecord(p)
		if err != nil {
			t.Fatalf("EncodeRecord(%v): %v", p, err)
		}
		got, err := DecodeRecord(buf)
		if err != nil {
			t.Fatalf("DecodeRecord: %v", err)
		}
		if got.NsID != p.NsID || got.ID != p.ID || got.Title != p.Title {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
		}
		if (got.Revision == nil) != (p.Revision == nil) {
			t.Fatalf("revision presence mismatch: got %+v, want %+v", got, p)
		}
		if p.Revision != nil {
			if got.Revision.ID != p.Revision.ID {
				t.Fatalf("revision id mismatch: got %d, want %d", got.Revision.ID, p.Revision.ID)
			}
			if (got.Revision.Text == nil) != (p.Revision.Text == nil) {
				t.Fatalf("revision text presence mismatch")
			}
			if p.Revision.Text != nil && *got.Revision.Text != *p.Revision.Text {
				t.Fatalf("revision text mismatch: got %q, want %q", *got.Revision.Text, *p.Revision.Text)
			}
		}
	}
}

func TestDecodeRecordTooSmall(t *testing.T) {
	if _, err := DecodeRecord([]byte{1, 2, 3}); err != ErrRecordTooSmall {
		t.Fatalf("got %v, want ErrRecordTooSmall", err)
	}
}

func TestDecodeRecordBadMagic(t *testing.T) {
	buf, err := EncodeRecord(model.Page{Title: "x"})
	if err != nil {
		t.Fatal(err)
	}
	buf[0] = 0xff
	if _, err := DecodeRecord(buf); err != ErrMagicMismatch {
		t.Fatalf("got %v, want ErrMagicMismatch", err)
	}
}
