package dump

import (
	"io"
	"strings"
	"testing"
)

const sampleXML = `<mediawiki>
  <page>
    <title>Abacus</title>
    <ns>0</ns>
    <id>42</id>
    <revision>
      <id>100</id>
      <text>[[Category:Counting tools]] body</text>
    </revision>
  </page>
  <page>
    <title>No Body</title>
    <ns>0</ns>
    <id>7</id>
  </page>
</mediawiki>`

func TestReaderYieldsPages(t *testing.T) {
	r := NewReader(strings.NewReader(sampleXML))

	p1, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if p1.Title != "Abacus" || p1.ID != 42 || p1.NsID != 0 {
		t.Fatalf("p1 = %+v", p1)
	}
	if p1.Revision == nil || p1.Revision.ID != 100 || p1.Revision.Text == nil || *p1.Revision.Text == "" {
		t.Fatalf("p1.Revision = %+v", p1.Revision)
	}

	p2, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if p2.Title != "No Body" || p2.ID != 7 {
		t.Fatalf("p2 = %+v", p2)
	}
	if p2.Revision != nil {
		t.Fatalf("p2.Revision should be nil, got %+v", p2.Revision)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReaderMissingTitleFails(t *testing.T) {
	const bad = `<mediawiki><page><ns>0</ns><id>1</id></page></mediawiki>`
	r := NewReader(strings.NewReader(bad))
	if _, err := r.Next(); err == nil {
		t.Fatal("expected error for missing title")
	}
}
