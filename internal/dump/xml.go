package dump

import (
	"encoding/xml"
	"fmt"
	"io"

	"wikistore/internal/model"
)

// Reader pulls Page values out of a Wikimedia export XML stream one at a
// time. It is forward-only and not safe for concurrent use.
type Reader struct {
	dec *xml.Decoder
}

// NewReader wraps src (already decompressed, ideally buffered) in a
// streaming XML page reader.
func NewReader(src io.Reader) *Reader {
	return &Reader{dec: xml.NewDecoder(src)}
}

// Next returns the next page in the stream, or io.EOF once the document
// is exhausted. A structural XML violation inside a <page> element is
// returned as an error for that call; the caller may call Next again to
// continue with the following page.
func (r *Reader) Next() (model.Page, error) {
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return model.Page{}, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "page" {
			continue
		}
		return r.readPage(start)
	}
}

type rawPage struct {
	Title    string  `xml:"title"`
	NsID     *int32  `xml:"ns"`
	ID       *uint64 `xml:"id"`
	Revision []struct {
		ID   uint64  `xml:"id"`
		Text *string `xml:"text"`
	} `xml:"revision"`
}

func (r *Reader) readPage(start xml.StartElement) (model.Page, error) {
	var raw rawPage
	if err := r.dec.DecodeElement(&raw, &start); err != nil {
		return model.Page{}, fmt.Errorf("dump: decode <page>: %w", err)
	}
	if raw.Title == "" {
		return model.Page{}, fmt.Errorf("dump: page missing <title>")
	}
	if raw.NsID == nil {
		return model.Page{}, fmt.Errorf("dump: page %q missing <ns>", raw.Title)
	}
	if raw.ID == nil {
		return model.Page{}, fmt.Errorf("dump: page %q missing <id>", raw.Title)
	}

	p := model.Page{NsID: *raw.NsID, ID: *raw.ID, Title: raw.Title}
	if len(raw.Revision) > 0 {
		// Only the last <revision> within the page is kept; see open
		// question in the design notes about multiple revisions per page.
		last := raw.Revision[len(raw.Revision)-1]
		p.Revision = &model.Revision{ID: last.ID, Text: last.Text}
	}
	return p, nil
}
