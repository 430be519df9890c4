package chunk

import (
	"encoding/binary"
	"errors"
	"math"

	"wikistore/internal/model"
)

// Page record layout, little-endian:
//
//	magic byte (0x70)
//	version byte (0x01)
//	ns_id    int32
//	page_id  uint64
//	title_len uint16, title bytes
//	has_revision byte
//	  revision_id  uint64   (if has_revision)
//	  has_text     byte     (if has_revision)
//	    text_len   uint32, text bytes (if has_text)
const (
	RecordMagic   = 0x70
	RecordVersion = 0x01
)

var (
	ErrRecordTooSmall  = errors.New("chunk: page record too small")
	ErrMagicMismatch   = errors.New("chunk: page record magic mismatch")
	ErrVersionMismatch = errors.New("chunk: page record version mismatch")
	ErrRecordTruncated = errors.New("chunk: page record truncated")
	ErrTitleTooLarge   = errors.New("chunk: title exceeds 65535 bytes")
	ErrTextTooLarge    = errors.New("chunk: revision text too large")
)

// EncodeRecord serializes a page to its binary record form.
func EncodeRecord(p model.Page) ([]byte, error) {
	title := []byte(p.Title)
	if len(title) > math.MaxUint16 {
		return nil, ErrTitleTooLarge
	}

	size := 2 + 4 + 8 + 2 + len(title) + 1
	var text []byte
	if p.Revision != nil {
		size += 8 + 1
		if p.Revision.Text != nil {
			text = []byte(*p.Revision.Text)
			if uint64(len(text)) > math.MaxUint32 {
				return nil, ErrTextTooLarge
			}
			size += 4 + len(text)
		}
	}

	buf := make([]byte, size)
	cursor := 0
	buf[cursor] = RecordMagic
	cursor++
	buf[cursor] = RecordVersion
	cursor++
	binary.LittleEndian.PutUint32(buf[cursor:cursor+4], uint32(p.NsID))
	cursor += 4
	binary.LittleEndian.PutUint64(buf[cursor:cursor+8], p.ID)
	cursor += 8
	binary.LittleEndian.PutUint16(buf[cursor:cursor+2], uint16(len(title)))
	cursor += 2
	copy(buf[cursor:cursor+len(title)], title)
	cursor += len(title)

	if p.Revision == nil {
		buf[cursor] = 0
		return buf, nil
	}
	buf[cursor] = 1
	cursor++
	binary.LittleEndian.PutUint64(buf[cursor:cursor+8], p.Revision.ID)
	cursor += 8
	if p.Revision.Text == nil {
		buf[cursor] = 0
		return buf, nil
	}
	buf[cursor] = 1
	cursor++
	binary.LittleEndian.PutUint32(buf[cursor:cursor+4], uint32(len(text)))
	cursor += 4
	copy(buf[cursor:cursor+len(text)], text)

	return buf, nil
}

// DecodeRecord deserializes a page from its binary record form. The
// returned Page's Title and Revision.Text are copies, independent of buf.
func DecodeRecord(buf []byte) (model.Page, error) {
	if len(buf) < 2+4+8+2+1 {
		return model.Page{}, ErrRecordTooSmall
	}
	cursor := 0
	if buf[cursor] != RecordMagic {
		return model.Page{}, ErrMagicMismatch
	}
	cursor++
	if buf[cursor] != RecordVersion {
		return model.Page{}, ErrVersionMismatch
	}
	cursor++

	nsID := int32(binary.LittleEndian.Uint32(buf[cursor : cursor+4]))
	cursor += 4
	id := binary.LittleEndian.Uint64(buf[cursor : cursor+8])
	cursor += 8
	titleLen := int(binary.LittleEndian.Uint16(buf[cursor : cursor+2]))
	cursor += 2
	if cursor+titleLen+1 > len(buf) {
		return model.Page{}, ErrRecordTruncated
	}
	title := string(buf[cursor : cursor+titleLen])
	cursor += titleLen

	hasRevision := buf[cursor]
	cursor++
	p := model.Page{NsID: nsID, ID: id, Title: title}
	if hasRevision == 0 {
		return p, nil
	}

	if cursor+8+1 > len(buf) {
		return model.Page{}, ErrRecordTruncated
	}
	revID := binary.LittleEndian.Uint64(buf[cursor : cursor+8])
	cursor += 8
	hasText := buf[cursor]
	cursor++
	rev := &model.Revision{ID: revID}
	if hasText != 0 {
		if cursor+4 > len(buf) {
			return model.Page{}, ErrRecordTruncated
		}
		textLen := int(binary.LittleEndian.Uint32(buf[cursor : cursor+4]))
		cursor += 4
		if cursor+textLen > len(buf) {
			return model.Page{}, ErrRecordTruncated
		}
		text := string(buf[cursor : cursor+textLen])
		rev.Text = &text
	}
	p.Revision = rev
	return p, nil
}
