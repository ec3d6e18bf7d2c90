package remote

import (
	"github.com/goccy/go-json"
)

// Block is the write-side representation of a Notion block. Only the variants
// this daemon actually renders are modeled; exactly one of the typed fields
// should be set, matching the Type value.
type Block struct {
	Object    string     `json:"object,omitempty"`
	Type      string     `json:"type"`
	Paragraph *BlockText `json:"paragraph,omitempty"`
	Quote     *BlockText `json:"quote,omitempty"`
	Table     *Table     `json:"table,omitempty"`
	TableRow  *TableRow  `json:"table_row,omitempty"`
}

// BlockText is the shared payload shape of text-carrying blocks (paragraphs
// and quotes). Children are only valid on quote blocks.
type BlockText struct {
	RichText []RichText `json:"rich_text"`
	Children []Block    `json:"children,omitempty"`
}

type Table struct {
	TableWidth      int     `json:"table_width"`
	HasColumnHeader bool    `json:"has_column_header"`
	Children        []Block `json:"children"`
}

type TableRow struct {
	Cells [][]RichText `json:"cells"`
}

type RichText struct {
	Type        string       `json:"type"`
	Text        TextContent  `json:"text"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

type TextContent struct {
	Content string `json:"content"`
}

type Annotations struct {
	Bold  bool   `json:"bold,omitempty"`
	Color string `json:"color,omitempty"`
}

// ChildList is the response shape of both child listing and child appending.
// Results stay raw since listed blocks are polymorphic, callers probe the
// fields they care about.
type ChildList struct {
	Object  string            `json:"object"`
	Results []json.RawMessage `json:"results"`
	HasMore bool              `json:"has_more"`
}

// Text returns a plain rich text fragment.
func Text(s string) RichText {
	return RichText{Type: "text", Text: TextContent{Content: s}}
}

// BoldText returns a bold rich text fragment.
func BoldText(s string) RichText {
	return RichText{Type: "text", Text: TextContent{Content: s}, Annotations: &Annotations{Bold: true}}
}

// MutedText returns a visually de-emphasized rich text fragment.
func MutedText(s string) RichText {
	return RichText{Type: "text", Text: TextContent{Content: s}, Annotations: &Annotations{Color: "gray"}}
}

// NewParagraph returns a paragraph block wrapping the given rich text.
func NewParagraph(rt ...RichText) Block {
	return Block{Object: "block", Type: "paragraph", Paragraph: &BlockText{RichText: rt}}
}

// NewQuote returns a quote block with the given title text and nested child
// blocks. Quotes are the only container-like block the destination lets us
// both append and delete as a unit.
func NewQuote(title []RichText, children ...Block) Block {
	return Block{Object: "block", Type: "quote", Quote: &BlockText{RichText: title, Children: children}}
}

// NewTable returns a table block of the given width. The first row is used
// as the column header.
func NewTable(width int, rows ...Block) Block {
	return Block{Object: "block", Type: "table", Table: &Table{
		TableWidth:      width,
		HasColumnHeader: true,
		Children:        rows,
	}}
}

// NewTableRow returns a table row whose cells each hold a single plain text
// value.
func NewTableRow(cells ...string) Block {
	c := make([][]RichText, len(cells))
	for i, v := range cells {
		c[i] = []RichText{Text(v)}
	}
	return Block{Object: "block", Type: "table_row", TableRow: &TableRow{Cells: c}}
}
