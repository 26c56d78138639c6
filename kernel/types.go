package kernel

// Block is a row from the kernel's blocks table. The kernel stores every
// document, heading, paragraph, and list item as a block.
type Block struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	RootID   string `json:"root_id"`
	Box      string `json:"box"`
	Path     string `json:"path"`
	HPath    string `json:"hpath"`
	Name     string `json:"name"`
	Alias    string `json:"alias"`
	Memo     string `json:"memo"`
	Content  string `json:"content"`
	FContent string `json:"fcontent"`
	Markdown string `json:"markdown"`
	Type     string `json:"type"`
	SubType  string `json:"subtype"`
	IAL      string `json:"ial"`
	Sort     int    `json:"sort"`
	Created  string `json:"created"`
	Updated  string `json:"updated"`
}

// IsDocument reports whether the block is a document root.
func (b *Block) IsDocument() bool {
	return b.Type == "d"
}

// Block type codes as stored in the blocks table.
const (
	BlockTypeDocument      = "d"
	BlockTypeHeading       = "h"
	BlockTypeParagraph     = "p"
	BlockTypeList          = "l"
	BlockTypeListItem      = "i"
	BlockTypeBlockquote    = "b"
	BlockTypeSuperBlock    = "s"
	BlockTypeCode          = "c"
	BlockTypeTable         = "t"
	BlockTypeAttributeView = "av"
)

// Notebook describes one notebook (box) in the workspace.
type Notebook struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Icon   string `json:"icon"`
	Sort   int    `json:"sort"`
	Closed bool   `json:"closed"`
}

// NotebookConf is a notebook's configuration document.
type NotebookConf struct {
	Box  string `json:"box"`
	Name string `json:"name"`
	Conf struct {
		Name               string `json:"name"`
		RefCreateSavePath  string `json:"refCreateSavePath"`
		DocCreateSavePath  string `json:"docCreateSavePath"`
		DailyNoteSavePath  string `json:"dailyNoteSavePath"`
		DailyNoteTemplate  string `json:"dailyNoteTemplatePath"`
		Closed             bool   `json:"closed"`
	} `json:"conf"`
}

// ExportedDoc is a document exported as markdown.
type ExportedDoc struct {
	HPath   string `json:"hPath"`
	Content string `json:"content"`
}

// BlockKramdown is a block's source form.
type BlockKramdown struct {
	ID       string `json:"id"`
	Kramdown string `json:"kramdown"`
}

// SearchQuery parameterizes full-text search.
type SearchQuery struct {
	Query    string         `json:"query"`
	Method   int            `json:"method"`
	Types    map[string]bool `json:"types,omitempty"`
	Paths    []string       `json:"paths,omitempty"`
	GroupBy  int            `json:"groupBy"`
	OrderBy  int            `json:"orderBy"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize,omitempty"`
}

// SearchBlock is a full-text search hit. Unlike Block it uses the search
// API's field casing and may carry grouped children.
type SearchBlock struct {
	ID       string        `json:"id"`
	Box      string        `json:"box"`
	Path     string        `json:"path"`
	HPath    string        `json:"hPath"`
	RootID   string        `json:"rootID"`
	Content  string        `json:"content"`
	FContent string        `json:"fcontent"`
	Markdown string        `json:"markdown"`
	Tag      string        `json:"tag"`
	Memo     string        `json:"memo"`
	Alias    string        `json:"alias"`
	Type     string        `json:"type"`
	Children []SearchBlock `json:"children,omitempty"`
}

// SearchResult is one page of full-text search matches.
type SearchResult struct {
	Blocks            []SearchBlock `json:"blocks"`
	MatchedBlockCount int           `json:"matchedBlockCount"`
	MatchedRootCount  int           `json:"matchedRootCount"`
	PageCount         int           `json:"pageCount"`
}

// BacklinkGroup is one referencing document with its matching refs.
type BacklinkGroup struct {
	ID       string `json:"id"`
	Box      string `json:"box"`
	Name     string `json:"name"`
	HPath    string `json:"hPath"`
	Type     string `json:"nodeType"`
	RefCount int    `json:"refCount"`
}

// BacklinkResult groups backlinks and backmentions for one target.
type BacklinkResult struct {
	Backlinks    []BacklinkGroup `json:"backlinks"`
	Backmentions []BacklinkGroup `json:"backmentions"`
	LinkRefsCount int            `json:"linkRefsCount"`
	MentionsCount int            `json:"mentionsCount"`
}

// RiffDeck is a flashcard deck.
type RiffDeck struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int    `json:"size"`
}

// txReceipt is the per-transaction result of a block mutation.
type txReceipt struct {
	DoOperations []struct {
		ID string `json:"id"`
	} `json:"doOperations"`
}
