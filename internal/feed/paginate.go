package feed

// DefaultPageSize は1ページあたりの投稿数のデフォルト値。
const DefaultPageSize = 10

// PageInfo はページ送りの情報。ページ番号は1始まり。
type PageInfo struct {
	Number      int // 実際に返したページ番号
	Requested   int // 要求されたページ番号
	TotalPages  int
	TotalItems  int
	Size        int
	HasPrevious bool
	HasNext     bool
}

// Offset は該当ページ先頭の0始まりのオフセット。
func (p PageInfo) Offset() int {
	return (p.Number - 1) * p.Size
}

// Paginate は総件数と要求ページから表示するページを決定する。
// 範囲外の要求はエラーにせず、1未満は1ページ目に、最終ページ超は最終ページに丸める。
// 0件の場合も空の1ページが存在するものとして扱う。
func Paginate(totalItems, requested, size int) PageInfo {
	if size <= 0 {
		size = DefaultPageSize
	}
	totalPages := (totalItems + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}

	number := requested
	if number < 1 {
		number = 1
	}
	if number > totalPages {
		number = totalPages
	}

	return PageInfo{
		Number:      number,
		Requested:   requested,
		TotalPages:  totalPages,
		TotalItems:  totalItems,
		Size:        size,
		HasPrevious: number > 1,
		HasNext:     number < totalPages,
	}
}
