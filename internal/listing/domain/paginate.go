package listing

// DefaultPageSize is the number of rows per page on the admin list screens.
const DefaultPageSize = 25

// maxPageSlots is the largest page count rendered without ellipses.
const maxPageSlots = 5

// Page is one slice of a sorted, filtered record set.
type Page struct {
	Rows       []Record `json:"rows"`
	Page       int      `json:"page"`
	TotalPages int      `json:"total_pages"`
	Total      int      `json:"total"`
}

// TotalPages returns max(1, ceil(count/pageSize)). A non-positive pageSize is one page.
func TotalPages(count, pageSize int) int {
	if pageSize <= 0 || count <= 0 {
		return 1
	}
	pages := count / pageSize
	if count%pageSize != 0 {
		pages++
	}
	return pages
}

// ClampPage constrains page into [1, totalPages].
func ClampPage(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// Paginate slices records into the requested page. The returned Page.Page is
// the clamped page and is authoritative for callers.
func Paginate(records []Record, page, pageSize int) Page {
	total := len(records)
	totalPages := TotalPages(total, pageSize)
	page = ClampPage(page, totalPages)

	start, end := 0, total
	if pageSize > 0 {
		start = min((page-1)*pageSize, total)
		end = start + min(pageSize, total-start)
	}
	rows := make([]Record, end-start)
	copy(rows, records[start:end])

	return Page{Rows: rows, Page: page, TotalPages: totalPages, Total: total}
}

// PageItem is one slot of the page-number strip: either a page or an ellipsis.
type PageItem struct {
	Number   int  `json:"number,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
}

// PageNumbers builds the page-number strip. Up to five pages are listed in
// full; beyond that the first and last page are always shown with up to three
// pages around current and gaps collapsed into a single ellipsis.
func PageNumbers(current, totalPages int) []PageItem {
	if totalPages < 1 {
		totalPages = 1
	}
	current = ClampPage(current, totalPages)

	if totalPages <= maxPageSlots {
		items := make([]PageItem, 0, totalPages)
		for i := 1; i <= totalPages; i++ {
			items = append(items, PageItem{Number: i})
		}
		return items
	}

	start := max(2, current-1)
	end := min(totalPages-1, current+1)
	if current <= 2 {
		end = min(totalPages-1, 4)
	}
	if current >= totalPages-1 {
		start = max(2, totalPages-3)
	}

	items := []PageItem{{Number: 1}}
	if start > 2 {
		items = append(items, PageItem{Ellipsis: true})
	}
	for i := start; i <= end; i++ {
		items = append(items, PageItem{Number: i})
	}
	if end < totalPages-1 {
		items = append(items, PageItem{Ellipsis: true})
	}
	return append(items, PageItem{Number: totalPages})
}
