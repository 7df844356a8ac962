package ecomodels

const (
	DefaultPageLimit = 8
	MaxPageLimit     = 100
)

// PageMeta describes one page of the history table
type PageMeta struct {
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
	TotalItems  int64 `json:"total_items"`
	StartIndex  *int  `json:"start_index,omitempty"`
	EndIndex    *int  `json:"end_index,omitempty"`
}

// HistoryPage is the paginated history response body
type HistoryPage struct {
	Data []Row    `json:"data"`
	Meta PageMeta `json:"meta"`
}

// NewPageMeta computes pagination metadata. An empty store still has one
// (empty) page. ok is false when page lies past the last page.
func NewPageMeta(total int64, page, limit int) (meta PageMeta, offset int, ok bool) {
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	if totalPages == 0 {
		totalPages = 1
	}

	meta = PageMeta{
		TotalPages:  totalPages,
		CurrentPage: page,
		TotalItems:  total,
	}
	if page > totalPages {
		return meta, 0, false
	}

	offset = (page - 1) * limit
	start, end := 0, 0
	if total > 0 {
		start = offset + 1
		end = offset + limit
		if int64(end) > total {
			end = int(total)
		}
	}
	meta.HasNext = page < totalPages
	meta.HasPrevious = page > 1
	meta.StartIndex = &start
	meta.EndIndex = &end
	return meta, offset, true
}
