package listing

import (
	"slices"
	"strings"
)

// ViewState is the serialisable description of what a view currently shows.
type ViewState struct {
	Query     string            `json:"query"`
	Sort      SortSpec          `json:"sort"`
	Page      int               `json:"page"`
	PageSize  int               `json:"page_size"`
	Partition string            `json:"partition"`
	Facets    map[string]string `json:"facets,omitempty"`
}

// Config parameterises a controller for one screen.
type Config struct {
	SearchFields []string
	Rules        Rules
	DefaultSort  SortSpec
	PageSize     int
	Partitions   []string
	FacetFields  []string
}

// View is the rendered view model of a controller.
type View struct {
	Rows        []Record          `json:"rows"`
	Page        int               `json:"page"`
	TotalPages  int               `json:"total_pages"`
	Total       int               `json:"total"`
	PageSize    int               `json:"page_size"`
	PageNumbers []PageItem        `json:"page_numbers"`
	Sort        SortSpec          `json:"sort"`
	Query       string            `json:"query"`
	Partition   string            `json:"partition"`
	Facets      map[string]string `json:"facets,omitempty"`
	Counts      map[string]int    `json:"counts"`
}

// Controller owns the state of one list view and re-runs the
// facet, search, sort and paginate stages on every read.
// It is not safe for concurrent use.
type Controller struct {
	cfg   Config
	store *Store
	state ViewState
}

// NewController creates an empty view on page 1 of the first partition.
func NewController(cfg Config) *Controller {
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	store := NewStore(cfg.Partitions...)
	return &Controller{
		cfg:   cfg,
		store: store,
		state: ViewState{
			Sort:      cfg.DefaultSort,
			Page:      1,
			PageSize:  pageSize,
			Partition: store.Active(),
			Facets:    map[string]string{},
		},
	}
}

// State returns a copy of the current view state.
func (c *Controller) State() ViewState {
	state := c.state
	state.Facets = make(map[string]string, len(c.state.Facets))
	for field, value := range c.state.Facets {
		state.Facets[field] = value
	}
	return state
}

// SetRecords replaces the underlying data and clamps the current page.
func (c *Controller) SetRecords(parts Partitions) {
	c.store.Replace(parts)
	c.state.Partition = c.store.Active()
	c.clamp()
}

// SelectPartition switches the active partition and returns to page 1.
func (c *Controller) SelectPartition(name string) bool {
	if !c.store.Select(name) {
		return false
	}
	c.state.Partition = name
	c.state.Page = 1
	c.clamp()
	return true
}

// OnSearchChange stores the query and returns to page 1.
func (c *Controller) OnSearchChange(query string) {
	c.state.Query = strings.TrimSpace(query)
	c.state.Page = 1
	c.clamp()
}

// OnSortField toggles the sort on field and returns to page 1.
func (c *Controller) OnSortField(field string) {
	c.SetSort(Toggle(c.state.Sort, field, c.cfg.Rules))
}

// SetSort replaces the sort spec. A no-op when spec equals the current sort.
func (c *Controller) SetSort(spec SortSpec) {
	if spec.Direction != Desc {
		spec.Direction = Asc
	}
	if spec == c.state.Sort {
		return
	}
	c.state.Sort = spec
	c.state.Page = 1
}

// OnPageChange moves to page, clamped into range.
func (c *Controller) OnPageChange(page int) {
	c.state.Page = page
	c.clamp()
}

// OnFacetChange sets or clears (empty value) an exact-match facet and returns
// to page 1. Fields outside the configured facet list are ignored.
func (c *Controller) OnFacetChange(field, value string) bool {
	if len(c.cfg.FacetFields) > 0 && !slices.Contains(c.cfg.FacetFields, field) {
		return false
	}
	value = strings.TrimSpace(value)
	if c.state.Facets[field] == value {
		return true
	}
	if value == "" {
		delete(c.state.Facets, field)
	} else {
		c.state.Facets[field] = value
	}
	c.state.Page = 1
	c.clamp()
	return true
}

// Patch overlays fields on a record in every partition and clamps the page.
func (c *Controller) Patch(idField, id string, fields map[string]any) int {
	n := c.store.Patch(idField, id, fields)
	if n > 0 {
		c.clamp()
	}
	return n
}

// Find looks up a record by id field across partitions.
func (c *Controller) Find(idField, id string) (Record, bool) {
	return c.store.Find(idField, id)
}

// Counts returns the number of records in each partition.
func (c *Controller) Counts() map[string]int {
	return c.store.Counts()
}

// View renders the current page and writes the clamped page back into the state.
func (c *Controller) View() View {
	filtered := c.filtered()
	sorted := Sort(filtered, c.state.Sort, c.cfg.Rules)
	page := Paginate(sorted, c.state.Page, c.state.PageSize)
	c.state.Page = page.Page

	state := c.State()
	return View{
		Rows:        page.Rows,
		Page:        page.Page,
		TotalPages:  page.TotalPages,
		Total:       page.Total,
		PageSize:    state.PageSize,
		PageNumbers: PageNumbers(page.Page, page.TotalPages),
		Sort:        state.Sort,
		Query:       state.Query,
		Partition:   state.Partition,
		Facets:      state.Facets,
		Counts:      c.store.Counts(),
	}
}

func (c *Controller) filtered() []Record {
	records := FilterFacets(c.store.Records(), c.state.Facets)
	return Filter(records, c.state.Query, c.cfg.SearchFields)
}

func (c *Controller) clamp() {
	total := TotalPages(len(c.filtered()), c.state.PageSize)
	c.state.Page = ClampPage(c.state.Page, total)
}
