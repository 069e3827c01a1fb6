// Package report defines the discovery result shape and its JSON artifact.
package report

// Category names one of the fixed element classifications.
type Category string

// Categories in discovery order.
const (
	Inputs      Category = "inputs"
	Buttons     Category = "buttons"
	Links       Category = "links"
	Forms       Category = "forms"
	Headings    Category = "headings"
	Images      Category = "images"
	Interactive Category = "interactive"
)

// Categories returns every category in the order discovery runs them.
func Categories() []Category {
	return []Category{Inputs, Buttons, Links, Forms, Headings, Images, Interactive}
}

// Interactive sub-kinds.
const (
	KindSelect   = "select"
	KindTextarea = "textarea"
	KindRole     = "role_element"
	KindSelector = "selector"
)

// MaxSelectOptions bounds how many option labels a select record keeps.
const MaxSelectOptions = 10

// Result is the output of one discovery run.
type Result struct {
	Timestamp  string      `json:"timestamp"`
	URL        string      `json:"url"`
	Backend    string      `json:"backend"`
	Elements   Elements    `json:"elements"`
	Statistics *Statistics `json:"statistics,omitempty"`
}

// Elements holds one ordered list per category.
type Elements struct {
	Inputs      []InputRecord       `json:"inputs"`
	Buttons     []ButtonRecord      `json:"buttons"`
	Links       []LinkRecord        `json:"links"`
	Forms       []FormRecord        `json:"forms"`
	Headings    []HeadingRecord     `json:"headings"`
	Images      []ImageRecord       `json:"images"`
	Interactive []InteractiveRecord `json:"interactive"`
}

// Statistics holds per-category counts.
type Statistics struct {
	Inputs      int `json:"inputs"`
	Buttons     int `json:"buttons"`
	Links       int `json:"links"`
	Forms       int `json:"forms"`
	Headings    int `json:"headings"`
	Images      int `json:"images"`
	Interactive int `json:"interactive"`
	Total       int `json:"total"`
}

// InputRecord describes an <input>.
type InputRecord struct {
	Index       int    `json:"index"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder"`
	Class       string `json:"class"`
	Required    bool   `json:"required"`
	Value       string `json:"value"`
	AriaLabel   string `json:"aria-label"`
	Visible     bool   `json:"visible"`
}

// ButtonRecord describes a <button>.
type ButtonRecord struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	Type      string `json:"type"`
	ID        string `json:"id"`
	Class     string `json:"class"`
	Disabled  bool   `json:"disabled"`
	AriaLabel string `json:"aria-label"`
	TestID    string `json:"data-testid"`
	Visible   bool   `json:"visible"`
}

// LinkRecord describes an <a>.
type LinkRecord struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	Href      string `json:"href"`
	ID        string `json:"id"`
	Class     string `json:"class"`
	AriaLabel string `json:"aria-label"`
	Target    string `json:"target"`
	Visible   bool   `json:"visible"`
}

// FormRecord describes a <form>.
type FormRecord struct {
	Index   int    `json:"index"`
	Action  string `json:"action"`
	Method  string `json:"method"`
	ID      string `json:"id"`
	Class   string `json:"class"`
	Name    string `json:"name"`
	Visible bool   `json:"visible"`
}

// HeadingRecord describes an <h1>..<h6>.
type HeadingRecord struct {
	Level      int    `json:"level"`
	Index      int    `json:"index"`
	LevelIndex int    `json:"level_index"`
	Text       string `json:"text"`
	ID         string `json:"id"`
	Class      string `json:"class"`
	Visible    bool   `json:"visible"`
}

// ImageRecord describes an <img>.
type ImageRecord struct {
	Index   int    `json:"index"`
	Src     string `json:"src"`
	Alt     string `json:"alt"`
	ID      string `json:"id"`
	Class   string `json:"class"`
	Width   string `json:"width"`
	Height  string `json:"height"`
	Visible bool   `json:"visible"`
}

// InteractiveRecord describes a select, textarea, role-bearing element or a
// generic selector match. Fields that do not apply to a kind stay empty.
type InteractiveRecord struct {
	Kind         string   `json:"type"`
	Selector     string   `json:"selector"`
	Index        int      `json:"index"`
	Tag          string   `json:"tag"`
	Text         string   `json:"text"`
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Class        string   `json:"class"`
	Role         string   `json:"role"`
	Placeholder  string   `json:"placeholder"`
	AriaLabel    string   `json:"aria-label"`
	TestID       string   `json:"data-testid"`
	OptionsCount int      `json:"options_count"`
	Options      []string `json:"options"`
	Visible      bool     `json:"visible"`
}

// NewElements returns an Elements value whose lists are empty but non-nil.
func NewElements() Elements {
	return Elements{
		Inputs:      make([]InputRecord, 0),
		Buttons:     make([]ButtonRecord, 0),
		Links:       make([]LinkRecord, 0),
		Forms:       make([]FormRecord, 0),
		Headings:    make([]HeadingRecord, 0),
		Images:      make([]ImageRecord, 0),
		Interactive: make([]InteractiveRecord, 0),
	}
}

// Count returns the number of records in a category.
func (e *Elements) Count(c Category) int {
	switch c {
	case Inputs:
		return len(e.Inputs)
	case Buttons:
		return len(e.Buttons)
	case Links:
		return len(e.Links)
	case Forms:
		return len(e.Forms)
	case Headings:
		return len(e.Headings)
	case Images:
		return len(e.Images)
	case Interactive:
		return len(e.Interactive)
	default:
		return 0
	}
}

// Clone returns a deep copy.
func (e Elements) Clone() Elements {
	out := Elements{
		Inputs:      append(make([]InputRecord, 0, len(e.Inputs)), e.Inputs...),
		Buttons:     append(make([]ButtonRecord, 0, len(e.Buttons)), e.Buttons...),
		Links:       append(make([]LinkRecord, 0, len(e.Links)), e.Links...),
		Forms:       append(make([]FormRecord, 0, len(e.Forms)), e.Forms...),
		Headings:    append(make([]HeadingRecord, 0, len(e.Headings)), e.Headings...),
		Images:      append(make([]ImageRecord, 0, len(e.Images)), e.Images...),
		Interactive: make([]InteractiveRecord, 0, len(e.Interactive)),
	}
	for _, r := range e.Interactive {
		r.Options = append(make([]string, 0, len(r.Options)), r.Options...)
		out.Interactive = append(out.Interactive, r)
	}
	return out
}

// ComputeStatistics counts the records of every category.
func (e *Elements) ComputeStatistics() *Statistics {
	s := &Statistics{
		Inputs:      len(e.Inputs),
		Buttons:     len(e.Buttons),
		Links:       len(e.Links),
		Forms:       len(e.Forms),
		Headings:    len(e.Headings),
		Images:      len(e.Images),
		Interactive: len(e.Interactive),
	}
	s.Total = s.Inputs + s.Buttons + s.Links + s.Forms + s.Headings + s.Images + s.Interactive
	return s
}

// Clone returns a deep copy of the result.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Elements = r.Elements.Clone()
	if r.Statistics != nil {
		stats := *r.Statistics
		out.Statistics = &stats
	}
	return &out
}
