package scraper

// Snapshot is the structured result of scraping a page: every
// interactive/structural element grouped by kind, each with the raw
// attributes that kind supports and, when synthesis succeeded, a unique
// selector. Serializes to JSON for downstream instruction authoring.
type Snapshot struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Textareas []Textarea `json:"textareas"`
	Inputs    []Input    `json:"inputs"`
	Buttons   []Button   `json:"buttons"`
	Labels    []Label    `json:"labels"`
	Divs      []Div      `json:"divs"`
	Selects   []Select   `json:"selects"`
	Links     []Link     `json:"links"`
	Forms     []Form     `json:"forms"`
}

// Input is a text-entry control.
type Input struct {
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
	TestID      string `json:"data-testid,omitempty"`
	Value       string `json:"value,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Disabled    bool   `json:"disabled,omitempty"`
	Selector    string `json:"selector,omitempty"`
}

// Textarea is a multi-line text control.
type Textarea struct {
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
	TestID      string `json:"data-testid,omitempty"`
	Value       string `json:"value,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Selector    string `json:"selector,omitempty"`
}

// Button covers button elements, including submit inputs rendered as
// buttons.
type Button struct {
	Type     string `json:"type,omitempty"`
	Name     string `json:"name,omitempty"`
	ID       string `json:"id,omitempty"`
	Text     string `json:"text,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
	Selector string `json:"selector,omitempty"`
}

// Label is a form label.
type Label struct {
	ID       string `json:"id,omitempty"`
	For      string `json:"for,omitempty"`
	Text     string `json:"text,omitempty"`
	Selector string `json:"selector,omitempty"`
}

// Div is a structural container carrying a developer-assigned identity.
type Div struct {
	ID       string `json:"id,omitempty"`
	TestID   string `json:"data-testid,omitempty"`
	Role     string `json:"role,omitempty"`
	Selector string `json:"selector,omitempty"`
}

// Option is one choice within a select.
type Option struct {
	Value    string `json:"value,omitempty"`
	Text     string `json:"text,omitempty"`
	Selected bool   `json:"selected,omitempty"`
}

// Select is a dropdown with its options.
type Select struct {
	Name    string   `json:"name,omitempty"`
	ID      string   `json:"id,omitempty"`
	Options []Option `json:"options,omitempty"`
}

// Link is an anchor with a real destination.
type Link struct {
	Href  string `json:"href,omitempty"`
	Text  string `json:"text,omitempty"`
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

// Form groups the controls nested under one form element.
type Form struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name,omitempty"`
	Action  string   `json:"action,omitempty"`
	Method  string   `json:"method,omitempty"`
	Inputs  []Input  `json:"inputs,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
}
