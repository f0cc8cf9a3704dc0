package processor

import (
	"regexp"
	"strings"
)

// Leaf elements only; nested containers are flattened into their leaves.
// Open and close names are compared after matching since RE2 has no
// backreferences.
var (
	leafTagPattern  = regexp.MustCompile(`<([A-Za-z_][\w.-]*)(?:\s[^>]*)?>([^<]*)</([A-Za-z_][\w.-]*)\s*>`)
	errorTagPattern = regexp.MustCompile(`(?i)<error[\s>]`)
	bareIDPattern   = regexp.MustCompile(`^[0-9]+$`)
)

// Tag keeps the leaf text as received in Raw; Value is the trimmed form.
type Tag struct {
	Name  string
	Value string
	Raw   string
}

// Document is a parsed processor response or notification. Tag names are
// matched case-insensitively and values are kept in document order.
type Document struct {
	Tags   []Tag
	BareID string
	hasErr bool
}

const (
	StateApproved       = "APPROVED"
	OrderStateCompleted = "COMPLETED"
)

func ParseDocument(body []byte) *Document {
	raw := strings.TrimSpace(string(body))
	doc := &Document{}

	if bareIDPattern.MatchString(raw) {
		doc.BareID = raw
		return doc
	}

	for _, m := range leafTagPattern.FindAllStringSubmatch(raw, -1) {
		if !strings.EqualFold(m[1], m[3]) {
			continue
		}
		doc.Tags = append(doc.Tags, Tag{Name: m[1], Value: strings.TrimSpace(m[2]), Raw: m[2]})
	}
	doc.hasErr = errorTagPattern.MatchString(raw)
	return doc
}

// Get returns the first value for name.
func (d *Document) Get(name string) (string, bool) {
	for _, t := range d.Tags {
		if strings.EqualFold(t.Name, name) {
			return t.Value, true
		}
	}
	return "", false
}

func (d *Document) Value(name string) string {
	v, _ := d.Get(name)
	return v
}

// First returns the value of the first listed tag that is present and non-empty.
func (d *Document) First(names ...string) string {
	for _, n := range names {
		if v := d.Value(n); v != "" {
			return v
		}
	}
	return ""
}

// ValuesExcept lists raw tag values in document order, skipping the named
// tag. Signatures cover the text exactly as sent.
func (d *Document) ValuesExcept(name string) []string {
	values := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		if strings.EqualFold(t.Name, name) {
			continue
		}
		values = append(values, t.Raw)
	}
	return values
}

// ID is the processor object id: a bare numeric body or the first id tag.
func (d *Document) ID() string {
	if d.BareID != "" {
		return d.BareID
	}
	return d.Value("id")
}

func (d *Document) State() string {
	return strings.ToUpper(d.Value("state"))
}

func (d *Document) OrderState() string {
	return strings.ToUpper(d.Value("order_state"))
}

func (d *Document) Approved() bool {
	return d.State() == StateApproved || d.OrderState() == OrderStateCompleted
}

// Rejection returns the processor error carried by the document, if any:
// either an <error> wrapper or a top-level non-zero code on a document that
// carries no id or state.
func (d *Document) Rejection() *Rejection {
	if d.BareID != "" {
		return nil
	}
	code := d.Value("code")
	if !d.hasErr && !d.bareRejection(code) {
		return nil
	}
	return &Rejection{
		Code:        code,
		Description: d.First("description", "message"),
	}
}

func (d *Document) bareRejection(code string) bool {
	if strings.Trim(code, "0") == "" {
		return false
	}
	return d.ID() == "" && d.State() == "" && d.OrderState() == ""
}
