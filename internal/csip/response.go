package csip

import (
	"bytes"
	"encoding/json"
	"net/url"
	"path"
	"strings"
)

// Positions of result entries in the service's response, used only when
// an entry cannot be found by name.
const (
	posAux       = 15
	posParamFile = 16
	posSummary   = 18
)

// Response is the decoded body of a model run.
type Response struct {
	Metainfo Metainfo      `json:"metainfo"`
	Result   []ResultEntry `json:"result"`
}

type Metainfo struct {
	Error  json.RawMessage `json:"error,omitempty"`
	Status string          `json:"status,omitempty"`
	SUID   string          `json:"suid,omitempty"`
}

// ResultEntry is a named value. File results carry their download URL as the value.
type ResultEntry struct {
	Name        string          `json:"name"`
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description,omitempty"`
}

// Text renders the value: strings are unquoted, anything else is returned as written.
func (e ResultEntry) Text() string {
	raw := bytes.TrimSpace(e.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// ServiceError reports whether metainfo carries an error field, and its message.
func (r Response) ServiceError() (string, bool) {
	if r.Metainfo.Error == nil {
		return "", false
	}
	msg := ResultEntry{Value: r.Metainfo.Error}.Text()
	if strings.TrimSpace(msg) == "" {
		msg = "the service reported an error without a message"
	}
	return msg, true
}

// Lookup finds an entry by name, case-insensitively.
func (r Response) Lookup(name string) (ResultEntry, bool) {
	for _, e := range r.Result {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return ResultEntry{}, false
}

// bySuffix returns the first entry whose name ends in suffix, falling back to
// the entry at pos. The bool reports whether the fallback was used.
func (r Response) bySuffix(suffix string, pos int) (ResultEntry, bool, bool) {
	for _, e := range r.Result {
		if strings.HasSuffix(strings.ToLower(e.Name), suffix) {
			return e, true, false
		}
	}
	if pos < len(r.Result) {
		return r.Result[pos], true, true
	}
	return ResultEntry{}, false, false
}

// ParameterFile is the echoed parameter file reference.
func (r Response) ParameterFile() (ResultEntry, bool, bool) {
	return r.bySuffix(".par", posParamFile)
}

// SummaryFile is the summary report reference.
func (r Response) SummaryFile() (ResultEntry, bool, bool) {
	return r.bySuffix(".sum", posSummary)
}

// Aux returns the named auxiliary scalar, falling back to its usual position.
func (r Response) Aux(name string) (string, bool) {
	if e, ok := r.Lookup(name); ok {
		return e.Text(), false
	}
	if posAux < len(r.Result) {
		return r.Result[posAux].Text(), true
	}
	return "", false
}

// fileName picks a local name for an artifact, preferring the entry name
// over the last element of the URL path.
func fileName(e ResultEntry, rawURL string) string {
	candidates := []string{e.Name}
	if u, err := url.Parse(rawURL); err == nil {
		candidates = append(candidates, u.Path)
	}
	for _, c := range candidates {
		name := path.Base(strings.ReplaceAll(c, "\\", "/"))
		if name != "" && name != "." && name != "/" && name != ".." {
			return name
		}
	}
	return ""
}
