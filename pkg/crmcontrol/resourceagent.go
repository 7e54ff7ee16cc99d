package crmcontrol

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	xmltree "github.com/beevik/etree"
)

// Resource agent classes
const (
	ClassOCF     = "ocf"
	ClassLSB     = "lsb"
	ClassSystemd = "systemd"
	ClassService = "service"
	ClassStonith = "stonith"
)

// ResourceAgentID names a resource agent as "class:provider:type", or
// "class:type" for classes without providers.
type ResourceAgentID struct {
	Class    string
	Provider string
	Type     string
}

func (r ResourceAgentID) String() string {
	if r.Provider == "" {
		return r.Class + ":" + r.Type
	}
	return r.Class + ":" + r.Provider + ":" + r.Type
}

func (r *ResourceAgentID) UnmarshalText(text []byte) error {
	parts := strings.Split(string(text), ":")
	switch len(parts) {
	case 2:
		r.Class, r.Provider, r.Type = parts[0], "", parts[1]
	case 3:
		r.Class, r.Provider, r.Type = parts[0], parts[1], parts[2]
	default:
		return fmt.Errorf("expected class:provider:type, got %q", string(text))
	}
	if r.Class == "" || r.Type == "" {
		return errors.New("expected non-empty class and type")
	}
	if r.Class == ClassOCF && r.Provider == "" {
		return errors.New("ocf resource agents need a provider")
	}
	return nil
}

func (r ResourceAgentID) MarshalText() (text []byte, err error) {
	return []byte(r.String()), nil
}

// AgentParameter is a parameter from resource agent meta-data.
type AgentParameter struct {
	Name      string   `json:"name"`
	ShortDesc string   `json:"shortdesc,omitempty"`
	LongDesc  string   `json:"longdesc,omitempty"`
	Type      string   `json:"type"`
	Default   string   `json:"default,omitempty"`
	Required  bool     `json:"required,omitempty"`
	Unique    bool     `json:"unique,omitempty"`
	Choices   []string `json:"choices,omitempty"`
}

// AgentAction is a default operation from resource agent meta-data.
type AgentAction struct {
	Name     string `json:"name"`
	Timeout  string `json:"timeout,omitempty"`
	Interval string `json:"interval,omitempty"`
	Depth    string `json:"depth,omitempty"`
	Role     string `json:"role,omitempty"`
}

// ResourceAgent is the parsed meta-data of a resource agent.
type ResourceAgent struct {
	ID         ResourceAgentID  `json:"id"`
	Version    string           `json:"version,omitempty"`
	ShortDesc  string           `json:"shortdesc,omitempty"`
	LongDesc   string           `json:"longdesc,omitempty"`
	Parameters []AgentParameter `json:"parameters"`
	Actions    []AgentAction    `json:"actions"`
}

// Parameter returns the named parameter.
func (ra *ResourceAgent) Parameter(name string) (AgentParameter, bool) {
	for _, p := range ra.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return AgentParameter{}, false
}

// RequiredParameters returns the names of all required parameters, sorted.
func (ra *ResourceAgent) RequiredParameters() []string {
	var names []string
	for _, p := range ra.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	sort.Strings(names)
	return names
}

// IsPromotable reports whether the agent advertises promote and demote.
func (ra *ResourceAgent) IsPromotable() bool {
	var promote, demote bool
	for _, a := range ra.Actions {
		promote = promote || a.Name == cibAttrValuePromote
		demote = demote || a.Name == cibAttrValueDemote
	}
	return promote && demote
}

func descText(e *xmltree.Element, tag string) string {
	if d := e.SelectElement(tag); d != nil {
		return strings.TrimSpace(d.Text())
	}
	return ""
}

// ParseResourceAgent parses the output of "crm_resource --show-metadata".
func ParseResourceAgent(id ResourceAgentID, metadata string) (*ResourceAgent, error) {
	doc := xmltree.NewDocument()
	if err := doc.ReadFromString(metadata); err != nil {
		return nil, fmt.Errorf("failed to parse meta-data of %s: %w", id, err)
	}
	root := doc.SelectElement("resource-agent")
	if root == nil {
		return nil, fmt.Errorf("meta-data of %s has no <resource-agent>", id)
	}

	ra := &ResourceAgent{
		ID:        id,
		Version:   root.SelectAttrValue("version", descText(root, "version")),
		ShortDesc: descText(root, "shortdesc"),
		LongDesc:  descText(root, "longdesc"),
	}
	if params := root.SelectElement("parameters"); params != nil {
		for _, p := range params.SelectElements("parameter") {
			param := AgentParameter{
				Name:      p.SelectAttrValue("name", ""),
				ShortDesc: descText(p, "shortdesc"),
				LongDesc:  descText(p, "longdesc"),
				Type:      "string",
				Required:  p.SelectAttrValue("required", "0") == "1",
				Unique:    p.SelectAttrValue("unique", "0") == "1",
			}
			if param.Name == "" {
				continue
			}
			if c := p.SelectElement("content"); c != nil {
				param.Type = c.SelectAttrValue("type", param.Type)
				param.Default = c.SelectAttrValue("default", "")
				for _, o := range c.SelectElements("option") {
					param.Choices = append(param.Choices, o.SelectAttrValue("value", ""))
				}
			}
			ra.Parameters = append(ra.Parameters, param)
		}
	}
	if actions := root.SelectElement("actions"); actions != nil {
		for _, a := range actions.SelectElements("action") {
			ra.Actions = append(ra.Actions, AgentAction{
				Name:     a.SelectAttrValue("name", ""),
				Timeout:  a.SelectAttrValue("timeout", ""),
				Interval: a.SelectAttrValue("interval", ""),
				Depth:    a.SelectAttrValue("depth", ""),
				Role:     a.SelectAttrValue("role", ""),
			})
		}
	}
	return ra, nil
}
