// Package rules parses XML behaviour rules and renders them as a system
// prompt addition.
package rules

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
)

// Type classifies a rule.
type Type string

const (
	TypeBehavior    Type = "behavior"
	TypeConstraint  Type = "constraint"
	TypeFormat      Type = "format"
	TypeInstruction Type = "instruction"
)

// Types lists every rule type in prompt order.
var Types = []Type{TypeBehavior, TypeConstraint, TypeFormat, TypeInstruction}

var headings = map[Type]string{
	TypeBehavior:    "Behavioral Guidelines:",
	TypeConstraint:  "Constraints:",
	TypeFormat:      "Formatting Requirements:",
	TypeInstruction: "Special Instructions:",
}

// Rule is a single named rule. Higher priorities are applied first.
type Rule struct {
	Name     string
	Type     Type
	Content  string
	Enabled  bool
	Priority int
}

// DefaultTemplate is written by `skiff rules template`.
const DefaultTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rules>
    <rule type="behavior" priority="10">
        <name>Professional Tone</name>
        <content>Maintain a professional and helpful tone in all responses</content>
    </rule>
    <rule type="constraint" priority="5">
        <name>Code Quality</name>
        <content>Always follow best practices and write clean, maintainable code</content>
    </rule>
    <rule type="format">
        <name>Response Format</name>
        <content>Use markdown formatting for code blocks and emphasis</content>
    </rule>
</rules>
`

type xmlDoc struct {
	XMLName xml.Name
	Rules   []xmlRule `xml:"rule"`
}

type xmlRule struct {
	Type     string  `xml:"type,attr"`
	Priority string  `xml:"priority,attr,omitempty"`
	Enabled  string  `xml:"enabled,attr,omitempty"`
	Name     *string `xml:"name"`
	Content  *string `xml:"content"`
}

// Parse decodes an XML rules document. Rules are returned sorted by priority,
// highest first, keeping document order for equal priorities.
func Parse(doc string) ([]Rule, error) {
	var d xmlDoc
	if err := xml.Unmarshal([]byte(doc), &d); err != nil {
		return nil, fmt.Errorf("parse rules xml: %w", err)
	}
	if d.XMLName.Local != "rules" {
		return nil, errors.New("root element must be <rules>")
	}

	rules := make([]Rule, 0, len(d.Rules))
	for i, xr := range d.Rules {
		r, err := xr.rule()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		rules = append(rules, r)
	}
	slices.SortStableFunc(rules, func(a, b Rule) int { return b.Priority - a.Priority })
	return rules, nil
}

func (xr xmlRule) rule() (Rule, error) {
	if xr.Type == "" {
		return Rule{}, errors.New("missing 'type' attribute")
	}
	t := Type(xr.Type)
	if !slices.Contains(Types, t) {
		names := make([]string, len(Types))
		for i, t := range Types {
			names[i] = string(t)
		}
		return Rule{}, fmt.Errorf("invalid rule type %q (valid types: %s)", xr.Type, strings.Join(names, ", "))
	}

	priority := 0
	if xr.Priority != "" {
		p, err := strconv.Atoi(strings.TrimSpace(xr.Priority))
		if err != nil {
			return Rule{}, fmt.Errorf("invalid priority %q", xr.Priority)
		}
		priority = p
	}

	if xr.Name == nil {
		return Rule{}, errors.New("missing <name> element")
	}
	if xr.Content == nil {
		return Rule{}, errors.New("missing <content> element")
	}
	name := strings.TrimSpace(*xr.Name)
	content := strings.TrimSpace(*xr.Content)
	if name == "" {
		return Rule{}, errors.New("rule name cannot be empty")
	}
	if content == "" {
		return Rule{}, errors.New("rule content cannot be empty")
	}

	return Rule{
		Name:     name,
		Type:     t,
		Content:  content,
		Enabled:  xr.Enabled == "" || strings.EqualFold(xr.Enabled, "true"),
		Priority: priority,
	}, nil
}

// Load reads and parses a rules file.
func Load(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return Parse(string(data))
}

// Marshal encodes rules as an indented XML document.
func Marshal(rules []Rule) (string, error) {
	d := xmlDoc{XMLName: xml.Name{Local: "rules"}}
	for _, r := range rules {
		name, content := r.Name, r.Content
		xr := xmlRule{
			Type:     string(r.Type),
			Priority: strconv.Itoa(r.Priority),
			Name:     &name,
			Content:  &content,
		}
		if !r.Enabled {
			xr.Enabled = "false"
		}
		d.Rules = append(d.Rules, xr)
	}
	out, err := xml.MarshalIndent(d, "", "    ")
	if err != nil {
		return "", fmt.Errorf("encode rules: %w", err)
	}
	return string(out), nil
}

// ToPrompt renders the enabled rules grouped by type inside a <rules> block.
// It returns "" when no rule is enabled.
func ToPrompt(rules []Rule) string {
	byType := make(map[Type][]Rule)
	for _, r := range rules {
		if r.Enabled {
			byType[r.Type] = append(byType[r.Type], r)
		}
	}
	if len(byType) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("<rules>\n")
	for _, t := range Types {
		group := byType[t]
		if len(group) == 0 {
			continue
		}
		b.WriteString(headings[t] + "\n")
		for _, r := range group {
			fmt.Fprintf(&b, "- %s: %s\n", r.Name, r.Content)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()) + "\n</rules>"
}

// Augment appends the prompt form of the rules document to base. An empty
// document leaves base unchanged.
func Augment(base, doc string) (string, error) {
	if strings.TrimSpace(doc) == "" {
		return base, nil
	}
	parsed, err := Parse(doc)
	if err != nil {
		return base, err
	}
	prompt := ToPrompt(parsed)
	switch {
	case prompt == "":
		return base, nil
	case strings.TrimSpace(base) == "":
		return prompt, nil
	}
	return strings.TrimRight(base, "\n") + "\n\n" + prompt, nil
}
