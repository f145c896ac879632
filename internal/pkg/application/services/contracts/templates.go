package contracts

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/trusts-eu/catalog-connector/internal/pkg/domain"
)

// TemplateField declares one input field of a policy template. The form
// key for a field is "<type>_<name>".
type TemplateField struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
}

// PolicyTemplate declares one usage control policy type together with the
// connector rule document it renders to. Rule placeholders: ${title},
// ${start}, ${end} and ${<field name>} for every declared field.
type PolicyTemplate struct {
	Type   string          `yaml:"type"`
	Fields []TemplateField `yaml:"fields"`
	Rule   string          `yaml:"rule"`
}

// TemplateSchema is the external usage control policy configuration.
type TemplateSchema struct {
	PolicyTemplates []PolicyTemplate `yaml:"policy_templates"`
}

// LoadTemplates reads a policy template schema from a YAML document.
func LoadTemplates(input io.Reader) (*TemplateSchema, error) {
	body, err := io.ReadAll(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy templates: %w", err)
	}

	schema := &TemplateSchema{}
	if err := yaml.Unmarshal(body, schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy templates: %w", err)
	}

	if len(schema.PolicyTemplates) == 0 {
		return nil, fmt.Errorf("policy template schema declares no templates")
	}

	return schema, nil
}

// Template returns the template for a policy type.
func (s *TemplateSchema) Template(policyType string) (*PolicyTemplate, bool) {
	for i := range s.PolicyTemplates {
		if s.PolicyTemplates[i].Type == policyType {
			return &s.PolicyTemplates[i], true
		}
	}
	return nil, false
}

// RenderRule substitutes the policy's field values and the contract's
// metadata into the template's rule document.
func (t *PolicyTemplate) RenderRule(policy domain.Policy, contract *domain.ContractRequest) (json.RawMessage, error) {
	rendered := os.Expand(t.Rule, func(key string) string {
		switch key {
		case "title":
			return contract.Title
		case "start":
			return formatTime(contract.Start)
		case "end":
			return formatTime(contract.End)
		}
		return policy.Fields[key]
	})

	if !json.Valid([]byte(rendered)) {
		return nil, fmt.Errorf("rendered rule for policy %s is not valid json", policy.Type)
	}

	return json.RawMessage(rendered), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
