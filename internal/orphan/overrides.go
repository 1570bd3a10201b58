package orphan

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Overrides is a closed list of email -> company name pairs that takes
// precedence over automatic matching, for known-ambiguous contacts.
type Overrides map[string]string

// LoadOverrides reads the override table from a yaml file of the form:
//
//	overrides:
//	  jane@gmail.com: Jane Consulting
//
// A missing file is not an error; the table is simply empty.
func LoadOverrides(path string) (Overrides, error) {
	if path == "" {
		return Overrides{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Overrides{}, nil
		}
		return nil, eris.Wrapf(err, "orphan: read overrides %s", path)
	}

	var doc struct {
		Overrides map[string]string `yaml:"overrides"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrapf(err, "orphan: parse overrides %s", path)
	}

	out := make(Overrides, len(doc.Overrides))
	for email, name := range doc.Overrides {
		out[strings.ToLower(strings.TrimSpace(email))] = strings.TrimSpace(name)
	}
	return out, nil
}

// Target returns the override company name for an email, if one exists.
func (o Overrides) Target(email string) (string, bool) {
	name, ok := o[strings.ToLower(strings.TrimSpace(email))]
	return name, ok
}
