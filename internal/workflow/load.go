package workflow

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type fileConfig struct {
	Workflows []Definition `mapstructure:"workflows"`
}

// Load resolves the named workflow. Definitions from path (YAML, TOML or JSON,
// by extension) are layered over the built-in ones; an empty path uses the
// built-ins only.
func Load(path, name string) (Definition, error) {
	definitions := Builtin()

	if strings.TrimSpace(path) != "" {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Definition{}, fmt.Errorf("read workflow file: %w", err)
		}
		var file fileConfig
		if err := v.Unmarshal(&file); err != nil {
			return Definition{}, fmt.Errorf("decode workflow file: %w", err)
		}
		for _, def := range file.Workflows {
			for i := range def.Steps {
				def.Steps[i].Role = Normalize(string(def.Steps[i].Role))
			}
			definitions[def.Name] = def
		}
	}

	def, ok := definitions[strings.TrimSpace(name)]
	if !ok {
		return Definition{}, fmt.Errorf("unknown workflow %q", name)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, fmt.Errorf("invalid workflow: %w", err)
	}
	return def, nil
}
