package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseDefinition loads a pipeline definition file from disk, validates it,
// and returns the resulting model.
func ParseDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, conveyorerrors.NewParseError(path, 0, err)
	}

	def, err := ParseDefinitionBytes(data)
	if err != nil {
		if parseErr, ok := err.(*conveyorerrors.ParseError); ok {
			parseErr.Path = path
		}
		return nil, err
	}

	return def, nil
}

// ParseDefinitionBytes decodes and validates a pipeline definition document.
func ParseDefinitionBytes(data []byte) (*Definition, error) {
	def := Definition{Active: true}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, conveyorerrors.NewParseError("", extractLine(err), err)
	}

	if err := ValidateDefinition(&def); err != nil {
		return nil, err
	}

	return &def, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
