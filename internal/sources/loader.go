// Package sources loads source configurations and tracks their
// runtime health state.
package sources

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/jonesrussell/newsflow/internal/config/types"
)

// ErrNoSources indicates the configuration file defined no sources.
var ErrNoSources = errors.New("no sources found in configuration")

// sourcesFile is the top-level shape of a sources YAML file.
type sourcesFile struct {
	Sources []map[string]any `yaml:"sources"`
}

// LoadFile reads and decodes source definitions from a YAML file.
// Sources that fail validation are returned alongside the valid ones
// as ConfigurationErrors so one bad source never rejects the file.
func LoadFile(path string) ([]types.Source, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read sources file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes source definitions from raw YAML.
func Parse(data []byte) ([]types.Source, []error, error) {
	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, nil, fmt.Errorf("unmarshal sources: %w", err)
	}

	if len(file.Sources) == 0 {
		return nil, nil, ErrNoSources
	}

	sources := make([]types.Source, 0, len(file.Sources))
	var invalid []error

	for i, raw := range file.Sources {
		var src types.Source
		if decodeErr := decodeSource(raw, &src); decodeErr != nil {
			invalid = append(invalid, fmt.Errorf("source %d: %w", i, decodeErr))
			continue
		}

		// Sources may omit article selectors entirely; common article
		// markup is covered by the defaults.
		if a := src.Selectors.Article; a.Container == "" && a.Title == "" && a.Body == "" {
			src.Selectors.Article = types.DefaultArticleSelectors()
		}

		if validateErr := src.Validate(); validateErr != nil {
			invalid = append(invalid, fmt.Errorf("source %q: %w", src.ID, validateErr))
			continue
		}

		sources = append(sources, src)
	}

	return sources, invalid, nil
}

// decodeSource maps a raw YAML document onto a Source, converting
// duration strings like "2s" along the way.
func decodeSource(raw map[string]any, out *types.Source) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     out,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}

	if decodeErr := decoder.Decode(raw); decodeErr != nil {
		return fmt.Errorf("decode source: %w", decodeErr)
	}

	return nil
}
