package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TemporalLengthKey is the config path forced to the requested frame count
const TemporalLengthKey = "model.params.unet_config.params.temporal_length"

// ModelConfig is a declarative model description loaded from YAML.
// The raw document is kept so collaborators can read architecture keys this package does not know.
type ModelConfig struct {
	Target         string
	Channels       int
	TemporalLength int
	ImageSize      [2]int

	doc *yaml.Node
}

type yamlModelConfig struct {
	Model struct {
		Target string `yaml:"target"`
		Params struct {
			Channels   int `yaml:"channels"`
			ImageSize  any `yaml:"image_size"`
			UnetConfig struct {
				Params struct {
					TemporalLength int `yaml:"temporal_length"`
				} `yaml:"params"`
			} `yaml:"unet_config"`
		} `yaml:"params"`
	} `yaml:"model"`
}

// LoadModelConfig reads the YAML at path and overrides the temporal length with frames
func LoadModelConfig(path string, frames int) (*ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model config '%s': %w", path, err)
	}
	return ParseModelConfig(data, frames)
}

// ParseModelConfig decodes a YAML model config and overrides the temporal length with frames
func ParseModelConfig(data []byte, frames int) (*ModelConfig, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse model config: %w", err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("model config must be a mapping")
	}
	if frames > 0 {
		if err := setPath(doc.Content[0], strings.Split(TemporalLengthKey, "."), strconv.Itoa(frames)); err != nil {
			return nil, err
		}
	}

	var typed yamlModelConfig
	if err := doc.Decode(&typed); err != nil {
		return nil, fmt.Errorf("failed to decode model config: %w", err)
	}

	cfg := &ModelConfig{
		Target:         typed.Model.Target,
		Channels:       typed.Model.Params.Channels,
		TemporalLength: typed.Model.Params.UnetConfig.Params.TemporalLength,
		doc:            &doc,
	}
	cfg.ImageSize = imageSize(typed.Model.Params.ImageSize)
	return cfg, nil
}

// Lookup returns the scalar at a dotted path
func (c *ModelConfig) Lookup(path string) (string, bool) {
	if c.doc == nil || len(c.doc.Content) == 0 {
		return "", false
	}
	node := c.doc.Content[0]
	for _, key := range strings.Split(path, ".") {
		node = child(node, key)
		if node == nil {
			return "", false
		}
	}
	if node.Kind != yaml.ScalarNode {
		return "", false
	}
	return node.Value, true
}

// Marshal encodes the (overridden) document back to YAML
func (c *ModelConfig) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c.doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func child(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

// setPath writes an integer scalar at keys, creating intermediate mappings
func setPath(node *yaml.Node, keys []string, value string) error {
	for i, key := range keys {
		next := child(node, key)
		last := i == len(keys)-1
		if next == nil {
			next = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			if last {
				next = &yaml.Node{Kind: yaml.ScalarNode}
			}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, next)
		}
		if last {
			next.Kind = yaml.ScalarNode
			next.Tag = "!!int"
			next.Value = value
			next.Content = nil
			return nil
		}
		if next.Kind != yaml.MappingNode {
			return fmt.Errorf("model config key '%s' is not a mapping", strings.Join(keys[:i+1], "."))
		}
		node = next
	}
	return nil
}

func imageSize(v any) [2]int {
	switch s := v.(type) {
	case int:
		return [2]int{s, s}
	case []any:
		if len(s) == 2 {
			h, _ := s[0].(int)
			w, _ := s[1].(int)
			return [2]int{h, w}
		}
	}
	return [2]int{}
}
