package settings

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSettings is the YAML layout of an operator settings file. Every field
// is optional; only present fields are applied.
type fileSettings struct {
	Credentials    map[Provider]string `yaml:"credentials"`
	AudioModel     *string             `yaml:"audio_model"`
	QuestionModel  *string             `yaml:"question_model"`
	ImageModel     *string             `yaml:"image_model"`
	MinDisplayTime *int                `yaml:"min_display_time"`
	SessionLabel   *string             `yaml:"session_label"`
	Debug          *bool               `yaml:"debug"`
}

// LoadFile reads the YAML settings file at path.
func LoadFile(path string) (Partial, error) {
	f, err := os.Open(path)
	if err != nil {
		return Partial{}, fmt.Errorf("settings: open %q: %w", path, err)
	}
	defer f.Close()

	p, err := DecodePartial(f)
	if err != nil {
		return Partial{}, fmt.Errorf("settings: parse %q: %w", path, err)
	}
	return p, nil
}

// DecodePartial decodes YAML settings from r. Unknown keys are rejected. An
// empty document yields an empty Partial.
func DecodePartial(r io.Reader) (Partial, error) {
	var fs fileSettings
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fs); err != nil && !errors.Is(err, io.EOF) {
		return Partial{}, fmt.Errorf("decode yaml: %w", err)
	}
	return Partial{
		Credentials:           fs.Credentials,
		AudioModel:            fs.AudioModel,
		QuestionModel:         fs.QuestionModel,
		ImageModel:            fs.ImageModel,
		MinDisplayTimeSeconds: fs.MinDisplayTime,
		SessionLabel:          fs.SessionLabel,
		DebugEnabled:          fs.Debug,
	}, nil
}
