// Package settings owns the session configuration: its defaults, the
// durable store it is persisted to, and the synchronizer that pushes it to
// the backend.
package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"voxcanvas/internal/protocol"
)

// Provider names a credential holder.
type Provider string

const (
	ProviderGemini     Provider = "gemini"
	ProviderOpenRouter Provider = "openrouter"
	ProviderOpenAI     Provider = "openai"
)

// Providers lists every provider whose credential is persisted.
var Providers = []Provider{ProviderGemini, ProviderOpenRouter, ProviderOpenAI}

const (
	DefaultAudioModel     = "openai_realtime_4o"
	DefaultQuestionModel  = "gemini-2.5-flash"
	DefaultImageModel     = "google/gemini-2.5-flash-image"
	DefaultMinDisplayTime = 6

	minDisplayTimeFloor   = 1
	minDisplayTimeCeiling = 300
)

// Known model catalogs. Unknown IDs are passed through with a warning.
var (
	AudioModels = []string{
		"local_whisper",
		"gemini_flash_audio",
		"openai_realtime_4o",
		"openai_realtime_mini",
		"openai_rest_whisper",
	}
	QuestionModels = []string{
		"gemini-2.5-flash",
		"google/gemini-2.5-flash-lite-preview-09-2025",
		"google/gemini-2.5-flash-lite",
		"google/gemini-2.5-flash",
		"openai/gpt-4o-mini",
		"meta-llama/llama-3.2-3b-instruct",
	}
	ImageModels = []string{
		"google/gemini-2.5-flash-image",
		"google/gemini-2.5-flash-image-preview",
		"google/gemini-3-pro-image-preview",
		"openai/gpt-5-image-mini",
		"stabilityai/stable-diffusion-3-medium",
	}
)

// Config is the full session configuration. The backend holds no copy of
// it; every connect and every save resends all of it.
type Config struct {
	Credentials           map[Provider]string
	AudioModel            string
	QuestionModel         string
	ImageModel            string
	MinDisplayTimeSeconds int
	SessionLabel          string
	DebugEnabled          bool
}

// Default returns the configuration used when nothing has been persisted.
func Default() Config {
	return Config{
		Credentials:           map[Provider]string{},
		AudioModel:            DefaultAudioModel,
		QuestionModel:         DefaultQuestionModel,
		ImageModel:            DefaultImageModel,
		MinDisplayTimeSeconds: DefaultMinDisplayTime,
	}
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	c.Credentials = maps.Clone(c.Credentials)
	if c.Credentials == nil {
		c.Credentials = map[Provider]string{}
	}
	return c
}

// Message converts c to its wire form.
func (c Config) Message() protocol.ConfigMessage {
	return protocol.ConfigMessage{
		GeminiAPIKey:     c.Credentials[ProviderGemini],
		OpenRouterAPIKey: c.Credentials[ProviderOpenRouter],
		OpenAIAPIKey:     c.Credentials[ProviderOpenAI],
		AudioModel:       c.AudioModel,
		QuestionModel:    c.QuestionModel,
		ImageModel:       c.ImageModel,
		MinDisplayTime:   c.MinDisplayTimeSeconds,
		SessionName:      c.SessionLabel,
		Debug:            c.DebugEnabled,
	}
}

// Partial is a set of field edits. Nil fields are left untouched.
type Partial struct {
	Credentials           map[Provider]string
	AudioModel            *string
	QuestionModel         *string
	ImageModel            *string
	MinDisplayTimeSeconds *int
	SessionLabel          *string
	DebugEnabled          *bool
}

// Merge applies p on top of c and returns the result. c is not modified.
func (c Config) Merge(p Partial) Config {
	out := c.Clone()
	for k, v := range p.Credentials {
		out.Credentials[k] = v
	}
	if p.AudioModel != nil {
		out.AudioModel = *p.AudioModel
	}
	if p.QuestionModel != nil {
		out.QuestionModel = *p.QuestionModel
	}
	if p.ImageModel != nil {
		out.ImageModel = *p.ImageModel
	}
	if p.MinDisplayTimeSeconds != nil {
		out.MinDisplayTimeSeconds = *p.MinDisplayTimeSeconds
	}
	if p.SessionLabel != nil {
		out.SessionLabel = *p.SessionLabel
	}
	if p.DebugEnabled != nil {
		out.DebugEnabled = *p.DebugEnabled
	}
	return out
}

// Validate checks that c can be sent. It returns a joined error listing all
// failures; unknown model IDs only log a warning.
func Validate(c Config) error {
	var errs []error

	if c.MinDisplayTimeSeconds < minDisplayTimeFloor || c.MinDisplayTimeSeconds > minDisplayTimeCeiling {
		errs = append(errs, fmt.Errorf("min_display_time %d is out of range [%d, %d]",
			c.MinDisplayTimeSeconds, minDisplayTimeFloor, minDisplayTimeCeiling))
	}
	if c.AudioModel == "" {
		errs = append(errs, errors.New("audio_model is required"))
	}
	if c.QuestionModel == "" {
		errs = append(errs, errors.New("question_model is required"))
	}
	if c.ImageModel == "" {
		errs = append(errs, errors.New("image_model is required"))
	}
	for p := range c.Credentials {
		if !slices.Contains(Providers, p) {
			errs = append(errs, fmt.Errorf("credentials: unknown provider %q", p))
		}
	}

	warnUnknownModel("audio", c.AudioModel, AudioModels)
	warnUnknownModel("question", c.QuestionModel, QuestionModels)
	warnUnknownModel("image", c.ImageModel, ImageModels)

	return errors.Join(errs...)
}

// Sanitize returns c with every field Validate would reject replaced by its
// default, along with the validation error for the original.
func Sanitize(c Config) (Config, error) {
	err := Validate(c)
	if err == nil {
		return c.Clone(), nil
	}
	out := c.Clone()
	def := Default()
	if out.MinDisplayTimeSeconds < minDisplayTimeFloor || out.MinDisplayTimeSeconds > minDisplayTimeCeiling {
		out.MinDisplayTimeSeconds = def.MinDisplayTimeSeconds
	}
	if out.AudioModel == "" {
		out.AudioModel = def.AudioModel
	}
	if out.QuestionModel == "" {
		out.QuestionModel = def.QuestionModel
	}
	if out.ImageModel == "" {
		out.ImageModel = def.ImageModel
	}
	maps.DeleteFunc(out.Credentials, func(p Provider, _ string) bool {
		return !slices.Contains(Providers, p)
	})
	return out, err
}

func warnUnknownModel(kind, id string, known []string) {
	if id == "" || slices.Contains(known, id) {
		return
	}
	slog.Warn("unknown model id; passing through to backend", "kind", kind, "model", id)
}
