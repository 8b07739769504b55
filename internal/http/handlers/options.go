package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/vefmedia/vef/internal/encoding"
	"github.com/vefmedia/vef/internal/ffmpeg"
)

// OptionsHandler exposes the encoder catalogue so clients can discover what
// this host accepts before submitting jobs.
type OptionsHandler struct {
	encoders *ffmpeg.EncoderSet
}

// NewOptionsHandler creates a new options handler.
func NewOptionsHandler(encoders *ffmpeg.EncoderSet) *OptionsHandler {
	return &OptionsHandler{encoders: encoders}
}

// Register registers the options route with the API.
func (h *OptionsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getOptions",
		Method:      "GET",
		Path:        "/api/v1/options",
		Summary:     "List available codecs and encoders",
		Description: "Returns the codec catalogue with per-encoder availability on this host",
		Tags:        []string{"System"},
	}, h.GetOptions)
}

// EncoderResponse describes one encoder implementation.
type EncoderResponse struct {
	Name           string   `json:"name"`
	Kind           string   `json:"kind"`
	Available      bool     `json:"available"`
	Profiles       []string `json:"profiles,omitempty"`
	DefaultProfile string   `json:"default_profile,omitempty"`
	Presets        []string `json:"presets,omitempty"`
	DefaultPreset  string   `json:"default_preset,omitempty"`
	MinQuality     int      `json:"min_quality"`
	MaxQuality     int      `json:"max_quality"`
	DefaultQuality int      `json:"default_quality"`
}

// CodecResponse describes one codec and its encoders.
type CodecResponse struct {
	Name     string            `json:"name"`
	Encoders []EncoderResponse `json:"encoders"`
}

// GetOptionsInput is the input for the options endpoint.
type GetOptionsInput struct{}

// GetOptionsOutput is the output for the options endpoint.
type GetOptionsOutput struct {
	Body struct {
		Success     bool            `json:"success"`
		Codecs      []CodecResponse `json:"codecs"`
		Resolutions []string        `json:"resolutions"`
	}
}

// GetOptions returns the encoder catalogue with host availability.
func (h *OptionsHandler) GetOptions(_ context.Context, _ *GetOptionsInput) (*GetOptionsOutput, error) {
	resp := &GetOptionsOutput{}
	resp.Body.Success = true
	resp.Body.Resolutions = encoding.ResolutionNames

	for _, codec := range encoding.Catalogue {
		cr := CodecResponse{Name: codec.Name}
		for _, enc := range codec.Encoders {
			cr.Encoders = append(cr.Encoders, EncoderResponse{
				Name:           enc.Name,
				Kind:           string(enc.Kind),
				Available:      h.encoders.Has(enc.Name),
				Profiles:       enc.Profiles,
				DefaultProfile: enc.DefaultProfile,
				Presets:        enc.Presets,
				DefaultPreset:  enc.DefaultPreset,
				MinQuality:     enc.MinQuality,
				MaxQuality:     enc.MaxQuality,
				DefaultQuality: enc.DefaultQuality,
			})
		}
		resp.Body.Codecs = append(resp.Body.Codecs, cr)
	}
	return resp, nil
}
