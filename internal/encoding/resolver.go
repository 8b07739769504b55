package encoding

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/vefmedia/vef/internal/models"
)

// Resolver errors.
var (
	// ErrUnknownCodec indicates a codec outside the catalogue.
	ErrUnknownCodec = errors.New("unknown codec")
	// ErrUnknownEncoder indicates an encoder not in the codec's family.
	ErrUnknownEncoder = errors.New("unknown encoder for codec")
	// ErrEncoderUnavailable indicates a hardware encoder not present on
	// this host.
	ErrEncoderUnavailable = errors.New("encoder not available on this host")
	// ErrUnknownProfile indicates a profile the encoder does not accept.
	ErrUnknownProfile = errors.New("unknown profile for encoder")
	// ErrUnknownPreset indicates a preset the encoder does not accept.
	ErrUnknownPreset = errors.New("unknown preset for encoder")
)

// Availability reports whether a named encoder can be used on this host.
// Software encoders are always available; hardware availability comes from
// probing ffmpeg at startup.
type Availability func(encoderName string) bool

// AllAvailable is an Availability that accepts every encoder.
func AllAvailable(string) bool { return true }

// Selection is a fully resolved encoder choice for one job.
type Selection struct {
	Codec   *Codec
	Encoder *Encoder
	Profile string
	Preset  string
	// Quality is the resolved constant-quality value, meaningful in crf
	// mode only.
	Quality int
}

// Resolve maps request parameters onto the catalogue. Resolution is
// rule-ordered: an explicitly requested encoder wins when it exists and is
// available, otherwise the codec's default software encoder is used; profile,
// preset and quality fall back to encoder defaults and are validated or
// clamped against the encoder's accepted values.
func Resolve(params *models.EncodeParams, available Availability) (*Selection, error) {
	if available == nil {
		available = AllAvailable
	}

	codec, ok := FindCodec(params.Codec)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, params.Codec)
	}

	var enc *Encoder
	if params.Encoder != "" {
		enc, ok = codec.FindEncoder(params.Encoder)
		if !ok {
			return nil, fmt.Errorf("%w: %q for %q", ErrUnknownEncoder, params.Encoder, params.Codec)
		}
		if enc.Kind != KindSoftware && !available(enc.Name) {
			return nil, fmt.Errorf("%w: %q", ErrEncoderUnavailable, enc.Name)
		}
	} else {
		enc = codec.DefaultEncoder()
	}

	sel := &Selection{Codec: codec, Encoder: enc}

	sel.Profile = enc.DefaultProfile
	if params.Profile != "" {
		if !contains(enc.Profiles, params.Profile) {
			return nil, fmt.Errorf("%w: %q for %q", ErrUnknownProfile, params.Profile, enc.Name)
		}
		sel.Profile = params.Profile
	}

	sel.Preset = enc.DefaultPreset
	if params.Preset != "" {
		if !contains(enc.Presets, params.Preset) {
			return nil, fmt.Errorf("%w: %q for %q", ErrUnknownPreset, params.Preset, enc.Name)
		}
		sel.Preset = params.Preset
	}

	sel.Quality = enc.DefaultQuality
	if params.CRF != nil {
		sel.Quality = clampInt(*params.CRF, enc.MinQuality, enc.MaxQuality)
	}

	return sel, nil
}

// VideoArgs returns the encoder selection as ffmpeg arguments. When
// constantQuality is true the encoder's quality flag is emitted; otherwise
// the caller supplies bitrate arguments separately.
func (s *Selection) VideoArgs(constantQuality bool) []string {
	args := []string{"-c:v", s.Encoder.Name}
	if s.Profile != "" {
		args = append(args, "-profile:v", s.Profile)
	}
	if s.Preset != "" {
		args = append(args, "-preset", s.Preset)
	}
	if constantQuality {
		args = append(args, s.Encoder.QualityFlag, strconv.Itoa(s.Quality))
		// libvpx-vp9 treats CRF as a cap unless the bitrate is zeroed.
		if s.Encoder.Name == "libvpx-vp9" {
			args = append(args, "-b:v", "0")
		}
	}
	return args
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
