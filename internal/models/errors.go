package models

import "errors"

// Common validation errors for models.
var (
	// ErrInputPathRequired indicates a required input path field is empty.
	ErrInputPathRequired = errors.New("input_path is required")

	// ErrOutputPathRequired indicates a required output path field is empty.
	ErrOutputPathRequired = errors.New("output_path is required")

	// ErrCodecRequired indicates a required codec field is empty.
	ErrCodecRequired = errors.New("codec is required")

	// ErrRateControlInvalid indicates an unknown rate control mode.
	ErrRateControlInvalid = errors.New("rate_control must be one of: crf, bitrate, vmaf")

	// ErrCrfRequired indicates crf mode without a CRF value.
	ErrCrfRequired = errors.New("crf is required when rate_control is crf")

	// ErrBitrateRequired indicates bitrate mode without a positive bitrate.
	ErrBitrateRequired = errors.New("bitrate_kbps must be positive when rate_control is bitrate")

	// ErrVmafTargetRequired indicates vmaf mode without a target band.
	ErrVmafTargetRequired = errors.New("vmaf_target is required when rate_control is vmaf")

	// ErrVmafTargetInvalid indicates a malformed target band.
	ErrVmafTargetInvalid = errors.New("vmaf_target must satisfy 0 < min <= max <= 100")

	// ErrSceneThresholdInvalid indicates a threshold outside [0, 1).
	ErrSceneThresholdInvalid = errors.New("scene_threshold must be in [0, 1)")

	// ErrActionRequired indicates a required audit action field is empty.
	ErrActionRequired = errors.New("action is required")
)
