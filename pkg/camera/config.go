// Package camera acquires the video source frames are analyzed from.
// Runtime settings follow the same pattern as the analysis tunables.
package camera

// Facing selects the physical camera.
type Facing string

const (
	FacingUser        Facing = "user"        // front camera
	FacingEnvironment Facing = "environment" // back camera
)

// Toggle returns the other facing mode.
func (f Facing) Toggle() Facing {
	if f == FacingUser {
		return FacingEnvironment
	}
	return FacingUser
}

// Valid reports whether f is a known facing mode.
func (f Facing) Valid() bool {
	return f == FacingUser || f == FacingEnvironment
}

// Config holds all camera configuration parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	// === Resolution ===
	IdealWidth  int `json:"ideal_width"`  // Requested frame width in pixels
	IdealHeight int `json:"ideal_height"` // Requested frame height in pixels
	MinWidth    int `json:"min_width"`    // Reject sources narrower than this
	MinHeight   int `json:"min_height"`   // Reject sources shorter than this
	Framerate   int `json:"framerate"`    // Target FPS
	Quality     int `json:"quality"`      // JPEG quality 1-100

	// Facing is used on the next start.
	Facing Facing `json:"facing"`

	// Local device indices (only used by the device source).
	UserDevice        int `json:"user_device"`
	EnvironmentDevice int `json:"environment_device"`
}

// Limits for validation.
const (
	MaxWidth  = 3840
	MaxHeight = 2160
)

// DefaultConfig returns the recommended configuration: 1280x720 requested,
// 640x480 minimum, back camera.
func DefaultConfig() Config {
	return Config{
		IdealWidth:  1280,
		IdealHeight: 720,
		MinWidth:    640,
		MinHeight:   480,
		Framerate:   30,
		Quality:     85,

		Facing: FacingEnvironment,

		UserDevice:        1,
		EnvironmentDevice: 0,
	}
}

// LegacyConfig returns a 640x480 configuration.
// Use this if higher resolution causes issues.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.IdealWidth = 640
	cfg.IdealHeight = 480
	return cfg
}

// DeviceFor returns the local device index for a facing mode.
func (c *Config) DeviceFor(f Facing) int {
	if f == FacingUser {
		return c.UserDevice
	}
	return c.EnvironmentDevice
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.MinWidth < 160 || c.MinHeight < 120 {
		errors = append(errors, "minimum resolution must be at least 160x120")
	}
	if c.IdealWidth > MaxWidth || c.IdealHeight > MaxHeight {
		errors = append(errors, "ideal resolution must be at most 3840x2160")
	}
	if c.IdealWidth < c.MinWidth || c.IdealHeight < c.MinHeight {
		errors = append(errors, "ideal resolution must not be below the minimum")
	}
	if c.Framerate < 1 || c.Framerate > 60 {
		errors = append(errors, "framerate must be between 1 and 60")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if !c.Facing.Valid() {
		errors = append(errors, "facing must be user or environment")
	}
	if c.UserDevice < 0 || c.EnvironmentDevice < 0 {
		errors = append(errors, "device indices must not be negative")
	}

	return errors
}

// Capabilities describes what the camera layer accepts.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"max_width":  MaxWidth,
		"max_height": MaxHeight,
		"facing":     []Facing{FacingUser, FacingEnvironment},
		"presets":    PresetNames(),
	}
}
