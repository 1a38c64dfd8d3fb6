package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLegacy  = "legacy"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	PresetSelfie  = "selfie"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLegacy:  LegacyConfig(),
		Preset720p:    HD720Config(),
		Preset1080p:   HD1080Config(),
		PresetSelfie:  SelfieConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		PresetLegacy,
		Preset720p,
		Preset1080p,
		PresetSelfie,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// HD720Config requires a true 720p source.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.MinWidth = 1280
	cfg.MinHeight = 720
	return cfg
}

// HD1080Config returns 1080p Full HD configuration.
// Sharper symbols at the cost of slower frame transfer.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.IdealWidth = 1920
	cfg.IdealHeight = 1080
	cfg.Framerate = 15
	return cfg
}

// SelfieConfig uses the front camera, for a laptop pointed at the table.
func SelfieConfig() Config {
	cfg := DefaultConfig()
	cfg.Facing = FacingUser
	return cfg
}
