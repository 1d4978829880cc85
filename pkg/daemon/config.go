package daemon

import "github.com/antheas/hhd/internal/legion"

// Config is fixed for the lifetime of the process. ControllerConfig
// points at the user-driven configuration file, which is live reloaded.
type Config struct {
	DataDir          string `json:"dataDir"`
	ControllerConfig string `json:"controllerConfig"`
}

// ControllerConfig is stored at controller.yml. Changes apply on the next
// session, which starts as soon as the file is saved.
type ControllerConfig struct {
	Accel         bool    `json:"accel"`
	Gyro          bool    `json:"gyro"`
	SwapLegion    bool    `json:"swapLegion"`
	ReportFreqMin float64 `json:"reportFreqMin"`
	ReportFreqMax float64 `json:"reportFreqMax"`

	// DiscoveryBackoff is the delay in seconds before a failed session is
	// retried. Applied at daemon startup, not live reloaded.
	DiscoveryBackoff float64 `json:"discoveryBackoff"`
}

func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Accel:            true,
		Gyro:             true,
		ReportFreqMin:    25,
		ReportFreqMax:    400,
		DiscoveryBackoff: 3,
	}
}

func (c ControllerConfig) session() legion.SessionConfig {
	return legion.SessionConfig{
		Accel:         c.Accel,
		Gyro:          c.Gyro,
		SwapLegion:    c.SwapLegion,
		ReportFreqMin: c.ReportFreqMin,
		ReportFreqMax: c.ReportFreqMax,
	}
}
