package protocol

import (
	"fmt"
)

// Commands understood by the server.
const (
	CmdReadout      = "CMD_readsram"
	CmdStart        = "CMD_start"
	CmdStop         = "CMD_stop"
	CmdGetConfig    = "CMD_getconfig_cdr"
	cmdStatusCdr    = "CMD_status_cdr"
	cmdStatusServer = "CMD_status_server"
)

// CmdStatus returns the commands that poll the detector and server status.
func CmdStatus() []string {
	return []string{cmdStatusCdr, cmdStatusServer}
}

// ServerConfig is a measurement setup sent to the server.
type ServerConfig struct {
	Time        float64
	XRes        int
	YRes        int
	TRes        int
	Mode        Mode
	Compression bool
}

// ConfigCommand formats cfg as a CMD_config_cdr command.
func ConfigCommand(cfg ServerConfig) string {
	comp := 0
	if cfg.Compression {
		comp = 1
	}
	return fmt.Sprintf("CMD_config_cdr time=%f xres=%d yres=%d tres=%d mode=%s comp=%d",
		cfg.Time, cfg.XRes, cfg.YRes, cfg.TRes, cfg.Mode, comp)
}

// Configure switches the adapter to the geometry of cfg, reallocates both
// stores and returns the command announcing cfg to the
// server.
func (a *Adapter) Configure(cfg ServerConfig) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	g := a.geom.WithImageSize(cfg.XRes, cfg.YRes).WithImageCount(cfg.TRes)
	g.PseudoCompression = cfg.Compression
	if err := g.Validate(); err != nil {
		return "", fmt.Errorf("invalid server configuration: %w", err)
	}
	if err := a.adopt(g); err != nil {
		return "", err
	}
	a.status.Time = cfg.Time
	a.status.Mode = cfg.Mode
	return ConfigCommand(cfg), nil
}
