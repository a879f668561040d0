package config

import "strings"

func (c *Config) normalize() error {
	for _, field := range []*string{
		&c.Paths.InboxDir,
		&c.Paths.StagingDir,
		&c.Paths.LogDir,
		&c.Paths.ReviewDir,
	} {
		expanded, err := expandPath(strings.TrimSpace(*field))
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Processing.GatePolicy = strings.ToLower(strings.TrimSpace(c.Processing.GatePolicy))
	if c.Processing.GatePolicy == "" {
		c.Processing.GatePolicy = GatePolicyMin
	}
	if c.Processing.StageWeights == nil {
		c.Processing.StageWeights = map[string]float64{}
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = 10
	}

	return nil
}
