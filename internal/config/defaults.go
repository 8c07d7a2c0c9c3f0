package config

func Default() *Config {
	c := &Config{Profiles: make(map[string]ProfileConfig)}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Recording.Backend == "" {
		c.Recording.Backend = RecordingPwRecord
	}
	if c.Recording.BufferSize == 0 {
		c.Recording.BufferSize = 4096
	}
	if c.Recording.ChannelBufferSize == 0 {
		c.Recording.ChannelBufferSize = 20
	}
	if c.Profiles == nil {
		c.Profiles = make(map[string]ProfileConfig)
	}
}
