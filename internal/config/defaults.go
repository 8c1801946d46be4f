package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Model.TextModelPath == "" {
		cfg.Model.TextModelPath = "/usr/local/var/umekomi/models/clip-text.onnx"
	}
	if cfg.Model.ImageModelPath == "" {
		cfg.Model.ImageModelPath = "/usr/local/var/umekomi/models/clip-image.onnx"
	}
	if cfg.Model.Dimensions == 0 {
		cfg.Model.Dimensions = 512
	}
	if cfg.Model.LogitScale == 0 {
		cfg.Model.LogitScale = 1.0
	}
	if cfg.Model.CacheSize == 0 {
		cfg.Model.CacheSize = 10000
	}
	if cfg.Encode.NumWorkerPreprocess == 0 {
		cfg.Encode.NumWorkerPreprocess = 4
	}
	if cfg.Encode.MinibatchSize == 0 {
		cfg.Encode.MinibatchSize = 32
	}
	if cfg.Encode.MaxTokens == 0 {
		cfg.Encode.MaxTokens = 77
	}
	if cfg.Encode.ImageSize == 0 {
		cfg.Encode.ImageSize = 224
	}
	// UseDefaultPreprocessing defaults to true when unset (nil).
	if cfg.Encode.UseDefaultPreprocessing == nil {
		t := true
		cfg.Encode.UseDefaultPreprocessing = &t
	}
}
