package cfg

// ConfigFile mirrors the YAML layout accepted through CONFIG_FILE.
type ConfigFile struct {
	Artifacts struct {
		ModelPath             string `yaml:"modelPath"`
		ScalerPath            string `yaml:"scalerPath"`
		FeatureImportancePath string `yaml:"featureImportancePath"`
		TrainingDataPath      string `yaml:"trainingDataPath"`
		BackgroundDataPath    string `yaml:"backgroundDataPath"`
	} `yaml:"artifacts"`

	Server struct {
		Port           int      `yaml:"port"`
		CORSOrigins    []string `yaml:"corsOrigins"`
		RequestTimeout string   `yaml:"requestTimeout"`
		RateLimitRPS   float64  `yaml:"rateLimitRPS"`
		RateLimitBurst int      `yaml:"rateLimitBurst"`
	} `yaml:"server"`

	Explainer struct {
		ShapEnabled *bool  `yaml:"shapEnabled"`
		ShapTimeout string `yaml:"shapTimeout"`
	} `yaml:"explainer"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Size      int    `yaml:"size"`
		TTL       string `yaml:"ttl"`
		RedisAddr string `yaml:"redisAddr"`
	} `yaml:"cache"`

	System struct {
		DataPath       string `yaml:"dataPath"`
		HistoryEnabled *bool  `yaml:"historyEnabled"`
		LogLevel       string `yaml:"logLevel"`
		OTLPEndpoint   string `yaml:"otlpEndpoint"`
	} `yaml:"system"`
}
