package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
			DataDir:  "~/.papaia",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				Enabled:     false,
				WebhookPath: "/webhook/whatsapp",
			},
			Callbell: CallbellConfig{
				Enabled:     false,
				APIBase:     "https://api.callbell.eu/v1",
				WebhookPath: "/webhook/callbell",
			},
			Telegram: TelegramConfig{
				Enabled: false,
			},
		},
		LLM: LLMConfig{
			APIBase:      "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			WhisperModel: "whisper-1",
			Language:     "es",
		},
		Photos: PhotosConfig{
			MaxPerCategory: 2,
			MaxTotal:       10,
		},
		Publish: PublishConfig{
			DestinationsDir: "~/.papaia/destinations",
		},
		Store: StoreConfig{
			Backend: "sqlite",
			DBPath:  "~/.papaia/captures.db",
		},
	}
}
