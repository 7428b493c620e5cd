package email

// Config holds email service configuration.
// Without Postmark tokens notifications are written to DevDir when it is set
// and dropped otherwise.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"billing@biypod.com"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@biypod.com"`
	DevDir               string `env:"EMAIL_DEV_DIR"`
	AppURL               string `env:"APP_URL" envDefault:"https://app.biypod.com"`
}

// PostmarkEnabled reports whether both Postmark tokens are configured.
func (c Config) PostmarkEnabled() bool {
	return c.PostmarkServerToken != "" && c.PostmarkAccountToken != ""
}
