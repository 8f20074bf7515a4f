package memory

import (
	"time"

	"github.com/riskibarqy/redial/internal/domain/provider"
	"github.com/riskibarqy/redial/internal/domain/scripttemplate"
)

const (
	ProviderIDTwilioPrimary = "prov-twilio-primary"
	ProviderIDHermesBackup  = "prov-hermes-backup"

	TemplateIDReminder = "tpl-appointment-reminder"
	TemplateIDOverdue  = "tpl-overdue-notice"
)

func SeedProviders() []provider.Provider {
	createdAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	return []provider.Provider{
		{
			ID:                 ProviderIDTwilioPrimary,
			Name:               "Twilio Primary",
			Kind:               provider.KindTwilio,
			Active:             true,
			Priority:           0,
			MaxConcurrentCalls: 10,
			Settings: map[string]string{
				"account_sid": "AC00000000000000000000000000000000",
				"auth_token":  "test-token",
			},
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		},
		{
			ID:                 ProviderIDHermesBackup,
			Name:               "Hermes Backup",
			Kind:               provider.KindHermes,
			Active:             true,
			Priority:           1,
			MaxConcurrentCalls: 5,
			Settings: map[string]string{
				"base_url": "http://localhost:9090",
				"api_key":  "test-key",
			},
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		},
	}
}

func SeedTemplates() []scripttemplate.Template {
	createdAt := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	return []scripttemplate.Template{
		{
			ID:          TemplateIDReminder,
			Name:        "appointment-reminder",
			Description: "Reminds the customer of an upcoming appointment.",
			Body:        "Hello {{.customer_name}}, this is a reminder about your appointment on {{.appointment_date}} at {{.appointment_time}}.",
			CreatedAt:   createdAt,
			UpdatedAt:   createdAt,
		},
		{
			ID:          TemplateIDOverdue,
			Name:        "overdue-notice",
			Description: "Notifies the customer about an overdue invoice.",
			Body:        "Hello {{.customer_name}}, invoice {{.invoice_number}} for {{.amount_due}} is overdue. Please arrange payment.",
			CreatedAt:   createdAt,
			UpdatedAt:   createdAt,
		},
	}
}
