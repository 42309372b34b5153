package tools

import (
	"context"
	"encoding/json"
)

// Builtin returns a registry with the stock demo tools: a weather lookup,
// an inbox reader, and a mail sender that requires human approval.
func Builtin() *Registry {
	r := NewRegistry()

	r.MustRegister(&Tool{
		Name:        "get-weather",
		Description: "Get weather information for a location",
		Parameters: json.RawMessage(`{
			"type": "object",
			"required": ["location"],
			"properties": {
				"location": {"type": "string"}
			},
			"additionalProperties": false
		}`),
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var params struct {
				Location string `json:"location"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, err
			}
			return map[string]any{
				"location":    params.Location,
				"temperature": 72,
				"condition":   "Sunny",
				"humidity":    45,
				"windSpeed":   10,
			}, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "get-mails",
		Description: "Get emails from inbox",
		Parameters:  json.RawMessage(`{"type": "object", "additionalProperties": false}`),
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			return map[string]any{
				"emails": []map[string]any{
					{
						"id":        "1",
						"from":      "client@example.com",
						"subject":   "Urgent: Project deadline approaching",
						"body":      "Hi, we need to discuss the upcoming deadline for the Q4 project. Can we schedule a call?",
						"timestamp": "2025-10-19T09:30:00Z",
					},
					{
						"id":        "2",
						"from":      "team@company.com",
						"subject":   "Meeting reschedule request",
						"body":      "The team meeting scheduled for tomorrow needs to be rescheduled. Please confirm your availability for next week.",
						"timestamp": "2025-10-19T10:15:00Z",
					},
					{
						"id":        "3",
						"from":      "support@service.com",
						"subject":   "Action required: Account verification",
						"body":      "Please verify your account details to continue using our services. Click the link to complete verification.",
						"timestamp": "2025-10-19T11:00:00Z",
					},
				},
			}, nil
		},
	})

	r.MustRegister(&Tool{
		Name:        "send-mail",
		Description: "Send an email",
		Parameters: json.RawMessage(`{
			"type": "object",
			"required": ["to", "subject", "body"],
			"properties": {
				"to": {"type": "string"},
				"subject": {"type": "string"},
				"body": {"type": "string"}
			},
			"additionalProperties": false
		}`),
		NeedsApproval: true,
		Execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			var params struct {
				To      string `json:"to"`
				Subject string `json:"subject"`
				Body    string `json:"body"`
			}
			if err := json.Unmarshal(args, &params); err != nil {
				return nil, err
			}
			return map[string]any{
				"message": "Email sent to " + params.To + " with subject: " + params.Subject,
				"body":    params.Body,
			}, nil
		},
	})

	return r
}
