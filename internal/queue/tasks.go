package queue

const (
	TypeCertificateIssued = "certificate:issued"
	TypeRBACMigrate       = "rbac:migrate"
	TypeWebhookDeliver    = "webhook:deliver"
)

type CertificateIssuedPayload struct {
	CertificateID string `json:"certificate_id"`
	UserID        string `json:"user_id"`
	CourseID      string `json:"course_id"`
	Code          string `json:"code"`
}

type RBACMigratePayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

type WebhookDeliverPayload struct {
	WebhookID string `json:"webhook_id"`
	Event     string `json:"event"`
	Payload   string `json:"payload"` // JSON string
}
