package notifications

import (
	"context"

	"github.com/redditmod/modbot/internal/models"
)

// NotificationInterface defines the contract for notification services
type NotificationInterface interface {
	SendRunReport(ctx context.Context, report *models.RunReport) error
	SendAlert(ctx context.Context, alert *models.Alert) error
}
