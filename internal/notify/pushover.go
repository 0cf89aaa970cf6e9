package notify

import (
	"fmt"

	"github.com/gregdel/pushover"
	"github.com/sirupsen/logrus"
)

const PriorityHigh = 1

type Notifier struct {
	app       *pushover.Pushover
	recipient *pushover.Recipient
	logger    *logrus.Logger
}

func NewNotifier(token, userKey string, logger *logrus.Logger) *Notifier {
	return &Notifier{
		app:       pushover.New(token),
		recipient: pushover.NewRecipient(userKey),
		logger:    logger,
	}
}

func (n *Notifier) SendWithPriority(title, message string, priority int) error {
	msg := pushover.NewMessageWithTitle(message, title)
	msg.Priority = priority

	resp, err := n.app.SendMessage(msg, n.recipient)
	if err != nil {
		return fmt.Errorf("sending pushover notification: %w", err)
	}

	n.logger.WithFields(logrus.Fields{
		"title":      title,
		"status":     resp.Status,
		"request_id": resp.ID,
	}).Debug("notification sent")

	return nil
}

// SendDepartureSoon announces a tram leaving the station within the next few minutes.
func (n *Notifier) SendDepartureSoon(station, route, headsign, departureTime string, minutes int) error {
	title := fmt.Sprintf("Tram %s departing", route)
	body := fmt.Sprintf("Tram %s to %s leaves %s at %s (in %d min)",
		route, headsign, station, departureTime, minutes)
	return n.SendWithPriority(title, body, PriorityHigh)
}
