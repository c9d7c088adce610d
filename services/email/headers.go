package emailsvc

import (
	"net/mail"

	"github.com/trezcool/attendly/core"
)

// subject prefixes msg's subject with the app name, and the school for tenant mail.
func subject(appName string, msg core.EmailMessage) string {
	if msg.School == "" {
		return "[" + appName + "] " + msg.Subject
	}
	return "[" + appName + " | " + msg.School + "] " + msg.Subject
}

// sender keeps the platform address but shows the school as the sender of tenant mail.
func sender(from mail.Address, msg core.EmailMessage) mail.Address {
	if msg.School != "" {
		from.Name = msg.School + " via " + from.Name
	}
	return from
}
