// Package timeouts names the fixed waits shared by forge, forged and the sdk.
// Configurable ones (webhook delivery, retention) live in conf.
package timeouts

import "time"

const (
	// Probe is how long the CLI waits for /version before assuming forged
	// is down.
	Probe = 300 * time.Millisecond

	DaemonStop       = 2 * time.Second
	ReadHeader       = 10 * time.Second
	ServerShutdown   = 5 * time.Second
	APIRequest       = 30 * time.Second
	ProviderRequest  = 30 * time.Second
	WebhookRequest   = 30 * time.Second
	WebhookPoll      = 30 * time.Second
	ProvisionBackoff = 2 * time.Second
)
