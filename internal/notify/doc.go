// Package notify posts run outcomes to Slack, Teams or generic HTTP
// webhooks.
package notify
