// Package webhooks delivers notifications to subscriber URLs.
//
// A dispatch resolves every matching URL first, then POSTs the JSON payload
// to each URL with bounded concurrency. Subscriptions behind a URL that does
// not answer 200 "notification accepted" are deactivated:
// active -> inactive, with no way back.
package webhooks
