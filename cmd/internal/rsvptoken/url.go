package rsvptoken

import "strings"

// RSVPURL returns the guest-facing link for token under baseURL.
// A single trailing slash on baseURL is dropped.
func RSVPURL(token, baseURL string) string {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return baseURL + "/rsvp/" + token
}
