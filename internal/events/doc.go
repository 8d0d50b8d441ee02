// Package events holds the closed set of monitor events, the Result type they
// carry and the bounded Stream that delivers them.
package events
