// Package events provides a simple pub/sub broker for data-service
// lifecycle notifications (block canonized, transaction submitted,
// dropped, or promoted, global setting changed, child context closed).
// Subscribers receive events on a buffered channel; a full subscriber
// buffer drops the event rather than blocking the broker.
package events
