// Package messaging provides the delivery backends behind the gateway's
// outbound message batches. A sink receives the messages of one batch and
// routes each to its recipient's mailbox: in memory for single-instance
// deployments, over Redis pub/sub when recipients live on other instances.
package messaging
