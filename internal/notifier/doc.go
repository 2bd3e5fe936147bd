// Package notifier delivers fired prompts.
//
// Messages are queued and sent by a small worker pool. Sends are rate limited
// with a token bucket and retried with exponential backoff. Delivery itself is
// delegated to a Sender (the log sender, or Telegram when configured), so the
// prompt scheduler never depends on a specific messaging platform.
//
// Every accepted message gets exactly one Done callback carrying the final
// outcome, which the scheduler uses to record the delivery log.
package notifier
