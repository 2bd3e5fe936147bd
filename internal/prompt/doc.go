// Package prompt arms prompt triggers as timers and fires them.
//
// Each configured prompt owns a trigger.Schedule and a persisted reference
// anchor. The service resolves one horizon of trigger times at a time, arms a
// timer per trigger and records a watermark (the latest armed instant). A cron
// job refills prompts whose pending timers run low, continuing from the
// watermark so no trigger is armed twice.
//
// When a timer fires the trigger is checked for expiration first. Expired
// triggers are only recorded; live ones are handed to the notifier and the
// delivery outcome is recorded once it is known.
package prompt
